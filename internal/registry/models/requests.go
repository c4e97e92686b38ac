package models

import (
	"strings"
	"unicode/utf8"

	dErrors "ezweb/pkg/domain-errors"
)

// DefinitionRequest is the admin payload for create and update.
type DefinitionRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	SchemaDocument string `json:"schema_document"`
	AssetReference string `json:"asset_reference"`
	Category       string `json:"category"`
	Version        string `json:"version"`
}

func (r *DefinitionRequest) Normalize() {
	if r == nil {
		return
	}
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	r.AssetReference = strings.TrimSpace(r.AssetReference)
	r.Category = strings.TrimSpace(r.Category)
	r.Version = strings.TrimSpace(r.Version)
}

func (r *DefinitionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	// Size validation (fail fast)
	if utf8.RuneCountInString(r.Name) > MaxNameLength {
		return dErrors.New(dErrors.CodeValidation, "name must be at most 100 characters")
	}
	if utf8.RuneCountInString(r.Description) > MaxDescriptionLength {
		return dErrors.New(dErrors.CodeValidation, "description must be at most 500 characters")
	}
	// Required fields
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if strings.TrimSpace(r.SchemaDocument) == "" {
		return dErrors.New(dErrors.CodeValidation, "schema_document is required")
	}
	if r.AssetReference == "" {
		return dErrors.New(dErrors.CodeValidation, "asset_reference is required")
	}
	return nil
}

func (r *DefinitionRequest) Fields() Fields {
	return Fields{
		Name:           r.Name,
		Description:    r.Description,
		SchemaDocument: r.SchemaDocument,
		AssetReference: r.AssetReference,
		Category:       r.Category,
		Version:        r.Version,
	}
}
