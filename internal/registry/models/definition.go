package models

import (
	"strings"
	"time"
	"unicode/utf8"

	id "ezweb/pkg/domain"
	dErrors "ezweb/pkg/domain-errors"
)

const (
	MaxNameLength        = 100
	MaxDescriptionLength = 500
	DefaultVersion       = "1.0.0"
)

// Definition is a reusable component template in the global registry.
//
// Invariants:
//   - Name is non-empty, at most 100 characters, unique case-insensitively
//   - SchemaDocument and AssetReference are non-empty and never parsed here
//   - ID and CreatedAt are immutable after creation
//
// Deactivation only blocks new bindings. Bindings that already reference
// a definition keep working whatever happens to it later, short of deletion,
// which the registry refuses while any binding remains.
type Definition struct {
	ID             id.DefinitionID
	Name           string
	Description    string
	SchemaDocument string
	AssetReference string
	Category       string
	Version        string
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Fields is the editable content of a definition.
type Fields struct {
	Name           string
	Description    string
	SchemaDocument string
	AssetReference string
	Category       string
	Version        string
}

// NewDefinition builds an active definition. The ID is assigned by the store.
func NewDefinition(f Fields, now time.Time) (*Definition, error) {
	f = f.normalized()
	if err := f.check(); err != nil {
		return nil, err
	}
	return &Definition{
		Name:           f.Name,
		Description:    f.Description,
		SchemaDocument: f.SchemaDocument,
		AssetReference: f.AssetReference,
		Category:       f.Category,
		Version:        f.Version,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (f Fields) normalized() Fields {
	f.Name = strings.TrimSpace(f.Name)
	f.Category = strings.TrimSpace(f.Category)
	f.Version = strings.TrimSpace(f.Version)
	f.AssetReference = strings.TrimSpace(f.AssetReference)
	if f.Version == "" {
		f.Version = DefaultVersion
	}
	return f
}

func (f Fields) check() error {
	switch {
	case f.Name == "":
		return dErrors.New(dErrors.CodeInvariantViolation, "name is required")
	case utf8.RuneCountInString(f.Name) > MaxNameLength:
		return dErrors.New(dErrors.CodeInvariantViolation, "name must be at most 100 characters")
	case utf8.RuneCountInString(f.Description) > MaxDescriptionLength:
		return dErrors.New(dErrors.CodeInvariantViolation, "description must be at most 500 characters")
	case strings.TrimSpace(f.SchemaDocument) == "":
		return dErrors.New(dErrors.CodeInvariantViolation, "schema document is required")
	case f.AssetReference == "":
		return dErrors.New(dErrors.CodeInvariantViolation, "asset reference is required")
	}
	return nil
}

// ApplyFields replaces the editable content. Active and CreatedAt are kept.
func (d *Definition) ApplyFields(f Fields, now time.Time) error {
	f = f.normalized()
	if err := f.check(); err != nil {
		return err
	}
	d.Name = f.Name
	d.Description = f.Description
	d.SchemaDocument = f.SchemaDocument
	d.AssetReference = f.AssetReference
	d.Category = f.Category
	d.Version = f.Version
	d.UpdatedAt = now
	return nil
}

// ApplyDeactivation is idempotent.
func (d *Definition) ApplyDeactivation(now time.Time) {
	if d.Active {
		d.Active = false
		d.UpdatedAt = now
	}
}

// ApplyReactivation is idempotent.
func (d *Definition) ApplyReactivation(now time.Time) {
	if !d.Active {
		d.Active = true
		d.UpdatedAt = now
	}
}

// CanBind reports whether new bindings may target this definition.
func (d *Definition) CanBind() error {
	if !d.Active {
		return dErrors.New(dErrors.CodeDefinitionInactive, "definition is inactive").ForEntity("definition", d.ID)
	}
	return nil
}
