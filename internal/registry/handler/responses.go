package handler

import (
	"time"

	"ezweb/internal/registry/models"
)

// DefinitionRecord is the wire shape of a registry definition.
type DefinitionRecord struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	SchemaDocument string    `json:"schema_document"`
	AssetReference string    `json:"asset_reference"`
	Category       string    `json:"category"`
	Version        string    `json:"version"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ToDefinitionRecord maps a definition field by field. New model fields are
// not exposed until they are added here.
func ToDefinitionRecord(d *models.Definition) DefinitionRecord {
	return DefinitionRecord{
		ID:             int64(d.ID),
		Name:           d.Name,
		Description:    d.Description,
		SchemaDocument: d.SchemaDocument,
		AssetReference: d.AssetReference,
		Category:       d.Category,
		Version:        d.Version,
		Active:         d.Active,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func toDefinitionRecords(defs []*models.Definition) []DefinitionRecord {
	out := make([]DefinitionRecord, 0, len(defs))
	for _, d := range defs {
		out = append(out, ToDefinitionRecord(d))
	}
	return out
}
