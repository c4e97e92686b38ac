package handler

import (
	"time"

	"ezweb/internal/composition/models"
	registryhandler "ezweb/internal/registry/handler"
)

// BindingRecord is the wire shape of a binding with its definition. The
// definition is null only if it was removed out of band.
type BindingRecord struct {
	ID           int64                             `json:"id"`
	SiteID       int64                             `json:"site_id"`
	DefinitionID int64                             `json:"definition_id"`
	Definition   *registryhandler.DefinitionRecord `json:"definition"`
	CustomData   models.Document                   `json:"custom_data"`
	Position     int                               `json:"position"`
	Visible      bool                              `json:"visible"`
	CreatedAt    time.Time                         `json:"created_at"`
	UpdatedAt    time.Time                         `json:"updated_at"`
}

func toBindingRecord(d *models.BindingDetail) BindingRecord {
	b := d.Binding
	rec := BindingRecord{
		ID:           int64(b.ID),
		SiteID:       int64(b.SiteID),
		DefinitionID: int64(b.DefinitionID),
		CustomData:   b.CustomData,
		Position:     b.Position,
		Visible:      b.Visible,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
	if d.Definition != nil {
		def := registryhandler.ToDefinitionRecord(d.Definition)
		rec.Definition = &def
	}
	return rec
}

func toBindingRecords(details []*models.BindingDetail) []BindingRecord {
	out := make([]BindingRecord, 0, len(details))
	for _, d := range details {
		out = append(out, toBindingRecord(d))
	}
	return out
}
