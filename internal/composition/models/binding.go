package models

import (
	"time"

	regmodels "ezweb/internal/registry/models"
	id "ezweb/pkg/domain"
)

// Binding places one registry definition on a site, with its own data,
// position and visibility. SiteID and DefinitionID never change after
// creation; ownership is always derived from SiteID.
type Binding struct {
	ID           id.BindingID
	SiteID       id.SiteID
	DefinitionID id.DefinitionID
	CustomData   Document
	Position     int
	Visible      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Clone returns a deep copy.
func (b *Binding) Clone() *Binding {
	c := *b
	c.CustomData = b.CustomData.Clone()
	return &c
}

// BindingDetail is a binding joined with the definition it references. The
// definition reflects its current state, which may be inactive.
type BindingDetail struct {
	Binding    *Binding
	Definition *regmodels.Definition
}
