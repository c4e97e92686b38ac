// Package binding persists per-site component bindings.
//
// All position writes for a site happen inside RunInTx, which holds that
// site's lock for the whole read-modify-write and publishes the result in
// one step. Reads outside a transaction see either the state before a
// transaction or the state after it, never a mix.
package binding

import (
	"context"
	"time"

	"ezweb/internal/composition/models"
	id "ezweb/pkg/domain"
)

// SiteStore is one site's bindings as seen inside a site transaction.
// Every method is scoped to that site; ids of other sites' bindings are
// reported as not found.
type SiteStore interface {
	// List returns the site's bindings ordered by position.
	List(ctx context.Context) ([]*models.Binding, error)
	Find(ctx context.Context, bindingID id.BindingID) (*models.Binding, error)
	// Insert assigns b.ID and stores b.
	Insert(ctx context.Context, b *models.Binding) error
	// Save writes custom data, visibility, position and updated time.
	Save(ctx context.Context, b *models.Binding) error
	SetPositions(ctx context.Context, positions map[id.BindingID]int, now time.Time) error
	Delete(ctx context.Context, bindingID id.BindingID) error
}

const defaultSiteTxTimeout = 5 * time.Second
