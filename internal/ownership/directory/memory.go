// Package directory provides Site Directory adapters: an in-process map,
// the websites table, and a Redis read-through cache in front of either.
package directory

import (
	"context"
	"sync"

	id "ezweb/pkg/domain"
	"ezweb/pkg/platform/sentinel"
)

// InMemory is a Site Directory for development and tests.
type InMemory struct {
	mu     sync.RWMutex
	owners map[id.SiteID]id.UserID
	nextID id.SiteID
}

func NewInMemory() *InMemory {
	return &InMemory{owners: make(map[id.SiteID]id.UserID)}
}

// Register records siteID as owned by owner.
func (d *InMemory) Register(siteID id.SiteID, owner id.UserID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owners[siteID] = owner
	if siteID > d.nextID {
		d.nextID = siteID
	}
}

// CreateSite allocates a new site id owned by owner.
func (d *InMemory) CreateSite(_ context.Context, owner id.UserID, _ string) (id.SiteID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.owners[d.nextID] = owner
	return d.nextID, nil
}

func (d *InMemory) OwnerOf(_ context.Context, siteID id.SiteID) (id.UserID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	owner, ok := d.owners[siteID]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	return owner, nil
}
