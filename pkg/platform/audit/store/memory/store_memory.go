package memory

import (
	"context"
	"sync"

	id "ezweb/pkg/domain"
	audit "ezweb/pkg/platform/audit"
)

// InMemoryStore keeps audit events in process, indexed by site.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
	bySite map[id.SiteID][]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{bySite: make(map[id.SiteID][]int)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if !event.SiteID.IsNil() {
		s.bySite[event.SiteID] = append(s.bySite[event.SiteID], len(s.events)-1)
	}
	return nil
}

func (s *InMemoryStore) ListBySite(_ context.Context, siteID id.SiteID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, 0, len(s.bySite[siteID]))
	for _, i := range s.bySite[siteID] {
		out = append(out, s.events[i])
	}
	return out, nil
}

// ListAll returns every recorded event in append order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...), nil
}

// ListRecent returns the last limit events in append order.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.events) - limit
	if start < 0 {
		start = 0
	}
	return append([]audit.Event{}, s.events[start:]...), nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.bySite = make(map[id.SiteID][]int)
}
