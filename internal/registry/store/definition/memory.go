// Package definition persists registry definitions.
package definition

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"ezweb/internal/registry/models"
	id "ezweb/pkg/domain"
	"ezweb/pkg/platform/sentinel"
)

// InMemory is a process-local definition store. Records are copied on the
// way in and out so callers never share memory with the store.
type InMemory struct {
	mu     sync.RWMutex
	byID   map[id.DefinitionID]*models.Definition
	byName map[string]id.DefinitionID
	nextID id.DefinitionID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:   make(map[id.DefinitionID]*models.Definition),
		byName: make(map[string]id.DefinitionID),
	}
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (s *InMemory) CreateIfNameAvailable(_ context.Context, d *models.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := nameKey(d.Name)
	if _, taken := s.byName[key]; taken {
		return fmt.Errorf("definition name %q: %w", d.Name, sentinel.ErrAlreadyUsed)
	}
	s.nextID++
	d.ID = s.nextID
	stored := *d
	s.byID[d.ID] = &stored
	s.byName[key] = d.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, defID id.DefinitionID) (*models.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[defID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *d
	return &out, nil
}

func (s *InMemory) ListAll(_ context.Context) ([]*models.Definition, error) {
	return s.list(func(*models.Definition) bool { return true }), nil
}

func (s *InMemory) ListActive(_ context.Context) ([]*models.Definition, error) {
	return s.list(func(d *models.Definition) bool { return d.Active }), nil
}

func (s *InMemory) ListByCategory(_ context.Context, category string) ([]*models.Definition, error) {
	return s.list(func(d *models.Definition) bool { return d.Category == category }), nil
}

func (s *InMemory) list(keep func(*models.Definition) bool) []*models.Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Definition, 0, len(s.byID))
	for _, d := range s.byID {
		if keep(d) {
			c := *d
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *models.Definition) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Execute runs validate and mutate on a copy while holding the write lock.
// The copy is stored only when validate succeeds, and a rename that collides
// with another definition fails with sentinel.ErrAlreadyUsed.
func (s *InMemory) Execute(_ context.Context, defID id.DefinitionID, validate func(*models.Definition) error, mutate func(*models.Definition)) (*models.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[defID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := *current
	if err := validate(&working); err != nil {
		return nil, err
	}
	mutate(&working)

	oldKey, newKey := nameKey(current.Name), nameKey(working.Name)
	if oldKey != newKey {
		if owner, taken := s.byName[newKey]; taken && owner != defID {
			return nil, fmt.Errorf("definition name %q: %w", working.Name, sentinel.ErrAlreadyUsed)
		}
		delete(s.byName, oldKey)
		s.byName[newKey] = defID
	}
	s.byID[defID] = &working
	out := working
	return &out, nil
}

func (s *InMemory) Delete(_ context.Context, defID id.DefinitionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[defID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byName, nameKey(d.Name))
	delete(s.byID, defID)
	return nil
}
