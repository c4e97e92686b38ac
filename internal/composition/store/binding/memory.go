package binding

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"ezweb/internal/composition/models"
	regmodels "ezweb/internal/registry/models"
	id "ezweb/pkg/domain"
	dErrors "ezweb/pkg/domain-errors"
	"ezweb/pkg/platform/keylock"
	"ezweb/pkg/platform/sentinel"
)

// DefinitionFinder is the registry view used to confirm that a definition
// still exists when a new binding is committed.
type DefinitionFinder interface {
	FindByID(ctx context.Context, defID id.DefinitionID) (*regmodels.Definition, error)
}

// InMemory keeps bindings in process. Each site's bindings are held as an
// immutable slice ordered by position; a transaction builds a new slice and
// swaps it in under the write lock.
//
// refs orders commits that add bindings against registry transactions run
// through DefinitionTx: a definition cannot be deleted between the moment a
// commit confirms it exists and the moment the new binding becomes visible.
type InMemory struct {
	mu     sync.RWMutex
	sites  map[id.SiteID][]*models.Binding
	byID   map[id.BindingID]*models.Binding
	nextID id.BindingID

	refs        sync.RWMutex
	definitions DefinitionFinder

	locks   keylock.Mutex[id.SiteID]
	timeout time.Duration
}

type InMemoryOption func(*InMemory)

// WithDefinitionCheck makes commits that add bindings re-check their
// definitions under the reference lock.
func WithDefinitionCheck(definitions DefinitionFinder) InMemoryOption {
	return func(s *InMemory) {
		s.definitions = definitions
	}
}

func NewInMemory(opts ...InMemoryOption) *InMemory {
	s := &InMemory{
		sites: make(map[id.SiteID][]*models.Binding),
		byID:  make(map[id.BindingID]*models.Binding),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefinitionTx returns the registry transaction for the in-memory backend.
// It holds the reference lock exclusively, so counting bindings and
// deleting a definition cannot interleave with a commit that adds one.
func (s *InMemory) DefinitionTx() *DefinitionTx {
	return &DefinitionTx{store: s}
}

type DefinitionTx struct {
	store *InMemory
}

func (t *DefinitionTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.store.refs.Lock()
	defer t.store.refs.Unlock()
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}

// FindByID returns a copy of the binding.
func (s *InMemory) FindByID(_ context.Context, bindingID id.BindingID) (*models.Binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byID[bindingID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return b.Clone(), nil
}

// ListBySite returns copies of the site's bindings ordered by position.
func (s *InMemory) ListBySite(_ context.Context, siteID id.SiteID) ([]*models.Binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.sites[siteID]), nil
}

func (s *InMemory) CountByDefinition(_ context.Context, defID id.DefinitionID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, b := range s.byID {
		if b.DefinitionID == defID {
			n++
		}
	}
	return n, nil
}

// RunInTx runs fn with exclusive access to siteID's bindings. Changes made
// through the SiteStore are staged and become visible only if fn returns
// nil and ctx is still live.
func (s *InMemory) RunInTx(ctx context.Context, siteID id.SiteID, fn func(ctx context.Context, store SiteStore) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := s.timeout
	if timeout == 0 {
		timeout = defaultSiteTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	unlock, err := s.locks.Lock(ctx, siteID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: waiting for site lock")
	}
	defer unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	s.mu.RLock()
	staged := &stagedSite{
		store:   s,
		siteID:  siteID,
		rows:    cloneAll(s.sites[siteID]),
		deleted: make(map[id.BindingID]struct{}),
	}
	s.mu.RUnlock()

	if err := fn(ctx, staged); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
	}
	return s.commit(ctx, staged)
}

func (s *InMemory) commit(ctx context.Context, st *stagedSite) error {
	slices.SortFunc(st.rows, func(a, b *models.Binding) int { return a.Position - b.Position })
	if !models.Contiguous(st.rows) {
		return fmt.Errorf("site %d positions not contiguous at commit: %w", st.siteID, sentinel.ErrConflict)
	}

	if len(st.referenced) > 0 {
		s.refs.RLock()
		defer s.refs.RUnlock()
		if err := s.checkDefinitions(ctx, st.referenced); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for bindingID := range st.deleted {
		delete(s.byID, bindingID)
	}
	for _, b := range st.rows {
		s.byID[b.ID] = b
	}
	if len(st.rows) == 0 {
		delete(s.sites, st.siteID)
	} else {
		s.sites[st.siteID] = st.rows
	}
	return nil
}

func (s *InMemory) checkDefinitions(ctx context.Context, defIDs []id.DefinitionID) error {
	if s.definitions == nil {
		return nil
	}
	for _, defID := range defIDs {
		if _, err := s.definitions.FindByID(ctx, defID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "definition not found").ForEntity("definition", defID)
			}
			return fmt.Errorf("check definition %d: %w", defID, err)
		}
	}
	return nil
}

func (s *InMemory) allocateID() id.BindingID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

func cloneAll(in []*models.Binding) []*models.Binding {
	out := make([]*models.Binding, len(in))
	for i, b := range in {
		out[i] = b.Clone()
	}
	return out
}

// stagedSite is the working copy of one site's bindings for a transaction.
// It is only touched by the goroutine holding the site lock.
type stagedSite struct {
	store      *InMemory
	siteID     id.SiteID
	rows       []*models.Binding
	deleted    map[id.BindingID]struct{}
	referenced []id.DefinitionID
}

func (st *stagedSite) List(_ context.Context) ([]*models.Binding, error) {
	out := cloneAll(st.rows)
	slices.SortFunc(out, func(a, b *models.Binding) int { return a.Position - b.Position })
	return out, nil
}

func (st *stagedSite) Find(_ context.Context, bindingID id.BindingID) (*models.Binding, error) {
	if i := st.index(bindingID); i >= 0 {
		return st.rows[i].Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (st *stagedSite) Insert(_ context.Context, b *models.Binding) error {
	if b.SiteID != st.siteID {
		return fmt.Errorf("binding for site %d inserted in site %d: %w", b.SiteID, st.siteID, sentinel.ErrConflict)
	}
	b.ID = st.store.allocateID()
	st.rows = append(st.rows, b.Clone())
	st.referenced = append(st.referenced, b.DefinitionID)
	return nil
}

func (st *stagedSite) Save(_ context.Context, b *models.Binding) error {
	i := st.index(b.ID)
	if i < 0 {
		return sentinel.ErrNotFound
	}
	row := st.rows[i]
	row.CustomData = b.CustomData.Clone()
	row.Visible = b.Visible
	row.Position = b.Position
	row.UpdatedAt = b.UpdatedAt
	return nil
}

func (st *stagedSite) SetPositions(_ context.Context, positions map[id.BindingID]int, now time.Time) error {
	for bindingID := range positions {
		if st.index(bindingID) < 0 {
			return fmt.Errorf("binding %d: %w", bindingID, sentinel.ErrNotFound)
		}
	}
	for _, row := range st.rows {
		if p, ok := positions[row.ID]; ok {
			row.Position = p
			row.UpdatedAt = now
		}
	}
	return nil
}

func (st *stagedSite) Delete(_ context.Context, bindingID id.BindingID) error {
	i := st.index(bindingID)
	if i < 0 {
		return sentinel.ErrNotFound
	}
	st.rows = slices.Delete(st.rows, i, i+1)
	st.deleted[bindingID] = struct{}{}
	return nil
}

func (st *stagedSite) index(bindingID id.BindingID) int {
	return slices.IndexFunc(st.rows, func(b *models.Binding) bool { return b.ID == bindingID })
}
