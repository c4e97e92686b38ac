package binding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ezweb/internal/composition/models"
	regmodels "ezweb/internal/registry/models"
	id "ezweb/pkg/domain"
	dErrors "ezweb/pkg/domain-errors"
	"ezweb/pkg/platform/sentinel"
)

type BindingStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestBindingStoreSuite(t *testing.T) {
	suite.Run(t, new(BindingStoreSuite))
}

func (s *BindingStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *BindingStoreSuite) seed(siteID id.SiteID, n int) []id.BindingID {
	var ids []id.BindingID
	err := s.store.RunInTx(s.ctx, siteID, func(ctx context.Context, st SiteStore) error {
		existing, err := st.List(ctx)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			b := &models.Binding{SiteID: siteID, DefinitionID: 1, Position: len(existing) + i, Visible: true}
			if err := st.Insert(ctx, b); err != nil {
				return err
			}
			ids = append(ids, b.ID)
		}
		return nil
	})
	s.Require().NoError(err)
	return ids
}

func (s *BindingStoreSuite) positions(siteID id.SiteID) map[id.BindingID]int {
	list, err := s.store.ListBySite(s.ctx, siteID)
	s.Require().NoError(err)
	out := make(map[id.BindingID]int, len(list))
	for _, b := range list {
		out[b.ID] = b.Position
	}
	return out
}

func (s *BindingStoreSuite) TestCommitPublishesAllChanges() {
	ids := s.seed(1, 3)

	err := s.store.RunInTx(s.ctx, 1, func(ctx context.Context, st SiteStore) error {
		return st.SetPositions(ctx, map[id.BindingID]int{ids[0]: 2, ids[2]: 0}, time.Now())
	})
	s.Require().NoError(err)
	s.Equal(map[id.BindingID]int{ids[2]: 0, ids[1]: 1, ids[0]: 2}, s.positions(1))

	list, err := s.store.ListBySite(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(ids[2], list[0].ID, "listing is ordered by position")
}

func (s *BindingStoreSuite) TestFailedTransactionChangesNothing() {
	ids := s.seed(1, 2)
	before := s.positions(1)

	boom := errors.New("boom")
	err := s.store.RunInTx(s.ctx, 1, func(ctx context.Context, st SiteStore) error {
		if err := st.Delete(ctx, ids[0]); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)
	s.Equal(before, s.positions(1))

	_, err = s.store.FindByID(s.ctx, ids[0])
	s.Require().NoError(err)
}

func (s *BindingStoreSuite) TestCommitRejectsGaps() {
	ids := s.seed(1, 2)

	err := s.store.RunInTx(s.ctx, 1, func(ctx context.Context, st SiteStore) error {
		return st.Delete(ctx, ids[0])
	})
	s.Require().ErrorIs(err, sentinel.ErrConflict)
	s.Len(s.positions(1), 2)
}

func (s *BindingStoreSuite) TestCancelledContext() {
	s.seed(1, 1)

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	called := false
	err := s.store.RunInTx(ctx, 1, func(context.Context, SiteStore) error {
		called = true
		return nil
	})
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.False(called)
}

func (s *BindingStoreSuite) TestCancelledBeforeCommitRollsBack() {
	ids := s.seed(1, 2)

	ctx, cancel := context.WithCancel(s.ctx)
	err := s.store.RunInTx(ctx, 1, func(ctx context.Context, st SiteStore) error {
		if err := st.SetPositions(ctx, map[id.BindingID]int{ids[0]: 1, ids[1]: 0}, time.Now()); err != nil {
			return err
		}
		cancel()
		return nil
	})
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.Equal(map[id.BindingID]int{ids[0]: 0, ids[1]: 1}, s.positions(1))
}

func (s *BindingStoreSuite) TestSitesAreIsolated() {
	a := s.seed(1, 1)
	s.seed(2, 1)

	err := s.store.RunInTx(s.ctx, 2, func(ctx context.Context, st SiteStore) error {
		_, err := st.Find(ctx, a[0])
		return err
	})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	err = s.store.RunInTx(s.ctx, 2, func(ctx context.Context, st SiteStore) error {
		return st.Insert(ctx, &models.Binding{SiteID: 1, Position: 1})
	})
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *BindingStoreSuite) TestCountByDefinition() {
	s.seed(1, 2)
	s.seed(2, 1)
	n, err := s.store.CountByDefinition(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(3, n)

	n, err = s.store.CountByDefinition(s.ctx, 2)
	s.Require().NoError(err)
	s.Zero(n)
}

// TestReadersNeverSeePartialState runs reorders against one site while
// readers continuously check that every snapshot is contiguous.
func (s *BindingStoreSuite) TestReadersNeverSeePartialState() {
	ids := s.seed(1, 5)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				list, err := s.store.ListBySite(s.ctx, 1)
				if err != nil || len(list) != 5 || !models.Contiguous(list) {
					s.Fail("inconsistent snapshot", "err=%v len=%d", err, len(list))
					return
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		err := s.store.RunInTx(s.ctx, 1, func(ctx context.Context, st SiteStore) error {
			current, err := st.List(ctx)
			if err != nil {
				return err
			}
			// rotate by one
			next := make(map[id.BindingID]int, len(current))
			for _, b := range current {
				next[b.ID] = (b.Position + 1) % len(current)
			}
			return st.SetPositions(ctx, next, time.Now())
		})
		s.Require().NoError(err)
	}
	close(stop)
	wg.Wait()
	s.Len(s.positions(1), len(ids))
}

type definitionSet map[id.DefinitionID]bool

func (d definitionSet) FindByID(_ context.Context, defID id.DefinitionID) (*regmodels.Definition, error) {
	if !d[defID] {
		return nil, sentinel.ErrNotFound
	}
	return &regmodels.Definition{ID: defID}, nil
}

func (s *BindingStoreSuite) TestCommitRechecksDefinitions() {
	defs := definitionSet{1: true}
	store := NewInMemory(WithDefinitionCheck(defs))

	insert := func(defID id.DefinitionID) error {
		return store.RunInTx(s.ctx, 1, func(ctx context.Context, st SiteStore) error {
			rows, err := st.List(ctx)
			if err != nil {
				return err
			}
			return st.Insert(ctx, &models.Binding{SiteID: 1, DefinitionID: defID, Position: len(rows)})
		})
	}

	s.Require().NoError(insert(1))

	s.Run("definition removed while the transaction ran", func() {
		err := store.RunInTx(s.ctx, 1, func(ctx context.Context, st SiteStore) error {
			if err := st.Insert(ctx, &models.Binding{SiteID: 1, DefinitionID: 1, Position: 1}); err != nil {
				return err
			}
			delete(defs, 1)
			return nil
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		list, err := store.ListBySite(s.ctx, 1)
		s.Require().NoError(err)
		s.Len(list, 1, "rejected commit publishes nothing")
	})

	s.Run("position-only transactions skip the check", func() {
		err := store.RunInTx(s.ctx, 1, func(ctx context.Context, st SiteStore) error {
			return st.SetPositions(ctx, map[id.BindingID]int{}, time.Now())
		})
		s.NoError(err)
	})
}

func (s *BindingStoreSuite) TestDefinitionTxExcludesInsertCommits() {
	defs := definitionSet{1: true}
	store := NewInMemory(WithDefinitionCheck(defs))

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.DefinitionTx().RunInTx(s.ctx, func(ctx context.Context) error {
			close(entered)
			<-release
			delete(defs, 1)
			return nil
		})
	}()
	<-entered

	committed := make(chan error, 1)
	go func() {
		committed <- store.RunInTx(s.ctx, 1, func(ctx context.Context, st SiteStore) error {
			return st.Insert(ctx, &models.Binding{SiteID: 1, DefinitionID: 1, Position: 0})
		})
	}()

	select {
	case err := <-committed:
		s.FailNow("insert committed while a registry transaction held the reference lock", "err=%v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	s.Require().NoError(<-done)
	err := <-committed
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "got %v", err)
	n, err := store.CountByDefinition(s.ctx, 1)
	s.Require().NoError(err)
	s.Zero(n)
}
