//go:build integration

package binding_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ezweb/internal/composition/models"
	"ezweb/internal/composition/store/binding"
	id "ezweb/pkg/domain"
	"ezweb/pkg/platform/sentinel"
	"ezweb/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *binding.PostgresStore
	siteID   id.SiteID
	otherID  id.SiteID
	defID    id.DefinitionID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = binding.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "site_bindings", "component_definitions", "websites"))

	s.siteID = s.insertSite(ctx, 1)
	s.otherID = s.insertSite(ctx, 2)
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx, `
		INSERT INTO component_definitions (name, schema_document, asset_reference, created_at, updated_at)
		VALUES ('Hero', '{}', 'hero.js', now(), now()) RETURNING id`).Scan(&s.defID))
}

func (s *PostgresStoreSuite) insertSite(ctx context.Context, owner int64) id.SiteID {
	var siteID id.SiteID
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx,
		`INSERT INTO websites (owner_id) VALUES ($1) RETURNING id`, owner).Scan(&siteID))
	return siteID
}

// appendBinding adds one binding at the end of the site inside its own
// transaction.
func (s *PostgresStoreSuite) appendBinding(ctx context.Context, siteID id.SiteID) (id.BindingID, error) {
	var bindingID id.BindingID
	err := s.store.RunInTx(ctx, siteID, func(ctx context.Context, site binding.SiteStore) error {
		existing, err := site.List(ctx)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		b := &models.Binding{
			SiteID:       siteID,
			DefinitionID: s.defID,
			CustomData:   models.Document(`{"title":"hello"}`),
			Position:     len(existing),
			Visible:      true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := site.Insert(ctx, b); err != nil {
			return err
		}
		bindingID = b.ID
		return nil
	})
	return bindingID, err
}

func (s *PostgresStoreSuite) positions(siteID id.SiteID) map[id.BindingID]int {
	list, err := s.store.ListBySite(context.Background(), siteID)
	s.Require().NoError(err)
	out := make(map[id.BindingID]int, len(list))
	for _, b := range list {
		out[b.ID] = b.Position
	}
	return out
}

func (s *PostgresStoreSuite) TestInsertAndRead() {
	ctx := context.Background()
	first, err := s.appendBinding(ctx, s.siteID)
	s.Require().NoError(err)
	second, err := s.appendBinding(ctx, s.siteID)
	s.Require().NoError(err)

	list, err := s.store.ListBySite(ctx, s.siteID)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(first, list[0].ID)
	s.Equal(second, list[1].ID)
	s.Equal(`{"title":"hello"}`, string(list[0].CustomData))

	found, err := s.store.FindByID(ctx, second)
	s.Require().NoError(err)
	s.Equal(1, found.Position)
	s.Equal(s.siteID, found.SiteID)

	n, err := s.store.CountByDefinition(ctx, s.defID)
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *PostgresStoreSuite) TestSiteStoreIsScopedToItsSite() {
	ctx := context.Background()
	foreign, err := s.appendBinding(ctx, s.otherID)
	s.Require().NoError(err)

	err = s.store.RunInTx(ctx, s.siteID, func(ctx context.Context, site binding.SiteStore) error {
		_, err := site.Find(ctx, foreign)
		return err
	})
	s.ErrorIs(err, sentinel.ErrNotFound)

	err = s.store.RunInTx(ctx, s.siteID, func(ctx context.Context, site binding.SiteStore) error {
		return site.Delete(ctx, foreign)
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestSwapPositionsCommits() {
	ctx := context.Background()
	a, err := s.appendBinding(ctx, s.siteID)
	s.Require().NoError(err)
	b, err := s.appendBinding(ctx, s.siteID)
	s.Require().NoError(err)

	err = s.store.RunInTx(ctx, s.siteID, func(ctx context.Context, site binding.SiteStore) error {
		return site.SetPositions(ctx, map[id.BindingID]int{a: 1, b: 0}, time.Now().UTC())
	})
	s.Require().NoError(err)
	s.Equal(map[id.BindingID]int{a: 1, b: 0}, s.positions(s.siteID))
}

func (s *PostgresStoreSuite) TestDuplicatePositionsFailAtCommit() {
	ctx := context.Background()
	a, err := s.appendBinding(ctx, s.siteID)
	s.Require().NoError(err)
	b, err := s.appendBinding(ctx, s.siteID)
	s.Require().NoError(err)

	err = s.store.RunInTx(ctx, s.siteID, func(ctx context.Context, site binding.SiteStore) error {
		return site.SetPositions(ctx, map[id.BindingID]int{b: 0}, time.Now().UTC())
	})
	s.ErrorIs(err, sentinel.ErrConflict)
	s.Equal(map[id.BindingID]int{a: 0, b: 1}, s.positions(s.siteID), "failed commit must leave positions untouched")
}

func (s *PostgresStoreSuite) TestCallbackErrorRollsBack() {
	ctx := context.Background()
	a, err := s.appendBinding(ctx, s.siteID)
	s.Require().NoError(err)

	boom := errors.New("abort")
	err = s.store.RunInTx(ctx, s.siteID, func(ctx context.Context, site binding.SiteStore) error {
		if err := site.Delete(ctx, a); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.store.FindByID(ctx, a)
	s.NoError(err, "delete inside an aborted transaction must not be visible")
}

// TestConcurrentAppendsStayContiguous checks that the site lock serializes
// read-modify-write cycles so no two appends pick the same position.
func (s *PostgresStoreSuite) TestConcurrentAppendsStayContiguous() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	errs := make(chan error, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.appendBinding(ctx, s.siteID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	list, err := s.store.ListBySite(ctx, s.siteID)
	s.Require().NoError(err)
	s.Len(list, goroutines)
	s.True(models.Contiguous(list), "positions must be exactly 0..n-1")
}

func (s *PostgresStoreSuite) TestCustomDataRoundTripsByteForByte() {
	ctx := context.Background()
	payloads := []models.Document{
		models.Document(`{"z":1,  "a":[3, 2,1],"z":2}`),
		models.Document("{\n  \"note\": \"\\u0000 kept\"\n}"),
		models.Document(`  "just a string"  `),
	}

	var stored []id.BindingID
	err := s.store.RunInTx(ctx, s.siteID, func(ctx context.Context, site binding.SiteStore) error {
		now := time.Now().UTC()
		for i, data := range payloads {
			s.Require().True(data.Valid(), "payload %d must be valid JSON", i)
			b := &models.Binding{
				SiteID:       s.siteID,
				DefinitionID: s.defID,
				CustomData:   data,
				Position:     i,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := site.Insert(ctx, b); err != nil {
				return err
			}
			stored = append(stored, b.ID)
		}
		return nil
	})
	s.Require().NoError(err)

	for i, bindingID := range stored {
		found, err := s.store.FindByID(ctx, bindingID)
		s.Require().NoError(err)
		s.Equal(string(payloads[i]), string(found.CustomData))
	}
}
