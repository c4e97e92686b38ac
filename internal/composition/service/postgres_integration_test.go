//go:build integration

package service_test

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ezweb/internal/composition/models"
	"ezweb/internal/composition/service"
	"ezweb/internal/composition/store/binding"
	"ezweb/internal/ownership"
	"ezweb/internal/ownership/directory"
	regmodels "ezweb/internal/registry/models"
	registry "ezweb/internal/registry/service"
	"ezweb/internal/registry/store/definition"
	id "ezweb/pkg/domain"
	dErrors "ezweb/pkg/domain-errors"
	"ezweb/pkg/testutil"
	"ezweb/pkg/testutil/containers"
)

const siteOwner id.UserID = 5

// PostgresCompositionSuite runs the composition service on the durable
// stores so the site lock and the deferred position constraint are
// exercised together.
type PostgresCompositionSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	bindings *binding.PostgresStore
	registry *registry.Service
	service  *service.Service
	siteID   id.SiteID
	def      *regmodels.Definition
}

func TestPostgresCompositionSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresCompositionSuite))
}

func (s *PostgresCompositionSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
}

func (s *PostgresCompositionSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "site_bindings", "component_definitions", "websites"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sites := directory.NewPostgres(s.postgres.DB)
	s.bindings = binding.NewPostgres(s.postgres.DB)
	s.registry = registry.New(definition.NewPostgres(s.postgres.DB), s.bindings, registry.WithLogger(logger))
	s.service = service.New(s.bindings, s.bindings, s.registry, ownership.NewGuard(sites, ownership.WithLogger(logger)),
		service.WithLogger(logger),
	)

	siteID, err := sites.CreateSite(ctx, siteOwner, "landing")
	s.Require().NoError(err)
	s.siteID = siteID

	s.def, err = s.registry.Create(ctx, &regmodels.DefinitionRequest{
		Name:           "Hero",
		SchemaDocument: `{"type":"object"}`,
		AssetReference: "components/hero.js",
	})
	s.Require().NoError(err)
}

func (s *PostgresCompositionSuite) ctx() context.Context {
	return testutil.OwnerContext(siteOwner, time.Now().UTC())
}

func (s *PostgresCompositionSuite) add(position *int) id.BindingID {
	detail, err := s.service.AddBinding(s.ctx(), s.siteID, &models.AddBindingRequest{
		DefinitionID: s.def.ID,
		CustomData:   models.Document(`{"title":"hello"}`),
		Position:     position,
	})
	s.Require().NoError(err)
	return detail.Binding.ID
}

func (s *PostgresCompositionSuite) order() []id.BindingID {
	rows, err := s.bindings.ListBySite(context.Background(), s.siteID)
	s.Require().NoError(err)
	out := make([]id.BindingID, len(rows))
	for i, b := range rows {
		s.Require().Equal(i, b.Position, "positions must be contiguous")
		out[i] = b.ID
	}
	return out
}

func (s *PostgresCompositionSuite) TestLifecycle() {
	b1 := s.add(nil)
	b2 := s.add(nil)
	zero := 0
	b0 := s.add(&zero)
	s.Equal([]id.BindingID{b0, b1, b2}, s.order())

	two := 2
	_, err := s.service.UpdateBinding(s.ctx(), b0, &models.UpdateBindingRequest{Position: &two})
	s.Require().NoError(err)
	s.Equal([]id.BindingID{b1, b2, b0}, s.order())

	details, err := s.service.Reorder(s.ctx(), s.siteID, []id.BindingID{b2, b0, b1})
	s.Require().NoError(err)
	s.Len(details, 3)
	s.Equal([]id.BindingID{b2, b0, b1}, s.order())

	s.Require().NoError(s.service.DeleteBinding(s.ctx(), b0))
	s.Equal([]id.BindingID{b2, b1}, s.order())

	err = s.registry.Delete(context.Background(), s.def.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeReferentialIntegrity), "bound definitions cannot be deleted")

	listed, err := s.service.ListBindings(s.ctx(), s.siteID, false)
	s.Require().NoError(err)
	s.Require().Len(listed, 2)
	s.Require().NotNil(listed[0].Definition)
	s.Equal("Hero", listed[0].Definition.Name)
}

func (s *PostgresCompositionSuite) TestConcurrentMutationsKeepPositionsContiguous() {
	for i := 0; i < 5; i++ {
		s.add(nil)
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for step := 0; step < 15; step++ {
				current, err := s.bindings.ListBySite(context.Background(), s.siteID)
				if err != nil || len(current) == 0 {
					continue
				}
				target := current[rng.Intn(len(current))].ID
				switch rng.Intn(4) {
				case 0:
					p := rng.Intn(len(current) + 1)
					_, _ = s.service.AddBinding(s.ctx(), s.siteID, &models.AddBindingRequest{DefinitionID: s.def.ID, Position: &p})
				case 1:
					p := rng.Intn(len(current))
					_, _ = s.service.UpdateBinding(s.ctx(), target, &models.UpdateBindingRequest{Position: &p})
				case 2:
					ids := make([]id.BindingID, len(current))
					for i, b := range current {
						ids[i] = b.ID
					}
					rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
					_, _ = s.service.Reorder(s.ctx(), s.siteID, ids)
				case 3:
					_ = s.service.DeleteBinding(s.ctx(), target)
				}
			}
		}(int64(w))
	}
	wg.Wait()

	s.order()
}
