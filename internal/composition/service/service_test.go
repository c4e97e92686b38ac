package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"ezweb/internal/composition/models"
	"ezweb/internal/composition/service/mocks"
	"ezweb/internal/composition/store/binding"
	"ezweb/internal/ownership"
	"ezweb/internal/ownership/directory"
	regmodels "ezweb/internal/registry/models"
	registry "ezweb/internal/registry/service"
	"ezweb/internal/registry/store/definition"
	id "ezweb/pkg/domain"
	dErrors "ezweb/pkg/domain-errors"
	audit "ezweb/pkg/platform/audit"
	"ezweb/pkg/platform/audit/publisher"
	auditmemory "ezweb/pkg/platform/audit/store/memory"
	"ezweb/pkg/platform/sentinel"
	"ezweb/pkg/requestcontext"
	"ezweb/pkg/testutil"
)

const (
	ownerW  id.UserID = 1
	ownerV  id.UserID = 2
	siteW   id.SiteID = 10
	siteV   id.SiteID = 20
	unknown id.SiteID = 99
)

type CompositionServiceSuite struct {
	suite.Suite
	bindings *binding.InMemory
	registry *registry.Service
	guard    *ownership.Guard
	auditLog *auditmemory.InMemoryStore
	service  *Service
	now      time.Time
	defX     *regmodels.Definition
	defY     *regmodels.Definition
}

func TestCompositionServiceSuite(t *testing.T) {
	suite.Run(t, new(CompositionServiceSuite))
}

func (s *CompositionServiceSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.now = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

	definitions := definition.NewInMemory()
	s.bindings = binding.NewInMemory(binding.WithDefinitionCheck(definitions))
	s.registry = registry.New(definitions, s.bindings,
		registry.WithLogger(logger),
		registry.WithStoreTx(s.bindings.DefinitionTx()),
	)

	sites := directory.NewInMemory()
	sites.Register(siteW, ownerW)
	sites.Register(siteV, ownerV)

	s.auditLog = auditmemory.NewInMemoryStore()
	s.guard = ownership.NewGuard(sites, ownership.WithLogger(logger))
	s.service = New(s.bindings, s.bindings, s.registry, s.guard,
		WithLogger(logger),
		WithAuditPublisher(publisher.NewPublisher(s.auditLog)),
	)

	s.defX = s.createDefinition("Hero")
	s.defY = s.createDefinition("Gallery")
}

func (s *CompositionServiceSuite) createDefinition(name string) *regmodels.Definition {
	d, err := s.registry.Create(context.Background(), &regmodels.DefinitionRequest{
		Name:           name,
		SchemaDocument: `{"type":"object"}`,
		AssetReference: "s3://components/" + name + ".js",
		Category:       "layout",
	})
	s.Require().NoError(err)
	return d
}

func (s *CompositionServiceSuite) as(user id.UserID) context.Context {
	return testutil.OwnerContext(user, s.now)
}

func (s *CompositionServiceSuite) add(siteID id.SiteID, owner id.UserID, position *int) id.BindingID {
	detail, err := s.service.AddBinding(s.as(owner), siteID, &models.AddBindingRequest{
		DefinitionID: s.defX.ID,
		CustomData:   models.Document(`{"title":"hello"}`),
		Position:     position,
	})
	s.Require().NoError(err)
	return detail.Binding.ID
}

func (s *CompositionServiceSuite) seed(n int) []id.BindingID {
	out := make([]id.BindingID, n)
	for i := range out {
		out[i] = s.add(siteW, ownerW, nil)
	}
	return out
}

// order returns the site's binding ids in position order after checking the
// positions are exactly 0..n-1.
func (s *CompositionServiceSuite) order(siteID id.SiteID) []id.BindingID {
	rows, err := s.bindings.ListBySite(context.Background(), siteID)
	s.Require().NoError(err)
	out := make([]id.BindingID, len(rows))
	for i, b := range rows {
		s.Require().Equal(i, b.Position, "positions must be contiguous")
		out[i] = b.ID
	}
	return out
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func (s *CompositionServiceSuite) TestAddBinding() {
	s.Run("appends when no position is given", func() {
		ids := s.seed(3)
		s.Equal(ids, s.order(siteW))
	})

	s.Run("inserts and shifts later bindings up", func() {
		s.SetupTest()
		ids := s.seed(2)

		detail, err := s.service.AddBinding(s.as(ownerW), siteW, &models.AddBindingRequest{
			DefinitionID: s.defX.ID,
			CustomData:   models.Document(`{"k":1}`),
			Visible:      boolPtr(true),
			Position:     intPtr(1),
		})
		s.Require().NoError(err)
		s.Equal(1, detail.Binding.Position)
		s.Equal(s.defX.ID, detail.Definition.ID)
		s.Equal([]id.BindingID{ids[0], detail.Binding.ID, ids[1]}, s.order(siteW))
	})

	s.Run("position equal to count appends, beyond count is rejected", func() {
		s.SetupTest()
		ids := s.seed(2)
		appended := s.add(siteW, ownerW, intPtr(2))
		s.Equal([]id.BindingID{ids[0], ids[1], appended}, s.order(siteW))

		_, err := s.service.AddBinding(s.as(ownerW), siteW, &models.AddBindingRequest{DefinitionID: s.defX.ID, Position: intPtr(4)})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Len(s.order(siteW), 3)
	})

	s.Run("visible defaults to true and custom data is kept verbatim", func() {
		s.SetupTest()
		detail, err := s.service.AddBinding(s.as(ownerW), siteW, &models.AddBindingRequest{
			DefinitionID: s.defX.ID,
			CustomData:   models.Document(`{"a": [1, 2]}`),
		})
		s.Require().NoError(err)
		s.True(detail.Binding.Visible)
		s.Equal(`{"a": [1, 2]}`, string(detail.Binding.CustomData))
		s.Equal(s.now, detail.Binding.CreatedAt)
	})

	s.Run("unknown definition is not found", func() {
		s.SetupTest()
		_, err := s.service.AddBinding(s.as(ownerW), siteW, &models.AddBindingRequest{DefinitionID: 999})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Empty(s.order(siteW))
	})

	s.Run("malformed custom data is rejected", func() {
		s.SetupTest()
		_, err := s.service.AddBinding(s.as(ownerW), siteW, &models.AddBindingRequest{
			DefinitionID: s.defX.ID,
			CustomData:   models.Document(`{not json`),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("non-owner is forbidden and nothing changes", func() {
		s.SetupTest()
		ids := s.seed(1)
		_, err := s.service.AddBinding(s.as(ownerV), siteW, &models.AddBindingRequest{DefinitionID: s.defX.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal(ids, s.order(siteW))
	})

	s.Run("missing caller is unauthorized", func() {
		s.SetupTest()
		ctx := requestcontext.WithTime(context.Background(), s.now)
		_, err := s.service.AddBinding(ctx, siteW, &models.AddBindingRequest{DefinitionID: s.defX.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown site is not found", func() {
		s.SetupTest()
		_, err := s.service.AddBinding(s.as(ownerW), unknown, &models.AddBindingRequest{DefinitionID: s.defX.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("emits an audit event keyed by site", func() {
		s.SetupTest()
		bindingID := s.add(siteW, ownerW, nil)
		events, err := s.auditLog.ListBySite(context.Background(), siteW)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(audit.ActionBindingAdded, events[0].Action)
		s.Equal(bindingID.String(), events[0].EntityID)
		s.Equal(ownerW, events[0].ActorID)
	})
}

func (s *CompositionServiceSuite) TestDeactivatedDefinition() {
	bindingID := s.add(siteW, ownerW, nil)
	before, err := s.service.GetBinding(s.as(ownerW), bindingID)
	s.Require().NoError(err)

	_, err = s.registry.Deactivate(context.Background(), s.defX.ID)
	s.Require().NoError(err)

	s.Run("existing bindings are untouched", func() {
		list, err := s.service.ListBindings(s.as(ownerW), siteW, false)
		s.Require().NoError(err)
		s.Require().Len(list, 1)
		s.Equal(before.Binding, list[0].Binding)
		s.False(list[0].Definition.Active, "definition reflects its current state")
	})

	s.Run("new bindings are refused", func() {
		_, err := s.service.AddBinding(s.as(ownerW), siteW, &models.AddBindingRequest{DefinitionID: s.defX.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeDefinitionInactive))
		s.Len(s.order(siteW), 1)
	})

	s.Run("the definition cannot be deleted while bound", func() {
		err := s.registry.Delete(context.Background(), s.defX.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeReferentialIntegrity))
	})
}

func (s *CompositionServiceSuite) TestListBindings() {
	ids := s.seed(3)
	_, err := s.service.UpdateBinding(s.as(ownerW), ids[1], &models.UpdateBindingRequest{Visible: boolPtr(false)})
	s.Require().NoError(err)

	s.Run("all bindings in position order", func() {
		list, err := s.service.ListBindings(s.as(ownerW), siteW, false)
		s.Require().NoError(err)
		s.Require().Len(list, 3)
		for i, d := range list {
			s.Equal(ids[i], d.Binding.ID)
			s.Equal(s.defX.Name, d.Definition.Name)
		}
	})

	s.Run("visible only keeps stored positions", func() {
		list, err := s.service.ListBindings(s.as(ownerW), siteW, true)
		s.Require().NoError(err)
		s.Require().Len(list, 2)
		s.Equal(0, list[0].Binding.Position)
		s.Equal(2, list[1].Binding.Position)
	})

	s.Run("restartable", func() {
		first, err := s.service.ListBindings(s.as(ownerW), siteW, false)
		s.Require().NoError(err)
		second, err := s.service.ListBindings(s.as(ownerW), siteW, false)
		s.Require().NoError(err)
		s.Equal(first, second)
	})

	s.Run("owner only", func() {
		_, err := s.service.ListBindings(s.as(ownerV), siteW, false)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("published listing needs no caller", func() {
		list, err := s.service.ListPublishedBindings(context.Background(), siteW)
		s.Require().NoError(err)
		s.Len(list, 2)

		_, err = s.service.ListPublishedBindings(context.Background(), unknown)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("empty site lists nothing", func() {
		list, err := s.service.ListBindings(s.as(ownerV), siteV, false)
		s.Require().NoError(err)
		s.Empty(list)
	})
}

func (s *CompositionServiceSuite) TestGetBinding() {
	bindingID := s.add(siteW, ownerW, nil)

	detail, err := s.service.GetBinding(s.as(ownerW), bindingID)
	s.Require().NoError(err)
	s.Equal(siteW, detail.Binding.SiteID)

	_, err = s.service.GetBinding(s.as(ownerV), bindingID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.service.GetBinding(s.as(ownerW), 12345)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.GetBinding(s.as(ownerW), 0)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *CompositionServiceSuite) TestUpdateBinding() {
	s.Run("replaces only the fields that are set", func() {
		ids := s.seed(2)
		data := models.Document(`{"title":"changed"}`)
		later := s.now.Add(time.Hour)
		ctx := requestcontext.WithTime(s.as(ownerW), later)

		detail, err := s.service.UpdateBinding(ctx, ids[0], &models.UpdateBindingRequest{CustomData: &data})
		s.Require().NoError(err)
		s.Equal(`{"title":"changed"}`, string(detail.Binding.CustomData))
		s.True(detail.Binding.Visible)
		s.Equal(0, detail.Binding.Position)
		s.Equal(s.now, detail.Binding.CreatedAt)
		s.Equal(later, detail.Binding.UpdatedAt)
		s.Equal(ids, s.order(siteW))
	})

	s.Run("moving forward closes the gap then inserts", func() {
		s.SetupTest()
		ids := s.seed(4)
		detail, err := s.service.UpdateBinding(s.as(ownerW), ids[0], &models.UpdateBindingRequest{Position: intPtr(2)})
		s.Require().NoError(err)
		s.Equal(2, detail.Binding.Position)
		s.Equal([]id.BindingID{ids[1], ids[2], ids[0], ids[3]}, s.order(siteW))
	})

	s.Run("moving backward", func() {
		s.SetupTest()
		ids := s.seed(4)
		_, err := s.service.UpdateBinding(s.as(ownerW), ids[3], &models.UpdateBindingRequest{Position: intPtr(0)})
		s.Require().NoError(err)
		s.Equal([]id.BindingID{ids[3], ids[0], ids[1], ids[2]}, s.order(siteW))
	})

	s.Run("move to the last slot", func() {
		s.SetupTest()
		ids := s.seed(3)
		_, err := s.service.UpdateBinding(s.as(ownerW), ids[0], &models.UpdateBindingRequest{Position: intPtr(2)})
		s.Require().NoError(err)
		s.Equal([]id.BindingID{ids[1], ids[2], ids[0]}, s.order(siteW))
	})

	s.Run("position beyond the last slot is rejected", func() {
		s.SetupTest()
		ids := s.seed(3)
		_, err := s.service.UpdateBinding(s.as(ownerW), ids[0], &models.UpdateBindingRequest{Position: intPtr(3), Visible: boolPtr(false)})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(ids, s.order(siteW))

		list, err := s.service.ListBindings(s.as(ownerW), siteW, true)
		s.Require().NoError(err)
		s.Len(list, 3, "a failed update changes no field")
	})

	s.Run("non-owner is forbidden", func() {
		s.SetupTest()
		ids := s.seed(1)
		_, err := s.service.UpdateBinding(s.as(ownerV), ids[0], &models.UpdateBindingRequest{Visible: boolPtr(false)})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *CompositionServiceSuite) TestDeleteBinding() {
	s.Run("later bindings move down by one and earlier ones stay", func() {
		ids := s.seed(5)
		before, err := s.bindings.ListBySite(context.Background(), siteW)
		s.Require().NoError(err)

		s.Require().NoError(s.service.DeleteBinding(s.as(ownerW), ids[2]))

		after, err := s.bindings.ListBySite(context.Background(), siteW)
		s.Require().NoError(err)
		s.Require().Len(after, 4)
		s.Equal(before[0], after[0])
		s.Equal(before[1], after[1])
		s.Equal(ids[3], after[2].ID)
		s.Equal(ids[4], after[3].ID)
	})

	s.Run("deleting twice is not found", func() {
		s.SetupTest()
		ids := s.seed(1)
		s.Require().NoError(s.service.DeleteBinding(s.as(ownerW), ids[0]))
		err := s.service.DeleteBinding(s.as(ownerW), ids[0])
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("non-owner is forbidden and nothing changes", func() {
		s.SetupTest()
		ids := s.seed(2)
		err := s.service.DeleteBinding(s.as(ownerV), ids[0])
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal(ids, s.order(siteW))
	})
}

func (s *CompositionServiceSuite) TestReorder() {
	s.Run("reorder then delete", func() {
		ids := s.seed(3)
		b1, b2, b3 := ids[0], ids[1], ids[2]

		details, err := s.service.Reorder(s.as(ownerW), siteW, []id.BindingID{b3, b1, b2})
		s.Require().NoError(err)
		s.Require().Len(details, 3)
		s.Equal(b3, details[0].Binding.ID)
		s.Equal([]id.BindingID{b3, b1, b2}, s.order(siteW))

		s.Require().NoError(s.service.DeleteBinding(s.as(ownerW), b1))
		s.Equal([]id.BindingID{b3, b2}, s.order(siteW))
	})

	s.Run("invalid sets change nothing", func() {
		s.SetupTest()
		ids := s.seed(3)
		foreign := s.add(siteV, ownerV, nil)

		for name, input := range map[string][]id.BindingID{
			"missing":   {ids[0], ids[1]},
			"duplicate": {ids[0], ids[1], ids[1]},
			"foreign":   {ids[0], ids[1], foreign},
			"extra":     {ids[0], ids[1], ids[2], foreign},
			"empty":     {},
		} {
			_, err := s.service.Reorder(s.as(ownerW), siteW, input)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidReorderSet), name)
			s.Equal(ids, s.order(siteW), name)
		}
	})

	s.Run("identity reorder is accepted", func() {
		s.SetupTest()
		ids := s.seed(3)
		_, err := s.service.Reorder(s.as(ownerW), siteW, ids)
		s.Require().NoError(err)
		s.Equal(ids, s.order(siteW))
	})

	s.Run("empty site accepts an empty order", func() {
		s.SetupTest()
		details, err := s.service.Reorder(s.as(ownerW), siteW, nil)
		s.Require().NoError(err)
		s.Empty(details)
	})

	s.Run("non-owner is forbidden", func() {
		s.SetupTest()
		ids := s.seed(2)
		_, err := s.service.Reorder(s.as(ownerV), siteW, []id.BindingID{ids[1], ids[0]})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal(ids, s.order(siteW))
	})
}

func (s *CompositionServiceSuite) TestRandomOperationsKeepPositionsContiguous() {
	rng := rand.New(rand.NewSource(7))
	ctx := s.as(ownerW)
	for step := 0; step < 300; step++ {
		current := s.order(siteW)
		n := len(current)
		switch op := rng.Intn(4); {
		case op == 0 || n == 0:
			s.add(siteW, ownerW, intPtr(rng.Intn(n+1)))
		case op == 1:
			_, err := s.service.UpdateBinding(ctx, current[rng.Intn(n)], &models.UpdateBindingRequest{Position: intPtr(rng.Intn(n))})
			s.Require().NoError(err)
		case op == 2:
			s.Require().NoError(s.service.DeleteBinding(ctx, current[rng.Intn(n)]))
		default:
			perm := append([]id.BindingID(nil), current...)
			rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
			_, err := s.service.Reorder(ctx, siteW, perm)
			s.Require().NoError(err)
			s.Require().Equal(perm, s.order(siteW))
		}
	}
}

func (s *CompositionServiceSuite) TestConcurrentMutations() {
	s.Run("concurrent reorders serialize to one of the inputs", func() {
		ids := s.seed(6)
		perms := make([][]id.BindingID, 8)
		for i := range perms {
			perm := append([]id.BindingID(nil), ids...)
			rand.New(rand.NewSource(int64(i))).Shuffle(len(perm), func(a, b int) { perm[a], perm[b] = perm[b], perm[a] })
			perms[i] = perm
		}

		var wg sync.WaitGroup
		for _, perm := range perms {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.service.Reorder(s.as(ownerW), siteW, perm)
				s.NoError(err)
			}()
		}
		wg.Wait()

		final := s.order(siteW)
		s.Contains(perms, final)
	})

	s.Run("concurrent inserts and deletes on two sites", func() {
		s.SetupTest()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, err := s.service.AddBinding(s.as(ownerW), siteW, &models.AddBindingRequest{DefinitionID: s.defX.ID, Position: intPtr(0)})
				s.NoError(err)
			}()
			go func() {
				defer wg.Done()
				_, err := s.service.AddBinding(s.as(ownerV), siteV, &models.AddBindingRequest{DefinitionID: s.defY.ID})
				s.NoError(err)
			}()
		}
		wg.Wait()
		s.Len(s.order(siteW), 20)
		s.Len(s.order(siteV), 20)

		ids := s.order(siteW)
		for _, bindingID := range ids[:10] {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.NoError(s.service.DeleteBinding(s.as(ownerW), bindingID))
			}()
		}
		wg.Wait()
		s.Len(s.order(siteW), 10)
	})
}

func (s *CompositionServiceSuite) TestCancelledContext() {
	ids := s.seed(3)
	ctx, cancel := context.WithCancel(s.as(ownerW))
	cancel()

	_, err := s.service.Reorder(ctx, siteW, []id.BindingID{ids[2], ids[1], ids[0]})
	s.Require().Error(err)
	s.Equal(ids, s.order(siteW))
}

type CompositionServiceMockSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	reader      *mocks.MockBindingReader
	tx          *mocks.MockStoreTx
	definitions *mocks.MockDefinitionLookup
	guard       *mocks.MockOwnershipGuard
	audit       *mocks.MockAuditPublisher
	service     *Service
	ctx         context.Context
}

func TestCompositionServiceMockSuite(t *testing.T) {
	suite.Run(t, new(CompositionServiceMockSuite))
}

func (s *CompositionServiceMockSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.reader = mocks.NewMockBindingReader(s.ctrl)
	s.tx = mocks.NewMockStoreTx(s.ctrl)
	s.definitions = mocks.NewMockDefinitionLookup(s.ctrl)
	s.guard = mocks.NewMockOwnershipGuard(s.ctrl)
	s.audit = mocks.NewMockAuditPublisher(s.ctrl)
	s.service = New(s.reader, s.tx, s.definitions, s.guard,
		WithAuditPublisher(s.audit),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.ctx = requestcontext.WithUserID(context.Background(), ownerW)
}

func (s *CompositionServiceMockSuite) TestGuardRunsBeforeAnyStoreAccess() {
	denied := dErrors.New(dErrors.CodeForbidden, "caller does not own the site")
	s.guard.EXPECT().VerifySiteOwner(gomock.Any(), siteW, ownerW).Return(denied).Times(2)

	_, err := s.service.AddBinding(s.ctx, siteW, &models.AddBindingRequest{DefinitionID: 1})
	s.ErrorIs(err, denied)
	_, err = s.service.Reorder(s.ctx, siteW, []id.BindingID{1})
	s.ErrorIs(err, denied)
}

func (s *CompositionServiceMockSuite) TestStoreConflictIsReported() {
	s.guard.EXPECT().VerifySiteOwner(gomock.Any(), siteW, ownerW).Return(nil)
	s.tx.EXPECT().RunInTx(gomock.Any(), siteW, gomock.Any()).
		Return(fmt.Errorf("site 10 positions not contiguous at commit: %w", sentinel.ErrConflict))

	_, err := s.service.Reorder(s.ctx, siteW, []id.BindingID{1})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *CompositionServiceMockSuite) TestAuditFailureDoesNotFailTheOperation() {
	b := &models.Binding{ID: 5, SiteID: siteW, DefinitionID: 3, Position: 0, Visible: true}
	def := &regmodels.Definition{ID: 3, Name: "Hero", Active: true}
	site := &fakeSite{rows: []*models.Binding{b.Clone()}}

	s.reader.EXPECT().FindByID(gomock.Any(), id.BindingID(5)).Return(b, nil)
	s.guard.EXPECT().VerifySiteOwner(gomock.Any(), siteW, ownerW).Return(nil)
	s.tx.EXPECT().RunInTx(gomock.Any(), siteW, gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ id.SiteID, fn func(context.Context, binding.SiteStore) error) error {
			return fn(ctx, site)
		})
	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(context.DeadlineExceeded)
	s.definitions.EXPECT().Get(gomock.Any(), id.DefinitionID(3)).Return(def, nil)

	detail, err := s.service.UpdateBinding(s.ctx, 5, &models.UpdateBindingRequest{Visible: boolPtr(false)})
	s.Require().NoError(err)
	s.False(detail.Binding.Visible)
	s.False(site.rows[0].Visible)
}

// fakeSite is a single-site SiteStore without staging.
type fakeSite struct {
	rows []*models.Binding
}

func (f *fakeSite) List(context.Context) ([]*models.Binding, error) {
	out := make([]*models.Binding, len(f.rows))
	for i, b := range f.rows {
		out[i] = b.Clone()
	}
	return out, nil
}

func (f *fakeSite) Find(_ context.Context, bindingID id.BindingID) (*models.Binding, error) {
	for _, b := range f.rows {
		if b.ID == bindingID {
			return b.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (f *fakeSite) Insert(_ context.Context, b *models.Binding) error {
	b.ID = id.BindingID(len(f.rows) + 100)
	f.rows = append(f.rows, b.Clone())
	return nil
}

func (f *fakeSite) Save(_ context.Context, b *models.Binding) error {
	for i, row := range f.rows {
		if row.ID == b.ID {
			f.rows[i] = b.Clone()
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (f *fakeSite) SetPositions(_ context.Context, positions map[id.BindingID]int, now time.Time) error {
	for _, row := range f.rows {
		if p, ok := positions[row.ID]; ok {
			row.Position = p
			row.UpdatedAt = now
		}
	}
	return nil
}

func (f *fakeSite) Delete(_ context.Context, bindingID id.BindingID) error {
	for i, row := range f.rows {
		if row.ID == bindingID {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return sentinel.ErrNotFound
}

// deletingLookup hands out a definition and deletes it straight away, so the
// registry delete lands after AddBinding's active check but before its
// commit.
type deletingLookup struct {
	registry *registry.Service
}

func (l deletingLookup) Get(ctx context.Context, defID id.DefinitionID) (*regmodels.Definition, error) {
	d, err := l.registry.Get(ctx, defID)
	if err != nil {
		return nil, err
	}
	if err := l.registry.Delete(context.Background(), defID); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *CompositionServiceSuite) TestDefinitionDeletedBeforeCommit() {
	svc := New(s.bindings, s.bindings, deletingLookup{registry: s.registry}, s.guard,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	_, err := svc.AddBinding(s.as(ownerW), siteW, &models.AddBindingRequest{
		DefinitionID: s.defY.ID,
		CustomData:   models.Document(`{"title":"late"}`),
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "got %v", err)

	_, err = s.registry.Get(context.Background(), s.defY.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	n, err := s.bindings.CountByDefinition(context.Background(), s.defY.ID)
	s.Require().NoError(err)
	s.Zero(n, "no binding may reference a deleted definition")

	rows, err := s.bindings.ListBySite(context.Background(), siteW)
	s.Require().NoError(err)
	s.Empty(rows)
}
