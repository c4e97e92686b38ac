package ownership

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"ezweb/internal/ownership/mocks"
	id "ezweb/pkg/domain"
	dErrors "ezweb/pkg/domain-errors"
	audit "ezweb/pkg/platform/audit"
	"ezweb/pkg/platform/sentinel"
)

type GuardSuite struct {
	suite.Suite
	ctx       context.Context
	directory *mocks.MockSiteDirectory
	audit     *mocks.MockAuditPublisher
	guard     *Guard
}

func TestGuardSuite(t *testing.T) {
	suite.Run(t, new(GuardSuite))
}

func (s *GuardSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.ctx = context.Background()
	s.directory = mocks.NewMockSiteDirectory(ctrl)
	s.audit = mocks.NewMockAuditPublisher(ctrl)
	s.guard = NewGuard(s.directory,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.audit),
	)
}

func (s *GuardSuite) TestVerifySiteOwner() {
	s.Run("owner passes", func() {
		s.directory.EXPECT().OwnerOf(gomock.Any(), id.SiteID(5)).Return(id.UserID(1), nil)
		s.NoError(s.guard.VerifySiteOwner(s.ctx, 5, 1))
	})

	s.Run("other user is forbidden and audited", func() {
		s.directory.EXPECT().OwnerOf(gomock.Any(), id.SiteID(5)).Return(id.UserID(1), nil)
		s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e audit.Event) error {
				s.Equal(audit.ActionAccessDenied, e.Action)
				s.Equal(id.UserID(2), e.ActorID)
				s.Equal(id.SiteID(5), e.SiteID)
				return nil
			})
		err := s.guard.VerifySiteOwner(s.ctx, 5, 2)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("missing caller is unauthorized without a lookup", func() {
		err := s.guard.VerifySiteOwner(s.ctx, 5, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown site is not found", func() {
		s.directory.EXPECT().OwnerOf(gomock.Any(), id.SiteID(6)).Return(id.UserID(0), sentinel.ErrNotFound)
		err := s.guard.VerifySiteOwner(s.ctx, 6, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		de, ok := dErrors.As(err)
		s.Require().True(ok)
		s.Equal("site", de.Entity)
		s.Equal("6", de.EntityID)
	})

	s.Run("directory failure is internal", func() {
		s.directory.EXPECT().OwnerOf(gomock.Any(), id.SiteID(7)).Return(id.UserID(0), errors.New("timeout"))
		err := s.guard.VerifySiteOwner(s.ctx, 7, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *GuardSuite) TestSiteExists() {
	s.directory.EXPECT().OwnerOf(gomock.Any(), id.SiteID(5)).Return(id.UserID(1), nil)
	s.NoError(s.guard.SiteExists(s.ctx, 5))

	err := s.guard.SiteExists(s.ctx, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}
