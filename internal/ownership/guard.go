// Package ownership authorizes site-scoped operations. A caller may act on a
// site, and on every binding of that site, only if the Site Directory names
// the caller as the site's owner.
package ownership

import (
	"context"
	"errors"
	"log/slog"

	id "ezweb/pkg/domain"
	dErrors "ezweb/pkg/domain-errors"
	audit "ezweb/pkg/platform/audit"
	"ezweb/pkg/platform/sentinel"
	"ezweb/pkg/requestcontext"
)

//go:generate mockgen -source=guard.go -destination=mocks/mocks.go -package=mocks SiteDirectory,AuditPublisher

// SiteDirectory resolves the owner of a site. It returns
// sentinel.ErrNotFound when the site does not exist.
type SiteDirectory interface {
	OwnerOf(ctx context.Context, siteID id.SiteID) (id.UserID, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Guard checks site ownership. It never mutates anything.
type Guard struct {
	directory      SiteDirectory
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithAuditPublisher records denied attempts.
func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(g *Guard) {
		g.auditPublisher = publisher
	}
}

func NewGuard(directory SiteDirectory, opts ...Option) *Guard {
	g := &Guard{directory: directory}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// VerifySiteOwner returns nil when callerID owns siteID. A missing caller
// is Unauthorized, a missing site NotFound and any other caller Forbidden.
func (g *Guard) VerifySiteOwner(ctx context.Context, siteID id.SiteID, callerID id.UserID) error {
	if callerID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	owner, err := g.ownerOf(ctx, siteID)
	if err != nil {
		return err
	}
	if owner != callerID {
		g.logger.WarnContext(ctx, "site ownership check failed",
			"site_id", siteID.String(),
			"caller_id", callerID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		g.recordDenied(ctx, siteID, callerID)
		return dErrors.New(dErrors.CodeForbidden, "caller does not own the site").ForEntity("site", siteID)
	}
	return nil
}

// SiteExists returns NotFound when the directory does not know siteID.
func (g *Guard) SiteExists(ctx context.Context, siteID id.SiteID) error {
	_, err := g.ownerOf(ctx, siteID)
	return err
}

func (g *Guard) ownerOf(ctx context.Context, siteID id.SiteID) (id.UserID, error) {
	if siteID.IsNil() {
		return 0, dErrors.New(dErrors.CodeBadRequest, "site id is required")
	}
	owner, err := g.directory.OwnerOf(ctx, siteID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, dErrors.New(dErrors.CodeNotFound, "site not found").ForEntity("site", siteID)
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve site owner")
	}
	return owner, nil
}

func (g *Guard) recordDenied(ctx context.Context, siteID id.SiteID, callerID id.UserID) {
	if g.auditPublisher == nil {
		return
	}
	err := g.auditPublisher.Emit(ctx, audit.Event{
		Action:    audit.ActionAccessDenied,
		Timestamp: requestcontext.Now(ctx),
		ActorID:   callerID,
		SiteID:    siteID,
		Entity:    "site",
		EntityID:  siteID.String(),
		RequestID: requestcontext.RequestID(ctx),
	})
	if err != nil {
		g.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(audit.ActionAccessDenied),
			"error", err,
		)
	}
}
