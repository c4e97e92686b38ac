// Package service implements site composition: the ordered, per-site
// collection of component bindings and every operation that changes it.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	compositionmetrics "ezweb/internal/composition/metrics"
	"ezweb/internal/composition/models"
	"ezweb/internal/composition/store/binding"
	regmodels "ezweb/internal/registry/models"
	id "ezweb/pkg/domain"
	dErrors "ezweb/pkg/domain-errors"
	audit "ezweb/pkg/platform/audit"
	"ezweb/pkg/platform/sentinel"
	"ezweb/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks BindingReader,StoreTx,DefinitionLookup,OwnershipGuard,AuditPublisher

const (
	tracerName = "ezweb/internal/composition"

	// definitionFetchLimit caps concurrent registry lookups while joining a
	// listing with its definitions.
	definitionFetchLimit = 8
)

// BindingReader serves consistent reads outside a site transaction.
type BindingReader interface {
	FindByID(ctx context.Context, bindingID id.BindingID) (*models.Binding, error)
	ListBySite(ctx context.Context, siteID id.SiteID) ([]*models.Binding, error)
}

// StoreTx runs fn with exclusive, atomic access to one site's bindings.
type StoreTx interface {
	RunInTx(ctx context.Context, siteID id.SiteID, fn func(ctx context.Context, site binding.SiteStore) error) error
}

// DefinitionLookup resolves registry definitions. It returns a NotFound
// domain error for unknown ids.
type DefinitionLookup interface {
	Get(ctx context.Context, defID id.DefinitionID) (*regmodels.Definition, error)
}

// OwnershipGuard authorizes site-scoped operations.
type OwnershipGuard interface {
	VerifySiteOwner(ctx context.Context, siteID id.SiteID, callerID id.UserID) error
	SiteExists(ctx context.Context, siteID id.SiteID) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service composes site pages out of registry definitions. The caller is
// taken from the request context and must own the site for every operation
// except ListPublishedBindings.
type Service struct {
	bindings       BindingReader
	tx             StoreTx
	definitions    DefinitionLookup
	guard          OwnershipGuard
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *compositionmetrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *compositionmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(bindings BindingReader, tx StoreTx, definitions DefinitionLookup, guard OwnershipGuard, opts ...Option) *Service {
	s := &Service{
		bindings:    bindings,
		tx:          tx,
		definitions: definitions,
		guard:       guard,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.tracer = otel.Tracer(tracerName)
	return s
}

// AddBinding binds an active definition to the site. Without a position the
// binding is appended; with position p (0 <= p <= count) every binding at p
// or later moves up by one and the new binding takes p.
func (s *Service) AddBinding(ctx context.Context, siteID id.SiteID, req *models.AddBindingRequest) (detail *models.BindingDetail, err error) {
	ctx, span := s.startSpan(ctx, "AddBinding", siteID)
	defer func() { endSpan(span, err) }()
	defer s.observe("add_binding", time.Now())

	caller := requestcontext.UserID(ctx)
	if err := s.guard.VerifySiteOwner(ctx, siteID, caller); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	def, err := s.definitions.Get(ctx, req.DefinitionID)
	if err != nil {
		return nil, err
	}
	if err := def.CanBind(); err != nil {
		if s.metrics != nil {
			s.metrics.IncrementInactiveRejected()
		}
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var created *models.Binding
	size := 0
	err = s.tx.RunInTx(ctx, siteID, func(txCtx context.Context, site binding.SiteStore) error {
		rows, err := site.List(txCtx)
		if err != nil {
			return err
		}
		before := models.LayoutOf(rows)
		p := len(before)
		if req.Position != nil {
			p = *req.Position
		}
		// The new binding has no id yet; the zero id stands in for it.
		after, err := before.Insert(0, p)
		if err != nil {
			return err
		}
		shifts := after.Changes(before)
		delete(shifts, 0)
		if len(shifts) > 0 {
			if err := site.SetPositions(txCtx, shifts, now); err != nil {
				return err
			}
		}

		b := &models.Binding{
			SiteID:       siteID,
			DefinitionID: def.ID,
			CustomData:   req.CustomData.Clone(),
			Position:     p,
			Visible:      req.IsVisible(),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := site.Insert(txCtx, b); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "definition not found").ForEntity("definition", def.ID)
			}
			return err
		}
		created = b
		size = len(after)
		return nil
	})
	if err != nil {
		return nil, wrapTxErr(err, "failed to add binding")
	}

	if s.metrics != nil {
		s.metrics.IncrementAdded()
		s.metrics.ObserveSiteSize(size)
	}
	span.SetAttributes(attribute.Int64("binding.id", int64(created.ID)), attribute.Int("binding.position", created.Position))
	s.emit(ctx, audit.ActionBindingAdded, siteID, "binding", created.ID.String(), map[string]string{
		"definition_id": def.ID.String(),
		"position":      strconv.Itoa(created.Position),
	})
	return &models.BindingDetail{Binding: created, Definition: def}, nil
}

// ListBindings returns the site's bindings in position order. visibleOnly
// drops hidden bindings without renumbering the rest.
func (s *Service) ListBindings(ctx context.Context, siteID id.SiteID, visibleOnly bool) (details []*models.BindingDetail, err error) {
	ctx, span := s.startSpan(ctx, "ListBindings", siteID)
	defer func() { endSpan(span, err) }()
	defer s.observe("list_bindings", time.Now())

	if err := s.guard.VerifySiteOwner(ctx, siteID, requestcontext.UserID(ctx)); err != nil {
		return nil, err
	}
	return s.list(ctx, siteID, visibleOnly)
}

// ListPublishedBindings is the unauthenticated view a renderer uses: the
// visible bindings of an existing site, in position order.
func (s *Service) ListPublishedBindings(ctx context.Context, siteID id.SiteID) (details []*models.BindingDetail, err error) {
	ctx, span := s.startSpan(ctx, "ListPublishedBindings", siteID)
	defer func() { endSpan(span, err) }()
	defer s.observe("list_published_bindings", time.Now())

	if err := s.guard.SiteExists(ctx, siteID); err != nil {
		return nil, err
	}
	return s.list(ctx, siteID, true)
}

func (s *Service) list(ctx context.Context, siteID id.SiteID, visibleOnly bool) ([]*models.BindingDetail, error) {
	rows, err := s.bindings.ListBySite(ctx, siteID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list bindings")
	}
	if visibleOnly {
		visible := rows[:0]
		for _, b := range rows {
			if b.Visible {
				visible = append(visible, b)
			}
		}
		rows = visible
	}
	return s.attachDefinitions(ctx, rows)
}

// GetBinding returns one binding of a site the caller owns.
func (s *Service) GetBinding(ctx context.Context, bindingID id.BindingID) (detail *models.BindingDetail, err error) {
	ctx, span := s.startSpan(ctx, "GetBinding", 0)
	defer func() { endSpan(span, err) }()

	b, err := s.authorizeBinding(ctx, bindingID)
	if err != nil {
		return nil, err
	}
	details, err := s.attachDefinitions(ctx, []*models.Binding{b})
	if err != nil {
		return nil, err
	}
	return details[0], nil
}

// UpdateBinding replaces the fields set in req. A position change removes
// the binding from its slot and reinserts it at the new position (which must
// lie in [0, count-1]) within one site transaction.
func (s *Service) UpdateBinding(ctx context.Context, bindingID id.BindingID, req *models.UpdateBindingRequest) (detail *models.BindingDetail, err error) {
	ctx, span := s.startSpan(ctx, "UpdateBinding", 0)
	defer func() { endSpan(span, err) }()
	defer s.observe("update_binding", time.Now())

	current, err := s.authorizeBinding(ctx, bindingID)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var updated *models.Binding
	moved := false
	err = s.tx.RunInTx(ctx, current.SiteID, func(txCtx context.Context, site binding.SiteStore) error {
		b, err := site.Find(txCtx, bindingID)
		if err != nil {
			return bindingNotFound(err, bindingID)
		}

		var shifts map[id.BindingID]int
		if req.Position != nil && *req.Position != b.Position {
			rows, err := site.List(txCtx)
			if err != nil {
				return err
			}
			before := models.LayoutOf(rows)
			after, err := before.Move(b.ID, *req.Position)
			if err != nil {
				return err
			}
			shifts = after.Changes(before)
			delete(shifts, b.ID)
			b.Position = *req.Position
			moved = true
		}
		if req.CustomData != nil {
			b.CustomData = req.CustomData.Clone()
		}
		if req.Visible != nil {
			b.Visible = *req.Visible
		}
		b.UpdatedAt = now

		if err := site.Save(txCtx, b); err != nil {
			return bindingNotFound(err, bindingID)
		}
		if len(shifts) > 0 {
			if err := site.SetPositions(txCtx, shifts, now); err != nil {
				return err
			}
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, wrapTxErr(err, "failed to update binding")
	}

	details := map[string]string{"position": strconv.Itoa(updated.Position)}
	if moved {
		details["moved"] = "true"
		if s.metrics != nil {
			s.metrics.IncrementMoved()
		}
	}
	s.emit(ctx, audit.ActionBindingUpdated, updated.SiteID, "binding", updated.ID.String(), details)

	out, err := s.attachDefinitions(ctx, []*models.Binding{updated})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// DeleteBinding removes the binding and moves every later binding of the
// site down by one.
func (s *Service) DeleteBinding(ctx context.Context, bindingID id.BindingID) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteBinding", 0)
	defer func() { endSpan(span, err) }()
	defer s.observe("delete_binding", time.Now())

	current, err := s.authorizeBinding(ctx, bindingID)
	if err != nil {
		return err
	}

	now := requestcontext.Now(ctx)
	removedAt, size := 0, 0
	err = s.tx.RunInTx(ctx, current.SiteID, func(txCtx context.Context, site binding.SiteStore) error {
		rows, err := site.List(txCtx)
		if err != nil {
			return err
		}
		before := models.LayoutOf(rows)
		removedAt = before.IndexOf(bindingID)
		after, err := before.Remove(bindingID)
		if err != nil {
			return err
		}
		if err := site.Delete(txCtx, bindingID); err != nil {
			return bindingNotFound(err, bindingID)
		}
		if shifts := after.Changes(before); len(shifts) > 0 {
			if err := site.SetPositions(txCtx, shifts, now); err != nil {
				return err
			}
		}
		size = len(after)
		return nil
	})
	if err != nil {
		return wrapTxErr(err, "failed to delete binding")
	}

	if s.metrics != nil {
		s.metrics.IncrementDeleted()
		s.metrics.ObserveSiteSize(size)
	}
	s.emit(ctx, audit.ActionBindingDeleted, current.SiteID, "binding", bindingID.String(), map[string]string{
		"position": strconv.Itoa(removedAt),
	})
	return nil
}

// Reorder sets position[ordered[i]] = i for every binding of the site. The
// input must be a permutation of the site's current binding ids; anything
// else fails with InvalidReorderSet and changes nothing.
func (s *Service) Reorder(ctx context.Context, siteID id.SiteID, ordered []id.BindingID) (details []*models.BindingDetail, err error) {
	ctx, span := s.startSpan(ctx, "Reorder", siteID)
	defer func() { endSpan(span, err) }()
	defer s.observe("reorder", time.Now())

	if err := s.guard.VerifySiteOwner(ctx, siteID, requestcontext.UserID(ctx)); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var result []*models.Binding
	changed := 0
	err = s.tx.RunInTx(ctx, siteID, func(txCtx context.Context, site binding.SiteStore) error {
		rows, err := site.List(txCtx)
		if err != nil {
			return err
		}
		before := models.LayoutOf(rows)
		if err := before.CheckPermutation(ordered); err != nil {
			return err
		}
		after := append(models.Layout(nil), ordered...)
		shifts := after.Changes(before)
		if len(shifts) > 0 {
			if err := site.SetPositions(txCtx, shifts, now); err != nil {
				return err
			}
		}
		changed = len(shifts)
		result, err = site.List(txCtx)
		return err
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidReorderSet) {
			s.logger.InfoContext(ctx, "reorder rejected",
				"site_id", siteID.String(),
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			if s.metrics != nil {
				s.metrics.IncrementReorderRejected()
			}
		}
		return nil, wrapTxErr(err, "failed to reorder bindings")
	}

	if s.metrics != nil {
		s.metrics.IncrementReorders()
	}
	span.SetAttributes(attribute.Int("bindings.changed", changed))
	s.emit(ctx, audit.ActionBindingsReordered, siteID, "site", siteID.String(), map[string]string{
		"bindings": strconv.Itoa(len(ordered)),
		"changed":  strconv.Itoa(changed),
	})
	return s.attachDefinitions(ctx, result)
}

// authorizeBinding loads a binding and checks the caller owns its site.
func (s *Service) authorizeBinding(ctx context.Context, bindingID id.BindingID) (*models.Binding, error) {
	if bindingID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "binding id is required")
	}
	b, err := s.bindings.FindByID(ctx, bindingID)
	if err != nil {
		return nil, bindingNotFound(err, bindingID)
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int64("site.id", int64(b.SiteID)),
		attribute.Int64("binding.id", int64(bindingID)),
	)
	if err := s.guard.VerifySiteOwner(ctx, b.SiteID, requestcontext.UserID(ctx)); err != nil {
		return nil, err
	}
	return b, nil
}

// attachDefinitions joins bindings with the current state of their
// definitions, fetching each distinct definition once.
func (s *Service) attachDefinitions(ctx context.Context, rows []*models.Binding) ([]*models.BindingDetail, error) {
	var (
		mu   sync.Mutex
		defs = make(map[id.DefinitionID]*regmodels.Definition)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(definitionFetchLimit)
	seen := make(map[id.DefinitionID]struct{})
	for _, b := range rows {
		defID := b.DefinitionID
		if _, ok := seen[defID]; ok {
			continue
		}
		seen[defID] = struct{}{}
		g.Go(func() error {
			d, err := s.definitions.Get(gctx, defID)
			if err != nil {
				if !dErrors.HasCode(err, dErrors.CodeNotFound) {
					return err
				}
				s.logger.WarnContext(ctx, "binding references a missing definition",
					"definition_id", defID.String(),
					"request_id", requestcontext.RequestID(ctx),
				)
				d = nil
			}
			mu.Lock()
			defs[defID] = d
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if _, ok := dErrors.As(err); ok {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load definitions")
	}

	out := make([]*models.BindingDetail, 0, len(rows))
	for _, b := range rows {
		out = append(out, &models.BindingDetail{Binding: b, Definition: defs[b.DefinitionID]})
	}
	return out, nil
}

func (s *Service) startSpan(ctx context.Context, op string, siteID id.SiteID) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "composition."+op)
	if !siteID.IsNil() {
		span.SetAttributes(attribute.Int64("site.id", int64(siteID)))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

func (s *Service) observe(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(operation, start)
	}
}

func (s *Service) emit(ctx context.Context, action audit.Action, siteID id.SiteID, entity, entityID string, details map[string]string) {
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Action:    action,
		Timestamp: requestcontext.Now(ctx),
		ActorID:   requestcontext.UserID(ctx),
		SiteID:    siteID,
		Entity:    entity,
		EntityID:  entityID,
		RequestID: requestcontext.RequestID(ctx),
		Details:   details,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(action),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func bindingNotFound(err error, bindingID id.BindingID) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "binding not found").ForEntity("binding", bindingID)
	}
	return err
}

// wrapTxErr passes domain errors through and classifies store facts.
func wrapTxErr(err error, msg string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "site bindings were modified concurrently")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "binding not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation cancelled")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
