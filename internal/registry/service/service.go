// Package service implements the component definition registry.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	registrymetrics "ezweb/internal/registry/metrics"
	"ezweb/internal/registry/models"
	id "ezweb/pkg/domain"
	dErrors "ezweb/pkg/domain-errors"
	audit "ezweb/pkg/platform/audit"
	"ezweb/pkg/platform/sentinel"
	"ezweb/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks DefinitionStore,BindingCounter,AuditPublisher

// DefinitionStore persists definitions.
type DefinitionStore interface {
	CreateIfNameAvailable(ctx context.Context, d *models.Definition) error
	FindByID(ctx context.Context, defID id.DefinitionID) (*models.Definition, error)
	ListAll(ctx context.Context) ([]*models.Definition, error)
	ListActive(ctx context.Context) ([]*models.Definition, error)
	ListByCategory(ctx context.Context, category string) ([]*models.Definition, error)
	Execute(ctx context.Context, defID id.DefinitionID, validate func(*models.Definition) error, mutate func(*models.Definition)) (*models.Definition, error)
	Delete(ctx context.Context, defID id.DefinitionID) error
}

// BindingCounter reports how many site bindings reference a definition.
type BindingCounter interface {
	CountByDefinition(ctx context.Context, defID id.DefinitionID) (int, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// StoreTx runs fn atomically against the definition store.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service manages the global component registry. It has no notion of
// ownership: reads are public and writes are gated upstream by the admin
// middleware.
type Service struct {
	definitions    DefinitionStore
	bindings       BindingCounter
	tx             StoreTx
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *registrymetrics.Metrics
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

func WithMetrics(m *registrymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithStoreTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func New(definitions DefinitionStore, bindings BindingCounter, opts ...Option) *Service {
	s := &Service{definitions: definitions, bindings: bindings}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = &inMemoryStoreTx{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Create registers a new active definition.
func (s *Service) Create(ctx context.Context, req *models.DefinitionRequest) (*models.Definition, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	d, err := models.NewDefinition(req.Fields(), requestcontext.Now(ctx))
	if err != nil {
		return nil, invariantToValidation(err)
	}
	if err := s.definitions.CreateIfNameAvailable(ctx, d); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, duplicateName(d.Name)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create definition")
	}

	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
	s.emit(ctx, audit.ActionDefinitionCreated, d.ID, map[string]string{"name": d.Name})
	return d, nil
}

// Update replaces the editable fields of a definition. Bindings that
// reference it are left as they are.
func (s *Service) Update(ctx context.Context, defID id.DefinitionID, req *models.DefinitionRequest) (*models.Definition, error) {
	if err := requireDefinitionID(defID); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var applyErr error
	d, err := s.definitions.Execute(ctx, defID,
		func(d *models.Definition) error {
			probe := *d
			applyErr = probe.ApplyFields(req.Fields(), now)
			return applyErr
		},
		func(d *models.Definition) {
			_ = d.ApplyFields(req.Fields(), now)
		},
	)
	if err != nil {
		if applyErr != nil {
			return nil, invariantToValidation(applyErr)
		}
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, duplicateName(req.Name)
		}
		return nil, wrapDefinitionErr(err, defID, "failed to update definition")
	}

	s.emit(ctx, audit.ActionDefinitionUpdated, d.ID, map[string]string{"name": d.Name, "version": d.Version})
	return d, nil
}

// Deactivate stops new bindings from targeting the definition. Existing
// bindings are untouched. Deactivating an inactive definition is a no-op.
func (s *Service) Deactivate(ctx context.Context, defID id.DefinitionID) (*models.Definition, error) {
	return s.setActive(ctx, defID, false)
}

// Reactivate reverses Deactivate.
func (s *Service) Reactivate(ctx context.Context, defID id.DefinitionID) (*models.Definition, error) {
	return s.setActive(ctx, defID, true)
}

func (s *Service) setActive(ctx context.Context, defID id.DefinitionID, active bool) (*models.Definition, error) {
	if err := requireDefinitionID(defID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	changed := false
	d, err := s.definitions.Execute(ctx, defID,
		func(d *models.Definition) error {
			changed = d.Active != active
			return nil
		},
		func(d *models.Definition) {
			if active {
				d.ApplyReactivation(now)
			} else {
				d.ApplyDeactivation(now)
			}
		},
	)
	if err != nil {
		return nil, wrapDefinitionErr(err, defID, "failed to change definition state")
	}
	if !changed {
		return d, nil
	}

	action, transition := audit.ActionDefinitionDeactivated, "deactivated"
	if active {
		action, transition = audit.ActionDefinitionReactivated, "reactivated"
	}
	if s.metrics != nil {
		s.metrics.IncrementTransition(transition)
	}
	s.emit(ctx, action, d.ID, nil)
	return d, nil
}

// Delete hard-removes a definition. It never cascades: while any binding
// references the definition the delete fails with a referential integrity
// error and nothing changes.
func (s *Service) Delete(ctx context.Context, defID id.DefinitionID) error {
	if err := requireDefinitionID(defID); err != nil {
		return err
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.definitions.FindByID(txCtx, defID); err != nil {
			return wrapDefinitionErr(err, defID, "failed to load definition")
		}
		n, err := s.bindings.CountByDefinition(txCtx, defID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count bindings")
		}
		if n > 0 {
			return referenced(defID, n)
		}
		if err := s.definitions.Delete(txCtx, defID); err != nil {
			if errors.Is(err, sentinel.ErrReferenced) {
				return referenced(defID, n)
			}
			return wrapDefinitionErr(err, defID, "failed to delete definition")
		}
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeReferentialIntegrity) {
			s.logger.WarnContext(ctx, "definition delete blocked by bindings",
				"definition_id", defID.String(),
				"request_id", requestcontext.RequestID(ctx),
			)
			if s.metrics != nil {
				s.metrics.IncrementDeleteBlocked()
			}
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.IncrementDeleted()
	}
	s.emit(ctx, audit.ActionDefinitionDeleted, defID, nil)
	return nil
}

// Get returns a definition whatever its active state.
func (s *Service) Get(ctx context.Context, defID id.DefinitionID) (*models.Definition, error) {
	if err := requireDefinitionID(defID); err != nil {
		return nil, err
	}
	d, err := s.definitions.FindByID(ctx, defID)
	if err != nil {
		return nil, wrapDefinitionErr(err, defID, "failed to load definition")
	}
	return d, nil
}

func (s *Service) ListActive(ctx context.Context) ([]*models.Definition, error) {
	defer s.observeList(time.Now())
	defs, err := s.definitions.ListActive(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list definitions")
	}
	return defs, nil
}

// ListByCategory matches the category exactly and includes inactive
// definitions, so a catalogue page can show them as unavailable.
func (s *Service) ListByCategory(ctx context.Context, category string) ([]*models.Definition, error) {
	defer s.observeList(time.Now())
	defs, err := s.definitions.ListByCategory(ctx, category)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list definitions")
	}
	return defs, nil
}

func (s *Service) ListAll(ctx context.Context) ([]*models.Definition, error) {
	defs, err := s.definitions.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list definitions")
	}
	return defs, nil
}

func (s *Service) observeList(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveList(start)
	}
}

func (s *Service) emit(ctx context.Context, action audit.Action, defID id.DefinitionID, details map[string]string) {
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Action:    action,
		Timestamp: requestcontext.Now(ctx),
		Entity:    "definition",
		EntityID:  defID.String(),
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

func requireDefinitionID(defID id.DefinitionID) error {
	if defID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "definition id is required")
	}
	return nil
}

func duplicateName(name string) error {
	return dErrors.New(dErrors.CodeConflict, "definition name already exists").ForEntity("definition", name)
}

func referenced(defID id.DefinitionID, bindings int) error {
	msg := "definition is referenced by site bindings"
	if bindings > 0 {
		msg = "definition is referenced by " + strconv.Itoa(bindings) + " site binding(s)"
	}
	return dErrors.New(dErrors.CodeReferentialIntegrity, msg).ForEntity("definition", defID)
}

func wrapDefinitionErr(err error, defID id.DefinitionID, msg string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "definition not found").ForEntity("definition", defID)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func invariantToValidation(err error) error {
	if de, ok := dErrors.As(err); ok && de.Code == dErrors.CodeInvariantViolation {
		return dErrors.New(dErrors.CodeValidation, de.Message)
	}
	return err
}

// inMemoryStoreTx serializes registry transactions within the process.
type inMemoryStoreTx struct {
	mu sync.Mutex
}

func (t *inMemoryStoreTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}
