package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ezweb/internal/registry/models"
	id "ezweb/pkg/domain"
	"ezweb/pkg/platform/httputil"
	"ezweb/pkg/platform/middleware/admin"
	request "ezweb/pkg/platform/middleware/request"
)

// Service defines the registry operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, req *models.DefinitionRequest) (*models.Definition, error)
	Update(ctx context.Context, defID id.DefinitionID, req *models.DefinitionRequest) (*models.Definition, error)
	Deactivate(ctx context.Context, defID id.DefinitionID) (*models.Definition, error)
	Reactivate(ctx context.Context, defID id.DefinitionID) (*models.Definition, error)
	Delete(ctx context.Context, defID id.DefinitionID) error
	Get(ctx context.Context, defID id.DefinitionID) (*models.Definition, error)
	ListActive(ctx context.Context) ([]*models.Definition, error)
	ListByCategory(ctx context.Context, category string) ([]*models.Definition, error)
	ListAll(ctx context.Context) ([]*models.Definition, error)
}

// Handler serves the public catalogue and the admin registry endpoints.
type Handler struct {
	service    Service
	logger     *slog.Logger
	adminToken string
}

func New(service Service, logger *slog.Logger, adminToken string) *Handler {
	return &Handler{service: service, logger: logger, adminToken: adminToken}
}

// Register mounts public reads at /components and admin writes at
// /admin/components behind the admin token.
func (h *Handler) Register(r chi.Router) {
	r.Get("/components", h.handleListActive)
	r.Get("/components/{id}", h.handleGet)
	r.Get("/components/category/{category}", h.handleListByCategory)

	r.Route("/admin/components", func(ar chi.Router) {
		ar.Use(admin.RequireAdminToken(h.adminToken, h.logger))
		ar.Use(request.ContentTypeJSON)
		ar.Get("/", h.handleListAll)
		ar.Post("/", h.handleCreate)
		ar.Put("/{id}", h.handleUpdate)
		ar.Patch("/{id}/deactivate", h.handleDeactivate)
		ar.Patch("/{id}/reactivate", h.handleReactivate)
		ar.Delete("/{id}", h.handleDelete)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.DefinitionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	d, err := h.service.Create(ctx, req)
	if err != nil {
		h.logFailure(ctx, "failed to create definition", err)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "definition created",
		"definition_id", d.ID.String(),
		"request_id", requestID,
	)
	httputil.WriteJSON(w, http.StatusCreated, ToDefinitionRecord(d))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defID, ok := h.definitionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.DefinitionRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	d, err := h.service.Update(ctx, defID, req)
	if err != nil {
		h.logFailure(ctx, "failed to update definition", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ToDefinitionRecord(d))
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Deactivate)
}

func (h *Handler) handleReactivate(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Reactivate)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, id.DefinitionID) (*models.Definition, error)) {
	ctx := r.Context()
	defID, ok := h.definitionID(w, r)
	if !ok {
		return
	}
	d, err := op(ctx, defID)
	if err != nil {
		h.logFailure(ctx, "failed to change definition state", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ToDefinitionRecord(d))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defID, ok := h.definitionID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(ctx, defID); err != nil {
		h.logFailure(ctx, "failed to delete definition", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defID, ok := h.definitionID(w, r)
	if !ok {
		return
	}
	d, err := h.service.Get(ctx, defID)
	if err != nil {
		h.logFailure(ctx, "failed to get definition", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ToDefinitionRecord(d))
}

func (h *Handler) handleListActive(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListActive)
}

func (h *Handler) handleListAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListAll)
}

func (h *Handler) handleListByCategory(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	h.list(w, r, func(ctx context.Context) ([]*models.Definition, error) {
		return h.service.ListByCategory(ctx, category)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, op func(context.Context) ([]*models.Definition, error)) {
	ctx := r.Context()
	defs, err := op(ctx)
	if err != nil {
		h.logFailure(ctx, "failed to list definitions", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDefinitionRecords(defs))
}

func (h *Handler) definitionID(w http.ResponseWriter, r *http.Request) (id.DefinitionID, bool) {
	defID, err := id.ParseDefinitionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return 0, false
	}
	return defID, true
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"error", err,
		"request_id", request.GetRequestID(ctx),
	)
}
