package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ezweb/internal/composition/models"
	id "ezweb/pkg/domain"
	dErrors "ezweb/pkg/domain-errors"
	"ezweb/pkg/platform/httputil"
	"ezweb/pkg/platform/middleware/auth"
	request "ezweb/pkg/platform/middleware/request"
)

// Service defines the composition operations exposed over HTTP.
type Service interface {
	AddBinding(ctx context.Context, siteID id.SiteID, req *models.AddBindingRequest) (*models.BindingDetail, error)
	ListBindings(ctx context.Context, siteID id.SiteID, visibleOnly bool) ([]*models.BindingDetail, error)
	ListPublishedBindings(ctx context.Context, siteID id.SiteID) ([]*models.BindingDetail, error)
	GetBinding(ctx context.Context, bindingID id.BindingID) (*models.BindingDetail, error)
	UpdateBinding(ctx context.Context, bindingID id.BindingID, req *models.UpdateBindingRequest) (*models.BindingDetail, error)
	DeleteBinding(ctx context.Context, bindingID id.BindingID) error
	Reorder(ctx context.Context, siteID id.SiteID, ordered []id.BindingID) ([]*models.BindingDetail, error)
}

// Handler serves a site's component bindings.
type Handler struct {
	service   Service
	validator auth.JWTValidator
	logger    *slog.Logger
}

func New(service Service, validator auth.JWTValidator, logger *slog.Logger) *Handler {
	return &Handler{service: service, validator: validator, logger: logger}
}

// Register mounts the site composition routes. Only the published listing
// is public; everything else needs a bearer token.
func (h *Handler) Register(r chi.Router) {
	r.Get("/websites/{siteID}/components/visible", h.handleListPublished)

	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireAuth(h.validator, h.logger))
		pr.Use(request.ContentTypeJSON)
		pr.Get("/websites/{siteID}/components", h.handleList)
		pr.Post("/websites/{siteID}/components", h.handleAdd)
		pr.Put("/websites/{siteID}/components/reorder", h.handleReorder)
		pr.Get("/websites/{siteID}/components/{id}", h.handleGet)
		pr.Put("/websites/{siteID}/components/{id}", h.handleUpdate)
		pr.Delete("/websites/{siteID}/components/{id}", h.handleDelete)
	})
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	siteID, ok := h.siteID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.AddBindingRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	detail, err := h.service.AddBinding(ctx, siteID, req)
	if err != nil {
		h.logFailure(ctx, "failed to add binding", err)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "binding added",
		"site_id", siteID.String(),
		"binding_id", detail.Binding.ID.String(),
		"position", detail.Binding.Position,
		"request_id", requestID,
	)
	httputil.WriteJSON(w, http.StatusCreated, toBindingRecord(detail))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID, ok := h.siteID(w, r)
	if !ok {
		return
	}
	visibleOnly := false
	if raw := r.URL.Query().Get("visible"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "visible must be true or false"))
			return
		}
		visibleOnly = v
	}
	details, err := h.service.ListBindings(ctx, siteID, visibleOnly)
	if err != nil {
		h.logFailure(ctx, "failed to list bindings", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBindingRecords(details))
}

func (h *Handler) handleListPublished(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID, ok := h.siteID(w, r)
	if !ok {
		return
	}
	details, err := h.service.ListPublishedBindings(ctx, siteID)
	if err != nil {
		h.logFailure(ctx, "failed to list published bindings", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBindingRecords(details))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	detail, ok := h.bindingInSite(w, r)
	if !ok {
		return
	}
	h.logger.DebugContext(ctx, "binding fetched", "binding_id", detail.Binding.ID.String())
	httputil.WriteJSON(w, http.StatusOK, toBindingRecord(detail))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current, ok := h.bindingInSite(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.UpdateBindingRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	detail, err := h.service.UpdateBinding(ctx, current.Binding.ID, req)
	if err != nil {
		h.logFailure(ctx, "failed to update binding", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBindingRecord(detail))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current, ok := h.bindingInSite(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteBinding(ctx, current.Binding.ID); err != nil {
		h.logFailure(ctx, "failed to delete binding", err)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "binding deleted",
		"site_id", current.Binding.SiteID.String(),
		"binding_id", current.Binding.ID.String(),
		"request_id", request.GetRequestID(ctx),
	)
	w.WriteHeader(http.StatusNoContent)
}

// handleReorder takes the complete new order as a JSON array of binding ids.
func (h *Handler) handleReorder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID, ok := h.siteID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.ReorderRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	details, err := h.service.Reorder(ctx, siteID, *req)
	if err != nil {
		h.logFailure(ctx, "failed to reorder bindings", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBindingRecords(details))
}

// bindingInSite loads the binding named in the path and answers 404 when it
// belongs to a different site than the one in the path.
func (h *Handler) bindingInSite(w http.ResponseWriter, r *http.Request) (*models.BindingDetail, bool) {
	ctx := r.Context()
	siteID, ok := h.siteID(w, r)
	if !ok {
		return nil, false
	}
	bindingID, err := id.ParseBindingID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	detail, err := h.service.GetBinding(ctx, bindingID)
	if err != nil {
		h.logFailure(ctx, "failed to load binding", err)
		httputil.WriteError(w, err)
		return nil, false
	}
	if detail.Binding.SiteID != siteID {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "binding not found").ForEntity("binding", bindingID))
		return nil, false
	}
	return detail, true
}

func (h *Handler) siteID(w http.ResponseWriter, r *http.Request) (id.SiteID, bool) {
	siteID, err := id.ParseSiteID(chi.URLParam(r, "siteID"))
	if err != nil {
		httputil.WriteError(w, err)
		return 0, false
	}
	return siteID, true
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"error", err,
		"request_id", request.GetRequestID(ctx),
	)
}
