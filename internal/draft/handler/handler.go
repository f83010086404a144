// Package handler exposes scoped draft persistence over HTTP.
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"policydesk/internal/draft"
	"policydesk/internal/platform/httputil"
	"policydesk/internal/platform/middleware"
	"policydesk/internal/policy/models"
	dErrors "policydesk/pkg/domainerrors"
)

// Handler wires draft endpoints to a draft store.
type Handler struct {
	drafts draft.Store
	logger *slog.Logger
}

// New constructs a draft handler with its dependencies.
func New(drafts draft.Store, logger *slog.Logger) *Handler {
	return &Handler{drafts: drafts, logger: logger}
}

// Register mounts draft endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/drafts/{scope}", h.HandleLoad)
	r.Put("/drafts/{scope}", h.HandleSave)
	r.Delete("/drafts/{scope}", h.HandleClear)
}

// HandleLoad handles GET /drafts/{scope} requests.
func (h *Handler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.GetOwnerID(ctx)
	scope := chi.URLParam(r, "scope")

	d, err := h.drafts.Load(ctx, ownerID, scope)
	if err != nil {
		if errors.Is(err, draft.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no draft for this scope"))
			return
		}
		h.logger.ErrorContext(ctx, "draft load failed",
			"request_id", middleware.GetRequestID(ctx), "owner_id", ownerID, "scope", scope, "error", err)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "failed to load draft", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

// HandleSave handles PUT /drafts/{scope} requests. The body is the full
// draft; saving replaces whatever the scope held.
func (h *Handler) HandleSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.GetOwnerID(ctx)
	scope := chi.URLParam(r, "scope")

	var d models.Draft
	if err := httputil.Decode(r, &d); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.drafts.Save(ctx, ownerID, scope, &d); err != nil {
		h.logger.ErrorContext(ctx, "draft save failed",
			"request_id", middleware.GetRequestID(ctx), "owner_id", ownerID, "scope", scope, "error", err)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "failed to save draft", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleClear handles DELETE /drafts/{scope} requests. Clearing an absent
// scope succeeds.
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.GetOwnerID(ctx)
	scope := chi.URLParam(r, "scope")

	if err := h.drafts.Clear(ctx, ownerID, scope); err != nil {
		h.logger.ErrorContext(ctx, "draft clear failed",
			"request_id", middleware.GetRequestID(ctx), "owner_id", ownerID, "scope", scope, "error", err)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "failed to clear draft", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
