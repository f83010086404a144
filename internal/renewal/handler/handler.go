// Package handler exposes the renewal queue lifecycle over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"policydesk/internal/audit"
	"policydesk/internal/platform/httputil"
	"policydesk/internal/platform/middleware"
	"policydesk/internal/renewal"
	dErrors "policydesk/pkg/domainerrors"
)

// StartRequest opens a renewal pass over the listed records, in order.
type StartRequest struct {
	RecordIDs []string `json:"record_ids"`
}

// AdvanceRequest reports the record whose renewal was just submitted.
type AdvanceRequest struct {
	CompletedID string `json:"completed_id"`
}

// Handler wires renewal endpoints to the coordinator.
type Handler struct {
	coordinator *renewal.Coordinator
	logger      *slog.Logger
	auditor     audit.Recorder
}

// New constructs a renewal handler with its dependencies.
func New(coordinator *renewal.Coordinator, logger *slog.Logger, auditor audit.Recorder) *Handler {
	return &Handler{coordinator: coordinator, logger: logger, auditor: auditor}
}

// Register mounts renewal endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/renewals", h.HandleStart)
	r.Get("/renewals", h.HandleCurrent)
	r.Post("/renewals/advance", h.HandleAdvance)
	r.Delete("/renewals", h.HandleAbort)
}

// HandleStart handles POST /renewals requests.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.GetOwnerID(ctx)

	var req StartRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	state, err := h.coordinator.Start(ctx, ownerID, req.RecordIDs)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.emit(ctx, ownerID, audit.ActionRenewalStarted, state.CurrentID)
	h.logger.InfoContext(ctx, "renewal pass started",
		"request_id", middleware.GetRequestID(ctx),
		"owner_id", ownerID,
		"queue_size", state.Remaining,
	)
	httputil.WriteJSON(w, http.StatusCreated, state)
}

// HandleCurrent handles GET /renewals requests.
func (h *Handler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.GetOwnerID(ctx)

	state, err := h.coordinator.Current(ctx, ownerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}

// HandleAdvance handles POST /renewals/advance requests, called after the
// head record's renewal was submitted.
func (h *Handler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.GetOwnerID(ctx)

	var req AdvanceRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	state, err := h.coordinator.Advance(ctx, ownerID, req.CompletedID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if state.Phase == renewal.PhaseFinished {
		h.emit(ctx, ownerID, audit.ActionRenewalFinished, req.CompletedID)
	}
	h.logger.InfoContext(ctx, "renewal advanced",
		"request_id", middleware.GetRequestID(ctx),
		"owner_id", ownerID,
		"completed_id", req.CompletedID,
		"phase", state.Phase,
		"remaining", state.Remaining,
	)
	httputil.WriteJSON(w, http.StatusOK, state)
}

// HandleAbort handles DELETE /renewals requests.
func (h *Handler) HandleAbort(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.GetOwnerID(ctx)

	if err := h.coordinator.Abort(ctx, ownerID); err != nil {
		h.writeError(w, err)
		return
	}
	h.emit(ctx, ownerID, audit.ActionRenewalAborted, "")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, renewal.ErrNoQueue) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no active renewal queue"))
		return
	}
	httputil.WriteError(w, err)
}

func (h *Handler) emit(ctx context.Context, ownerID string, action audit.Action, recordID string) {
	h.auditor.Emit(audit.Event{
		Timestamp: time.Now().UTC(),
		OwnerID:   ownerID,
		Action:    action,
		RecordID:  recordID,
		RequestID: middleware.GetRequestID(ctx),
		Device:    middleware.GetDevice(ctx),
	})
}
