// Package handler wires the policy submission endpoints.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"policydesk/internal/extraction"
	"policydesk/internal/platform/httputil"
	"policydesk/internal/platform/middleware"
	"policydesk/internal/policy/models"
	"policydesk/internal/policy/overlap"
	"policydesk/internal/policy/service"
	dErrors "policydesk/pkg/domainerrors"
)

// Service defines the submission operations the handler depends on.
type Service interface {
	Submit(ctx context.Context, ownerID, scope string, d *models.Draft, mode service.Mode, attachment *service.Attachment) (*service.Result, error)
	CheckDuplicate(ctx context.Context, ownerID string, candidate overlap.Candidate, excludeID string) (models.DuplicateVerdict, error)
}

// Handler wires policy endpoints to the submission service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a policy handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts policy endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/policies", h.HandleCreate)
	r.Put("/policies/{id}", h.HandleUpdate)
	r.Post("/policies/check-duplicate", h.HandleCheckDuplicate)
}

// HandleCreate handles POST /policies requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, service.ModeCreate, "")
}

// HandleUpdate handles PUT /policies/{id} requests.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, service.ModeUpdate, chi.URLParam(r, "id"))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, mode service.Mode, recordID string) {
	ctx := r.Context()
	ownerID := middleware.GetOwnerID(ctx)
	requestID := middleware.GetRequestID(ctx)
	start := time.Now()

	req, attachment, err := decodeSubmit(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Draft == nil {
		httputil.WriteErrorDetail(w, http.StatusBadRequest, "bad_request", "draft is required", nil)
		return
	}
	if mode == service.ModeUpdate {
		req.Draft.RecordID = recordID
	}
	scope := req.Scope
	if scope == "" {
		scope = defaultScope(mode, recordID)
	}

	result, err := h.service.Submit(ctx, ownerID, scope, req.Draft, mode, attachment)
	if err != nil {
		h.writeSubmitError(w, r, err, requestID)
		return
	}

	h.logger.InfoContext(ctx, "policy submitted",
		"request_id", requestID,
		"owner_id", ownerID,
		"record_id", result.Record.ID,
		"mode", mode,
		"document_saved", result.DocumentSaved,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	status := http.StatusOK
	if mode == service.ModeCreate {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, result)
}

// HandleCheckDuplicate handles POST /policies/check-duplicate requests.
func (h *Handler) HandleCheckDuplicate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.GetOwnerID(ctx)

	var req CheckDuplicateRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	candidate := service.CandidateFromDraft(&models.Draft{
		PolicyNumber:  req.PolicyNumber,
		VehicleNumber: req.VehicleNumber,
		InsurerName:   req.InsurerName,
		ActiveDate:    req.ActiveDate,
		ExpiryDate:    req.ExpiryDate,
	})
	verdict, err := h.service.CheckDuplicate(ctx, ownerID, candidate, req.ExcludeID)
	if err != nil {
		h.logger.ErrorContext(ctx, "duplicate check failed",
			"request_id", middleware.GetRequestID(ctx), "owner_id", ownerID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, verdictResponse(verdict))
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, r *http.Request, err error, requestID string) {
	ctx := r.Context()

	var verrs models.ValidationErrors
	if errors.As(err, &verrs) {
		httputil.WriteErrorDetail(w, http.StatusBadRequest, "validation_failed",
			"one or more fields are invalid", map[string]any{"fields": verrs})
		return
	}

	var dup *service.DuplicateError
	if errors.As(err, &dup) {
		httputil.WriteErrorDetail(w, http.StatusConflict, "duplicate_policy",
			"a matching policy already exists", map[string]any{"verdict": verdictResponse(dup.Verdict)})
		return
	}

	if errors.Is(err, service.ErrSubmissionInFlight) {
		httputil.WriteErrorDetail(w, http.StatusConflict, "submission_in_flight",
			"a submission for this draft is already in progress", nil)
		return
	}

	h.logger.ErrorContext(ctx, "policy submission failed",
		"request_id", requestID, "error", err)
	httputil.WriteError(w, err)
}

func defaultScope(mode service.Mode, recordID string) string {
	if mode == service.ModeUpdate {
		return "edit-" + recordID
	}
	return "new-record"
}

func verdictResponse(v models.DuplicateVerdict) map[string]any {
	resp := map[string]any{"kind": string(v.Kind)}
	if v.Matched != nil {
		resp["matched"] = v.Matched
	}
	return resp
}

func wrapBadRequest(message string, err error) error {
	return dErrors.Wrap(dErrors.CodeBadRequest, message, err)
}

// decodeSubmit accepts either a JSON body or a multipart form with a "draft"
// JSON field and an optional "document" part.
func decodeSubmit(r *http.Request) (*SubmitRequest, *service.Attachment, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var req SubmitRequest
		if err := httputil.Decode(r, &req); err != nil {
			return nil, nil, err
		}
		return &req, nil, nil
	}

	if err := r.ParseMultipartForm(extraction.MaxFileSize + (1 << 20)); err != nil {
		return nil, nil, wrapBadRequest("could not parse multipart form", err)
	}
	req := &SubmitRequest{Scope: r.FormValue("scope")}
	if raw := r.FormValue("draft"); raw != "" {
		req.Draft = &models.Draft{}
		if err := json.Unmarshal([]byte(raw), req.Draft); err != nil {
			return nil, nil, wrapBadRequest("invalid draft JSON", err)
		}
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return req, nil, nil
		}
		return nil, nil, wrapBadRequest("could not read document part", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, extraction.MaxFileSize+1))
	if err != nil {
		return nil, nil, wrapBadRequest("could not read document part", err)
	}
	return req, &service.Attachment{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
