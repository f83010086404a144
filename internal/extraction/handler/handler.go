// Package handler exposes the document extraction endpoint.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"policydesk/internal/audit"
	"policydesk/internal/extraction"
	"policydesk/internal/platform/httputil"
	"policydesk/internal/platform/middleware"
	"policydesk/internal/policy/models"
	dErrors "policydesk/pkg/domainerrors"
)

// Handler runs the extraction pipeline for uploaded policy documents.
type Handler struct {
	pipeline *extraction.Pipeline
	logger   *slog.Logger
	auditor  audit.Recorder
}

// New constructs an extraction handler with its dependencies.
func New(pipeline *extraction.Pipeline, logger *slog.Logger, auditor audit.Recorder) *Handler {
	return &Handler{pipeline: pipeline, logger: logger, auditor: auditor}
}

// Register mounts the extraction endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/extractions", h.HandleExtract)
}

// HandleExtract handles POST /extractions requests. The multipart form
// carries the document, the current draft to merge into, and an optional
// exclude_id for edit and renewal flows.
func (h *Handler) HandleExtract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.GetOwnerID(ctx)
	requestID := middleware.GetRequestID(ctx)
	start := time.Now()

	if err := r.ParseMultipartForm(extraction.MaxFileSize + (1 << 20)); err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "could not parse multipart form", err))
		return
	}

	d := &models.Draft{}
	if raw := r.FormValue("draft"); raw != "" {
		if err := json.Unmarshal([]byte(raw), d); err != nil {
			httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid draft JSON", err))
			return
		}
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "document part is required", err))
		return
	}
	defer file.Close()

	outcome, exErr := h.pipeline.Run(ctx, ownerID, extraction.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Reader:      file,
	}, d, r.FormValue("exclude_id"))
	if exErr != nil {
		h.auditor.Emit(audit.Event{
			Timestamp: time.Now().UTC(),
			OwnerID:   ownerID,
			Action:    audit.ActionExtractionFailed,
			Detail:    string(exErr.Kind),
			RequestID: requestID,
			Device:    middleware.GetDevice(ctx),
		})
		h.logger.WarnContext(ctx, "extraction failed",
			"request_id", requestID,
			"owner_id", ownerID,
			"kind", exErr.Kind,
			"stage", exErr.Stage,
			"error", exErr,
		)
		httputil.WriteErrorDetail(w, statusForKind(exErr.Kind), "extraction_failed", exErr.Message, map[string]any{
			"kind":      string(exErr.Kind),
			"retryable": exErr.Retryable(),
		})
		return
	}

	h.logger.InfoContext(ctx, "extraction succeeded",
		"request_id", requestID,
		"owner_id", ownerID,
		"filename", header.Filename,
		"verdict", outcome.Verdict.Kind,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	verdict := map[string]any{"kind": string(outcome.Verdict.Kind)}
	if outcome.Verdict.Matched != nil {
		verdict["matched"] = outcome.Verdict.Matched
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"result":  outcome.Result,
		"draft":   outcome.Draft,
		"verdict": verdict,
	})
}

func statusForKind(kind extraction.Kind) int {
	switch kind {
	case extraction.KindFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case extraction.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case extraction.KindCorruptFile, extraction.KindNoDataExtracted:
		return http.StatusUnprocessableEntity
	case extraction.KindRateLimited:
		return http.StatusTooManyRequests
	case extraction.KindNetworkError, extraction.KindAuthExpired:
		return http.StatusBadGateway
	case extraction.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
