// Package service implements final validation and at-most-once commit of
// policy records. It re-runs duplicate screening immediately before the write
// so the race between the form's initial check and the final submit stays
// closed, and it orders the document upload before the record write.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"policydesk/internal/audit"
	"policydesk/internal/document"
	"policydesk/internal/draft"
	"policydesk/internal/platform/middleware"
	"policydesk/internal/policy/models"
	"policydesk/internal/policy/overlap"
	"policydesk/internal/policy/store"
	dErrors "policydesk/pkg/domainerrors"
)

// Mode distinguishes first-time registration from edits/renewals.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeUpdate Mode = "update"
)

// ErrSubmissionInFlight is returned when a submission for the same workflow
// scope is already outstanding; the repeated call is a no-op.
var ErrSubmissionInFlight = errors.New("a submission is already in progress")

// DuplicateError blocks submission; the user recovers by editing the
// conflicting field.
type DuplicateError struct {
	Verdict models.DuplicateVerdict
}

func (e *DuplicateError) Error() string {
	if e.Verdict.Kind == models.VerdictExactDuplicate {
		return "a policy with this number already exists"
	}
	return "an overlapping policy exists for this vehicle and insurer"
}

// Attachment is the optional policy document uploaded with the submission.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Result reports a committed submission. DocumentSaved is false when the
// record was saved but its document upload failed; callers notify that case
// distinctly from a submission failure.
type Result struct {
	Record        *models.PolicyRecord `json:"record"`
	DocumentSaved bool                 `json:"document_saved"`
	DocumentError string               `json:"document_error,omitempty"`
}

var submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "policydesk_submissions_total",
	Help: "Record submissions by outcome",
}, []string{"mode", "outcome"})

var duplicateVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "policydesk_duplicate_verdicts_total",
	Help: "Duplicate screening verdicts by kind",
}, []string{"kind"})

// Service is the submission side of the workflow core.
type Service struct {
	logger    *slog.Logger
	records   store.RecordStore
	drafts    draft.Store
	documents document.Store // nil when document storage is not configured
	auditor   audit.Recorder

	mu       sync.Mutex
	inflight map[string]bool
}

func NewService(logger *slog.Logger, records store.RecordStore, drafts draft.Store, documents document.Store, auditor audit.Recorder) *Service {
	return &Service{
		logger:    logger,
		records:   records,
		drafts:    drafts,
		documents: documents,
		auditor:   auditor,
		inflight:  make(map[string]bool),
	}
}

// CheckDuplicate screens a draft against the owner's records without
// committing anything. excludeID carries the record under edit so a renewal
// does not flag itself.
func (s *Service) CheckDuplicate(ctx context.Context, ownerID string, candidate overlap.Candidate, excludeID string) (models.DuplicateVerdict, error) {
	existing, err := s.records.ListByOwner(ctx, ownerID)
	if err != nil {
		return models.DuplicateVerdict{}, dErrors.Wrap(dErrors.CodeInternal, "failed to load existing records", err)
	}
	verdict := overlap.CheckDuplicate(candidate, existing, excludeID)
	duplicateVerdictsTotal.WithLabelValues(string(verdict.Kind)).Inc()
	return verdict, nil
}

// Submit validates the draft, re-screens duplicates, uploads the attached
// document, and commits. Exactly one submission per (owner, scope) can be in
// flight; concurrent repeats return ErrSubmissionInFlight without touching
// storage. On success the draft scope is cleared.
func (s *Service) Submit(ctx context.Context, ownerID, scope string, d *models.Draft, mode Mode, attachment *Attachment) (*Result, error) {
	ctx, span := otel.Tracer("policy").Start(ctx, "policy.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("policy.mode", string(mode)))

	guard := ownerID + ":" + scope
	s.mu.Lock()
	if s.inflight[guard] {
		s.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	s.inflight[guard] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, guard)
		s.mu.Unlock()
	}()

	rec, err := d.ValidateAndBuild()
	if err != nil {
		submissionsTotal.WithLabelValues(string(mode), "validation_failed").Inc()
		return nil, err
	}
	rec.OwnerID = ownerID

	var existing *models.PolicyRecord
	excludeID := ""
	switch mode {
	case ModeCreate:
		rec.ID = uuid.NewString()
	case ModeUpdate:
		if rec.ID == "" {
			return nil, dErrors.New(dErrors.CodeBadRequest, "update requires a record id")
		}
		existing, err = s.records.GetByID(ctx, ownerID, rec.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
			}
			return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load record", err)
		}
		excludeID = rec.ID
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown submission mode")
	}

	// Re-screen against the latest record set right before committing.
	verdict, err := s.CheckDuplicate(ctx, ownerID, overlap.CandidateFromRecord(rec), excludeID)
	if err != nil {
		submissionsTotal.WithLabelValues(string(mode), "error").Inc()
		return nil, err
	}
	if verdict.IsDuplicate() {
		submissionsTotal.WithLabelValues(string(mode), "duplicate").Inc()
		return nil, &DuplicateError{Verdict: verdict}
	}

	result := &Result{DocumentSaved: attachment == nil}

	// Upload before the record write; a failed upload degrades to "saved
	// without document" instead of aborting the submission.
	if attachment != nil {
		if s.documents == nil {
			result.DocumentError = "document storage is not configured"
		} else {
			path, upErr := s.documents.Upload(ctx, ownerID, rec.PolicyNumber, attachment.Filename, attachment.ContentType, attachment.Data)
			if upErr != nil {
				s.logger.WarnContext(ctx, "document upload failed, saving record without document",
					"owner_id", ownerID, "error", upErr)
				result.DocumentError = "document upload failed"
			} else {
				rec.DocumentPath = path
				result.DocumentSaved = true
			}
		}
	}

	now := time.Now().UTC()
	rec.UpdatedAt = now
	switch mode {
	case ModeCreate:
		rec.CreatedAt = now
		err = s.records.Insert(ctx, rec)
	case ModeUpdate:
		rec.CreatedAt = existing.CreatedAt
		if rec.DocumentPath == "" {
			rec.DocumentPath = existing.DocumentPath
		}
		err = s.records.Update(ctx, rec)
	}
	if err != nil {
		if errors.Is(err, store.ErrPolicyNumberTaken) {
			// Another session won the race past duplicate-check.
			submissionsTotal.WithLabelValues(string(mode), "duplicate").Inc()
			return nil, dErrors.Wrap(dErrors.CodeConflict, "policy number already registered", err)
		}
		submissionsTotal.WithLabelValues(string(mode), "error").Inc()
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to save record", err)
	}

	if clearErr := s.drafts.Clear(ctx, ownerID, scope); clearErr != nil {
		// The commit already happened; a stale draft is an annoyance, not a
		// failure.
		s.logger.WarnContext(ctx, "failed to clear draft after submission",
			"owner_id", ownerID, "scope", scope, "error", clearErr)
	}

	action := audit.ActionPolicyCreated
	if mode == ModeUpdate {
		action = audit.ActionPolicyUpdated
	}
	s.auditor.Emit(audit.Event{
		Timestamp: now,
		OwnerID:   ownerID,
		Action:    action,
		RecordID:  rec.ID,
		Detail:    documentDetail(result),
		RequestID: middleware.GetRequestID(ctx),
		Device:    middleware.GetDevice(ctx),
	})

	submissionsTotal.WithLabelValues(string(mode), "succeeded").Inc()
	result.Record = rec
	return result, nil
}

// GetRecord loads one record for the owner, used to seed edit flows.
func (s *Service) GetRecord(ctx context.Context, ownerID, id string) (*models.PolicyRecord, error) {
	rec, err := s.records.GetByID(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load record", err)
	}
	return rec, nil
}

func documentDetail(r *Result) string {
	if r.DocumentError != "" {
		return fmt.Sprintf("saved without document: %s", r.DocumentError)
	}
	return ""
}

// CandidateFromDraft builds a screening candidate from raw draft fields,
// tolerating partially filled forms.
func CandidateFromDraft(d *models.Draft) overlap.Candidate {
	c := overlap.Candidate{
		PolicyNumber:  d.PolicyNumber,
		VehicleNumber: d.VehicleNumber,
		InsurerName:   d.InsurerName,
	}
	if t, err := time.Parse(models.DateFormat, strings.TrimSpace(d.ActiveDate)); err == nil {
		c.ActiveDate = t
	}
	if t, err := time.Parse(models.DateFormat, strings.TrimSpace(d.ExpiryDate)); err == nil {
		c.ExpiryDate = t
	}
	return c
}
