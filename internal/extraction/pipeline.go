// Package extraction turns an uploaded policy document into best-effort
// structured field values. The pipeline runs validate, encode, service call,
// map, merge, and duplicate-screen as explicit steps so each failure mode is
// classified where it occurs instead of caught globally.
package extraction

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"policydesk/internal/policy/models"
	"policydesk/internal/policy/overlap"
	"policydesk/internal/policy/store"
)

// Stage tracks how far a run has progressed. Failed runs retain the stage
// they failed at; a retry replays from validation with the same file.
type Stage string

const (
	StageIdle            Stage = "idle"
	StageValidating      Stage = "validating"
	StageEncoding        Stage = "encoding"
	StageAwaitingService Stage = "awaiting_service"
	StageSucceeded       Stage = "succeeded"
	StageFailed          Stage = "failed"
)

// MaxFileSize is the upload ceiling enforced before anything touches the
// network.
const MaxFileSize = 10 << 20 // 10 MB

// ServiceDateFormat is the one fixed format the collaborator emits dates in.
const ServiceDateFormat = "02/01/2006"

var allowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
}

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

var extractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "policydesk_extractions_total",
	Help: "Document extractions by outcome",
}, []string{"outcome"})

var extractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "policydesk_extraction_duration_seconds",
	Help:    "End-to-end extraction pipeline latency",
	Buckets: prometheus.DefBuckets,
})

// File is the uploaded document before validation.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

/// Outcome is a successful run: the read-once result, the draft it was merged
// into, and the duplicate verdict computed from the extracted identity fields
// so conflicts surface before the user invests time editing.
type Outcome struct {
	Result  models.ExtractionResult
	Draft   *models.Draft
	Verdict models.DuplicateVerdict
}

// Pipeline orchestrates one extraction run. It holds no per-run state;
// concurrent runs are independent.
type Pipeline struct {
	logger  *slog.Logger
	client  Client
	records store.RecordStore
}

func NewPipeline(logger *slog.Logger, client Client, records store.RecordStore) *Pipeline {
	return &Pipeline{logger: logger, client: client, records: records}
}

// Run executes the full pipeline against the owner's draft. The returned
// *Error carries the classified kind and the stage reached; the draft is
// only mutated on success.
func (p *Pipeline) Run(ctx context.Context, ownerID string, file File, d *models.Draft, excludeID string) (*Outcome, *Error) {
	start := time.Now()
	ctx, span := otel.Tracer("extraction").Start(ctx, "extraction.Run")
	defer span.End()

	outcome, err := p.run(ctx, ownerID, file, d, excludeID)
	if err != nil {
		span.SetAttributes(attribute.String("extraction.failure", string(err.Kind)))
		extractionsTotal.WithLabelValues(string(err.Kind)).Inc()
		return nil, err
	}
	extractionsTotal.WithLabelValues("succeeded").Inc()
	extractionDuration.Observe(time.Since(start).Seconds())
	return outcome, nil
}

func (p *Pipeline) run(ctx context.Context, ownerID string, file File, d *models.Draft, excludeID string) (*Outcome, *Error) {
	if err := Validate(file); err != nil {
		return nil, err
	}

	payload, err := Encode(file)
	if err != nil {
		return nil, err
	}

	raw, callErr := p.client.Extract(ctx, payload)
	if callErr != nil {
		kind := classify(callErr)
		p.logger.WarnContext(ctx, "extraction service call failed",
			"kind", kind, "owner_id", ownerID, "error", callErr)
		return nil, &Error{Kind: kind, Stage: StageAwaitingService, Message: "document extraction failed", Underlying: callErr}
	}

	result := MapResult(raw)
	if result == (models.ExtractionResult{}) {
		return nil, &Error{Kind: KindNoDataExtracted, Stage: StageAwaitingService, Message: "service found no usable fields"}
	}

	merged := *d
	merged.Merge(result)

	// Screen for duplicates with whatever identity fields came back, so the
	// user learns about conflicts before reviewing the rest of the form.
	verdict := models.DuplicateVerdict{Kind: models.VerdictNone}
	existing, listErr := p.records.ListByOwner(ctx, ownerID)
	if listErr != nil {
		// A failed duplicate query must not discard a good extraction; the
		// submission service re-checks before committing anyway.
		p.logger.ErrorContext(ctx, "duplicate screen after extraction failed",
			"owner_id", ownerID, "error", listErr)
	} else {
		verdict = overlap.CheckDuplicate(candidateFromDraft(&merged), existing, excludeID)
	}

	*d = merged
	return &Outcome{Result: result, Draft: d, Verdict: verdict}, nil
}

// Validate enforces the size ceiling and format allow-list. Violations never
// reach the network.
func Validate(file File) *Error {
	if file.Size > MaxFileSize {
		return &Error{Kind: KindFileTooLarge, Stage: StageValidating, Message: "document exceeds the 10 MB limit"}
	}
	ct := strings.ToLower(strings.TrimSpace(file.ContentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if allowedContentTypes[ct] {
		return nil
	}
	if i := strings.LastIndex(file.Name, "."); i >= 0 && allowedExtensions[strings.ToLower(file.Name[i:])] {
		return nil
	}
	return &Error{Kind: KindUnsupportedFormat, Stage: StageValidating, Message: "only PDF, JPEG, PNG and WebP documents are supported"}
}

// Encode reads the payload into the transport encoding. A short or failed
// read means the upload stream was corrupt.
func Encode(file File) (string, *Error) {
	data, err := io.ReadAll(io.LimitReader(file.Reader, MaxFileSize+1))
	if err != nil {
		return "", &Error{Kind: KindCorruptFile, Stage: StageEncoding, Message: "could not read the uploaded document", Underlying: err}
	}
	if int64(len(data)) > MaxFileSize {
		return "", &Error{Kind: KindFileTooLarge, Stage: StageEncoding, Message: "document exceeds the 10 MB limit"}
	}
	if len(data) == 0 {
		return "", &Error{Kind: KindCorruptFile, Stage: StageEncoding, Message: "uploaded document is empty"}
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// MapResult coerces raw service strings into draft field conventions:
// identifiers upper-cased, the category lowered onto the enum, the service
// date format re-rendered into ours, and numerics stripped of formatting.
func MapResult(raw *RawResult) models.ExtractionResult {
	result := models.ExtractionResult{
		PolicyNumber:  models.Normalize(raw.PolicyNumber),
		HolderName:    strings.TrimSpace(raw.ClientName),
		VehicleNumber: models.Normalize(raw.VehicleNumber),
		VehicleMake:   strings.TrimSpace(raw.VehicleMake),
		VehicleModel:  strings.TrimSpace(raw.VehicleModel),
		InsurerName:   strings.TrimSpace(raw.InsurerName),
		ContactNumber: digitsOnly(raw.ContactNumber),
		Category:      mapCategory(raw.InsuranceType),
		NetPremium:    numeric(raw.NetPremium),
		SumInsured:    numeric(raw.SumInsured),
		GrossPremium:  numeric(raw.GrossPremium),
	}
	if t, err := time.Parse(ServiceDateFormat, strings.TrimSpace(raw.ActiveDate)); err == nil {
		result.ActiveDate = t.Format(models.DateFormat)
	}
	if len(result.ContactNumber) != 10 {
		result.ContactNumber = ""
	}
	return result
}

func mapCategory(insuranceType string) string {
	switch strings.ToLower(strings.TrimSpace(insuranceType)) {
	case "vehicle", "motor", "car", "two wheeler", "auto":
		return string(models.CategoryVehicle)
	case "health", "mediclaim":
		return string(models.CategoryHealth)
	case "life", "term", "endowment":
		return string(models.CategoryLife)
	case "":
		return ""
	default:
		return string(models.CategoryOther)
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// numeric strips currency symbols and separators, keeping digits and at most
// the decimal point.
func numeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func candidateFromDraft(d *models.Draft) overlap.Candidate {
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
