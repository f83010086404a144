package renewal

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"policydesk/internal/draft"
	"policydesk/internal/policy/models"
	"policydesk/internal/policy/store"
	dErrors "policydesk/pkg/domainerrors"
)

var passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "policydesk_renewal_passes_total",
	Help: "Renewal pass lifecycle transitions",
}, []string{"event"})

var queueLength = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "policydesk_renewal_queue_length",
	Help:    "Queue size at the start of a renewal pass",
	Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
})

// Phase is the coordinator's position in the renewal lifecycle.
type Phase string

const (
	// PhaseEditing: the queue head is seeded into the draft store and being edited.
	PhaseEditing Phase = "editing"
	// PhaseAwaitingNext: the head was submitted and popped; the caller chooses
	// to continue with the next record or stop.
	PhaseAwaitingNext Phase = "awaiting_next"
	// PhaseFinished: the queue is empty and its storage deleted.
	PhaseFinished Phase = "finished"
)

// State is what the caller needs to render the renewal workflow.
type State struct {
	Phase     Phase    `json:"phase"`
	CurrentID string   `json:"current_id,omitempty"`
	Remaining int      `json:"remaining"`
	Queue     []string `json:"queue,omitempty"`
}

// Scope derives the draft-store scope for a record under renewal.
func Scope(recordID string) string {
	return "renew-" + recordID
}

// Coordinator drives the persisted renewal queue. Popping the head after a
// successful submission is the only queue mutation; there is no reordering
// and no skipping.
type Coordinator struct {
	logger  *slog.Logger
	queues  QueueStore
	drafts  draft.Store
	records store.RecordStore
}

func NewCoordinator(logger *slog.Logger, queues QueueStore, drafts draft.Store, records store.RecordStore) *Coordinator {
	return &Coordinator{logger: logger, queues: queues, drafts: drafts, records: records}
}

// Start persists a fresh queue and seeds the head record into the draft
// store. Identifiers must be unique and owned by the caller.
func (c *Coordinator) Start(ctx context.Context, ownerID string, ids []string) (*State, error) {
	if len(ids) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "renewal queue must not be empty")
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return nil, dErrors.New(dErrors.CodeBadRequest, "renewal queue contains an empty record id")
		}
		if seen[id] {
			return nil, dErrors.New(dErrors.CodeBadRequest, "renewal queue contains record "+id+" twice")
		}
		seen[id] = true
		if _, err := c.records.GetByID(ctx, ownerID, id); err != nil {
			return nil, dErrors.Wrap(dErrors.CodeNotFound, "record "+id+" not found", err)
		}
	}

	if err := c.queues.Save(ctx, ownerID, ids); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to persist renewal queue", err)
	}
	if err := c.seedDraft(ctx, ownerID, ids[0]); err != nil {
		return nil, err
	}

	passesTotal.WithLabelValues("started").Inc()
	queueLength.Observe(float64(len(ids)))
	return &State{Phase: PhaseEditing, CurrentID: ids[0], Remaining: len(ids), Queue: ids}, nil
}

// Current reports the resumable state after a reload or navigation.
func (c *Coordinator) Current(ctx context.Context, ownerID string) (*State, error) {
	ids, err := c.queues.Load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &State{Phase: PhaseEditing, CurrentID: ids[0], Remaining: len(ids), Queue: ids}, nil
}

// Advance pops the head after its successful submission. The shrunk queue is
// re-persisted before the next draft is seeded, so a reload mid-queue resumes
// at the correct remaining item rather than restarting. completedID guards
// against a stale double-advance.
func (c *Coordinator) Advance(ctx context.Context, ownerID, completedID string) (*State, error) {
	ids, err := c.queues.Load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if ids[0] != completedID {
		return nil, dErrors.New(dErrors.CodeConflict, "record "+completedID+" is not the current queue head")
	}

	rest := ids[1:]
	if len(rest) == 0 {
		if err := c.queues.Clear(ctx, ownerID); err != nil {
			return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to delete renewal queue", err)
		}
		c.logger.InfoContext(ctx, "renewal queue finished", "owner_id", ownerID)
		passesTotal.WithLabelValues("finished").Inc()
		return &State{Phase: PhaseFinished}, nil
	}

	if err := c.queues.Save(ctx, ownerID, rest); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to persist renewal queue", err)
	}
	if err := c.seedDraft(ctx, ownerID, rest[0]); err != nil {
		return nil, err
	}

	return &State{Phase: PhaseAwaitingNext, CurrentID: rest[0], Remaining: len(rest), Queue: rest}, nil
}

// Abort deletes the queue and the head's seeded draft so no partial state
// lingers after a user walks away.
func (c *Coordinator) Abort(ctx context.Context, ownerID string) error {
	ids, err := c.queues.Load(ctx, ownerID)
	if err != nil {
		if err == ErrNoQueue {
			return nil
		}
		return dErrors.Wrap(dErrors.CodeInternal, "failed to load renewal queue", err)
	}
	if err := c.drafts.Clear(ctx, ownerID, Scope(ids[0])); err != nil {
		c.logger.WarnContext(ctx, "failed to clear draft on renewal abort",
			"owner_id", ownerID, "record_id", ids[0], "error", err)
	}
	if err := c.queues.Clear(ctx, ownerID); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "failed to delete renewal queue", err)
	}
	passesTotal.WithLabelValues("aborted").Inc()
	return nil
}

func (c *Coordinator) seedDraft(ctx context.Context, ownerID, recordID string) error {
	rec, err := c.records.GetByID(ctx, ownerID, recordID)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeNotFound, "record "+recordID+" not found", err)
	}
	if err := c.drafts.Save(ctx, ownerID, Scope(recordID), models.FromRecord(rec)); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "failed to seed renewal draft", err)
	}
	return nil
}
