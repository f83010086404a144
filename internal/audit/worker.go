package audit

import (
	"context"
	"log/slog"
)

// Worker consumes audit events from a channel and hands them to the sink.
// It decouples domain code from broker latency; a full inbox drops the event
// with a log line rather than stalling a submission.
type Worker struct {
	logger *slog.Logger
	sink   Sink
	inbox  chan Event
}

func NewWorker(logger *slog.Logger, sink Sink, buffer int) *Worker {
	if buffer <= 0 {
		buffer = 256
	}
	return &Worker{logger: logger, sink: sink, inbox: make(chan Event, buffer)}
}

// Emit enqueues an event for background delivery.
func (w *Worker) Emit(event Event) {
	select {
	case w.inbox <- event:
	default:
		w.logger.Warn("audit inbox full, dropping event",
			"action", event.Action, "owner_id", event.OwnerID)
	}
}

// Run delivers events until the context is cancelled. Delivery failures are
// logged and skipped; audit must never take the workflow down.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "failed to append audit event",
					"action", event.Action, "error", err)
			}
		}
	}
}
