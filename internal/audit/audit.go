// Package audit records policy lifecycle events for compliance review.
// Domain code emits events through a channel-fed worker so a slow broker
// never blocks a submission.
package audit

import (
	"context"
	"time"
)

// Action names the lifecycle step an event records.
type Action string

const (
	ActionPolicyCreated    Action = "policy_created"
	ActionPolicyUpdated    Action = "policy_updated"
	ActionRenewalStarted   Action = "renewal_started"
	ActionRenewalFinished  Action = "renewal_finished"
	ActionRenewalAborted   Action = "renewal_aborted"
	ActionExtractionFailed Action = "extraction_failed"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	OwnerID   string    `json:"owner_id"`
	Action    Action    `json:"action"`
	RecordID  string    `json:"record_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Device    string    `json:"device,omitempty"`
}

// Sink delivers events to durable storage.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Recorder is what domain services depend on. Emit never blocks domain code
// longer than the channel append.
type Recorder interface {
	Emit(event Event)
}
