// Package renewal sequences edits over a queue of record identifiers pending
// renewal. The queue is persisted outside the process so page reloads resume
// at the correct remaining item; popping is the only mutation.
package renewal

import (
	"context"
	"errors"
)

// ErrNoQueue is returned when no renewal queue exists for the owner.
var ErrNoQueue = errors.New("no active renewal queue")

// QueueStore persists the ordered list of record identifiers awaiting renewal.
// One queue per owner; terminal states delete the key entirely.
type QueueStore interface {
	Save(ctx context.Context, ownerID string, ids []string) error
	Load(ctx context.Context, ownerID string) ([]string, error)
	Clear(ctx context.Context, ownerID string) error
}
