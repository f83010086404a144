// Package draft persists the session-scoped working copy of a record being
// created or edited. Saves are write-through on every field mutation, so a
// reload loses at most the in-flight keystroke; keys expire with the session
// because drafts carry personal data.
package draft

import (
	"context"
	"errors"

	"policydesk/internal/policy/models"
)

// ErrNotFound is returned when no draft exists under the scope.
var ErrNotFound = errors.New("draft not found")

// Store is the injected draft persistence collaborator. The scope key derives
// from the workflow purpose ("new-record", "edit-{id}", "renew-{id}") so
// concurrent draft workflows never collide.
type Store interface {
	Save(ctx context.Context, ownerID, scope string, d *models.Draft) error
	Load(ctx context.Context, ownerID, scope string) (*models.Draft, error)
	Clear(ctx context.Context, ownerID, scope string) error
}
