// Package store persists policy records. The interface is consumed read-only
// by duplicate screening and read-write by the submission service.
package store

import (
	"context"
	"errors"

	"policydesk/internal/policy/models"
)

// ErrNotFound keeps store-specific 404s consistent across implementations.
var ErrNotFound = errors.New("policy record not found")

// ErrPolicyNumberTaken surfaces the uniqueness constraint owned by the
// backing store. Two sessions racing past duplicate-check both reach Insert;
// the store decides the second one loses.
var ErrPolicyNumberTaken = errors.New("policy number already registered for this account")

// RecordStore is the record-set collaborator. ListByOwner returns records
// ordered by creation time so duplicate verdicts are reproducible for
// identical record sets.
type RecordStore interface {
	ListByOwner(ctx context.Context, ownerID string) ([]*models.PolicyRecord, error)
	GetByID(ctx context.Context, ownerID, id string) (*models.PolicyRecord, error)
	Insert(ctx context.Context, rec *models.PolicyRecord) error
	Update(ctx context.Context, rec *models.PolicyRecord) error
	Delete(ctx context.Context, ownerID, id string) error
}
