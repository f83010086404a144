package store

import (
	"context"
	"sort"
	"sync"

	"policydesk/internal/policy/models"
)

// InMemoryStore keeps records per owner behind a mutex. It backs unit tests
// and development runs without Postgres.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.PolicyRecord // keyed by record ID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*models.PolicyRecord)}
}

func (s *InMemoryStore) ListByOwner(_ context.Context, ownerID string) ([]*models.PolicyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.PolicyRecord
	for _, rec := range s.records {
		if rec.OwnerID == ownerID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) GetByID(_ context.Context, ownerID, id string) (*models.PolicyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemoryStore) Insert(_ context.Context, rec *models.PolicyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	number := models.Normalize(rec.PolicyNumber)
	for _, existing := range s.records {
		if existing.OwnerID == rec.OwnerID && models.Normalize(existing.PolicyNumber) == number {
			return ErrPolicyNumberTaken
		}
	}
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, rec *models.PolicyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[rec.ID]
	if !ok || existing.OwnerID != rec.OwnerID {
		return ErrNotFound
	}
	number := models.Normalize(rec.PolicyNumber)
	for id, other := range s.records {
		if id != rec.ID && other.OwnerID == rec.OwnerID && models.Normalize(other.PolicyNumber) == number {
			return ErrPolicyNumberTaken
		}
	}
	cp := *rec
	cp.CreatedAt = existing.CreatedAt
	s.records[rec.ID] = &cp
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}
