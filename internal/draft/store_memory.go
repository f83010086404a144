package draft

import (
	"context"
	"sync"

	"policydesk/internal/policy/models"
)

// InMemoryStore backs unit tests and development runs without Redis.
type InMemoryStore struct {
	mu     sync.RWMutex
	drafts map[string]models.Draft
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{drafts: make(map[string]models.Draft)}
}

func (s *InMemoryStore) Save(_ context.Context, ownerID, scope string, d *models.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[key(ownerID, scope)] = *d
	return nil
}

func (s *InMemoryStore) Load(_ context.Context, ownerID, scope string) (*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[key(ownerID, scope)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := d
	return &cp, nil
}

func (s *InMemoryStore) Clear(_ context.Context, ownerID, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, key(ownerID, scope))
	return nil
}
