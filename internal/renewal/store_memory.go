package renewal

import (
	"context"
	"sync"
)

// InMemoryQueueStore backs unit tests and development runs without Redis.
type InMemoryQueueStore struct {
	mu     sync.RWMutex
	queues map[string][]string
}

func NewInMemoryQueueStore() *InMemoryQueueStore {
	return &InMemoryQueueStore{queues: make(map[string][]string)}
}

func (s *InMemoryQueueStore) Save(_ context.Context, ownerID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[ownerID] = append([]string(nil), ids...)
	return nil
}

func (s *InMemoryQueueStore) Load(_ context.Context, ownerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, ok := s.queues[ownerID]
	if !ok {
		return nil, ErrNoQueue
	}
	return append([]string(nil), ids...), nil
}

func (s *InMemoryQueueStore) Clear(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queues, ownerID)
	return nil
}
