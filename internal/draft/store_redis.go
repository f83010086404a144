package draft

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"policydesk/internal/policy/models"
)

var saveDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "policydesk_draft_save_duration_ms",
	Help:    "Latency of write-through draft saves in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const draftKeyPrefix = "draft:"

// RedisStore is the production draft store. Each draft lives under its own
// TTL'd key; Redis expiry stands in for the browser-session lifetime.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func key(ownerID, scope string) string {
	return draftKeyPrefix + ownerID + ":" + scope
}

// Save serializes the draft and refreshes the session TTL. Called on every
// field mutation, which is why the hot path uses goccy/go-json.
func (s *RedisStore) Save(ctx context.Context, ownerID, scope string, d *models.Draft) error {
	start := time.Now()
	defer func() {
		saveDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	return s.client.Set(ctx, key(ownerID, scope), payload, s.ttl).Err()
}

func (s *RedisStore) Load(ctx context.Context, ownerID, scope string) (*models.Draft, error) {
	payload, err := s.client.Get(ctx, key(ownerID, scope)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var d models.Draft
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	return &d, nil
}

func (s *RedisStore) Clear(ctx context.Context, ownerID, scope string) error {
	return s.client.Del(ctx, key(ownerID, scope)).Err()
}
