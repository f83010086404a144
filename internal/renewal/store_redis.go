package renewal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const queueKeyPrefix = "renewal-queue:"

// RedisQueueStore is the production queue store. Like drafts, the key carries
// the session TTL so an abandoned queue cannot linger indefinitely.
type RedisQueueStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisQueueStore(client *redis.Client, ttl time.Duration) *RedisQueueStore {
	return &RedisQueueStore{client: client, ttl: ttl}
}

func queueKey(ownerID string) string {
	return queueKeyPrefix + ownerID
}

func (s *RedisQueueStore) Save(ctx context.Context, ownerID string, ids []string) error {
	payload, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal queue: %w", err)
	}
	return s.client.Set(ctx, queueKey(ownerID), payload, s.ttl).Err()
}

func (s *RedisQueueStore) Load(ctx context.Context, ownerID string) ([]string, error) {
	payload, err := s.client.Get(ctx, queueKey(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoQueue
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(payload, &ids); err != nil {
		return nil, fmt.Errorf("unmarshal queue: %w", err)
	}
	return ids, nil
}

func (s *RedisQueueStore) Clear(ctx context.Context, ownerID string) error {
	return s.client.Del(ctx, queueKey(ownerID)).Err()
}
