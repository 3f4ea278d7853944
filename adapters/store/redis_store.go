package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLedger is a Redis implementation of the ChallengeLedger interface,
// shared by every instance pointing at the same database
type RedisLedger struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLedger creates a new Redis ledger
func NewRedisLedger(client redis.UniversalClient) *RedisLedger {
	return &RedisLedger{
		client: client,
		prefix: "xrpauth:consumed:",
	}
}

// Consume marks a challenge as used in Redis
func (s *RedisLedger) Consume(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	key := s.prefix + id

	// Only the first writer sets the key
	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record challenge: %w", err)
	}

	return ok, nil
}
