// Package redis holds the Redis-backed adapters that back the Reply
// Router's ports: inbound-webhook idempotency and the per-lead reply
// spend ledger. Both are cheap, TTL-bounded counters in the same vein as
// internal/cache and internal/ratelimit, so they live alongside those
// concerns rather than in the Postgres system of record.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// idempotencyTTL bounds how long a provider_msg_id is remembered. A
// webhook redelivered after this window re-processes, which is an
// acceptable tradeoff against holding one key per inbound message
// forever (spec §6.2 only requires dedup against redelivery, not
// permanent history).
const idempotencyTTL = 14 * 24 * time.Hour

// IdempotencyStore implements replyrouter.IdempotencyStore against Redis.
type IdempotencyStore struct {
	redis *redis.Client
}

// NewIdempotencyStore creates an IdempotencyStore.
func NewIdempotencyStore(redisClient *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{redis: redisClient}
}

// MarkSeen satisfies replyrouter.IdempotencyStore. SetNX is atomic: two
// concurrent deliveries of the same provider_msg_id can only ever have
// one winner.
func (s *IdempotencyStore) MarkSeen(ctx context.Context, providerMsgID string) (bool, error) {
	key := "idempotency:inbound:" + providerMsgID
	firstSeen, err := s.redis.SetNX(ctx, key, 1, idempotencyTTL).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency mark seen %s: %w", providerMsgID, err)
	}
	return firstSeen, nil
}
