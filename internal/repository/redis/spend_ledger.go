package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// spendKeyPrefix: a lead's lifetime reply-cost cap has no window, so
// its ledger key is never given a TTL; the key count is bounded by the
// size of the lead pool, not by traffic volume.
const spendKeyPrefix = "replyspend:"

// SpendLedger implements replyrouter.ReplySpendLedger against Redis,
// storing each lead's accumulated expensive-reply cost as a float string.
type SpendLedger struct {
	redis *redis.Client
}

// NewSpendLedger creates a SpendLedger.
func NewSpendLedger(redisClient *redis.Client) *SpendLedger {
	return &SpendLedger{redis: redisClient}
}

// Spent satisfies replyrouter.ReplySpendLedger.
func (s *SpendLedger) Spent(ctx context.Context, leadID string) (float64, error) {
	val, err := s.redis.Get(ctx, spendKeyPrefix+leadID).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read reply spend for lead %s: %w", leadID, err)
	}
	return val, nil
}

// Add satisfies replyrouter.ReplySpendLedger. INCRBYFLOAT is atomic, so
// concurrent replies against the same lead never lose an increment.
func (s *SpendLedger) Add(ctx context.Context, leadID string, amountUSD float64) error {
	if err := s.redis.IncrByFloat(ctx, spendKeyPrefix+leadID, amountUSD).Err(); err != nil {
		return fmt.Errorf("add reply spend for lead %s: %w", leadID, err)
	}
	return nil
}
