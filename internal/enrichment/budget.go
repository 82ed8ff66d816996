package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BatchBudget enforces the premium-tier fraction cap (spec §4.5, default
// 15%) across every worker touching a batch. Two Redis counters per batch
// — total records attempted and premium-tier records accepted — back a
// Lua script so the check-and-increment is atomic across concurrent
// workers, the same shape as the Rate Ledger's reserve script.
type BatchBudget struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewBatchBudget creates a batch budget tracker. Counters expire after ttl
// (a batch run should always finish well inside it; a generous default of
// 6h covers a stalled or crashed worker without leaking keys forever).
func NewBatchBudget(redisClient *redis.Client, ttl time.Duration) *BatchBudget {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &BatchBudget{redis: redisClient, ttl: ttl}
}

func totalKey(batchID string) string   { return fmt.Sprintf("enrichment:budget:%s:total", batchID) }
func premiumKey(batchID string) string { return fmt.Sprintf("enrichment:budget:%s:premium", batchID) }

// reserveScript atomically checks whether consuming one more premium slot
// would keep premium/total <= maxPct (total is maintained separately by
// RecordAttempt, called once per lead entering the waterfall) and, if so,
// reserves it. KEYS = [totalKey, premiumKey], ARGV = [maxPctTimes1000,
// ttlSeconds].
var reserveScript = redis.NewScript(`
local total = tonumber(redis.call("GET", KEYS[1]) or "0")
if total == 0 then
    total = 1
end
local premium = tonumber(redis.call("GET", KEYS[2]) or "0")
local maxPct = tonumber(ARGV[1])
if (premium + 1) * 1000 > maxPct * total then
    return 0
end
local newPremium = redis.call("INCR", KEYS[2])
redis.call("EXPIRE", KEYS[2], ARGV[2])
return newPremium
`)

// RecordAttempt increments the batch's total-attempted counter without
// touching the premium counter. Call once per lead entering the waterfall
// so the denominator reflects the whole batch, not just premium attempts.
func (b *BatchBudget) RecordAttempt(ctx context.Context, batchID string) error {
	if err := b.redis.Incr(ctx, totalKey(batchID)).Err(); err != nil {
		return fmt.Errorf("record enrichment attempt: %w", err)
	}
	b.redis.Expire(ctx, totalKey(batchID), b.ttl)
	return nil
}

// TryReservePremium atomically checks whether one more premium-tier
// resolution would keep the batch's premium fraction at or below maxPct
// (e.g. 0.15) and, if so, reserves the slot. RecordAttempt must already
// have been called for this lead so the denominator reflects the batch.
func (b *BatchBudget) TryReservePremium(ctx context.Context, batchID string, maxPct float64) (bool, error) {
	res, err := reserveScript.Run(ctx, b.redis, []string{totalKey(batchID), premiumKey(batchID)},
		int(maxPct*1000), int(b.ttl.Seconds())).Int64()
	if err != nil {
		return false, fmt.Errorf("reserve premium budget: %w", err)
	}
	return res > 0, nil
}

// Stats returns the current (total, premium) counts for a batch.
func (b *BatchBudget) Stats(ctx context.Context, batchID string) (total, premium int, err error) {
	vals, err := b.redis.MGet(ctx, totalKey(batchID), premiumKey(batchID)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("enrichment budget stats: %w", err)
	}
	total = toInt(vals[0])
	premium = toInt(vals[1])
	return total, premium, nil
}

func toInt(v interface{}) int {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	var n int
	fmt.Sscanf(s, "%d", &n)
	return n
}
