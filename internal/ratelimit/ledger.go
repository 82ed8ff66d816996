package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrExhausted names the state of a resource whose rolling-24h cap has
// been reached. TryReserve reports that state as result.OK=false rather
// than returning this error.
var ErrExhausted = errors.New("rate ledger: resource exhausted")

const (
	windowHours = 24
	bucketTTL   = (windowHours + 1) * time.Hour // 25h, one hour of slack past the window
	keyPrefix   = "ratelimit:"
)

// reserveScript atomically sums the last 24 hourly buckets for a resource
// and, if the total is under cap, increments the current bucket. KEYS is
// the current hour's key followed by the previous 23 (oldest last); ARGV
// is [cap, ttlSeconds].
var reserveScript = redis.NewScript(`
local cap = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
local total = 0
for i = 1, #KEYS do
    total = total + tonumber(redis.call("GET", KEYS[i]) or "0")
end
if total >= cap then
    return {0, 0}
end
local newVal = redis.call("INCR", KEYS[1])
redis.call("EXPIRE", KEYS[1], ttl)
return {1, cap - total - 1}
`)

// Ledger enforces per-resource rolling-24h caps backed by Redis.
type Ledger struct {
	redis *redis.Client
	local *localLimiters
}

// NewLedger creates a rate ledger over the given Redis client. Local
// reserve attempts against the same resource are smoothed to at most 5/s
// with a burst of 5 before they reach Redis.
func NewLedger(redisClient *redis.Client) *Ledger {
	return &Ledger{redis: redisClient, local: newLocalLimiters(5, 5)}
}

func bucketKeys(resourceID string, now time.Time) []string {
	hour := now.UTC().Truncate(time.Hour)
	keys := make([]string, windowHours)
	for i := 0; i < windowHours; i++ {
		keys[i] = fmt.Sprintf("%s%s:%d", keyPrefix, resourceID, hour.Add(-time.Duration(i)*time.Hour).Unix())
	}
	return keys
}

// ReserveResult is the outcome of a TryReserve call.
type ReserveResult struct {
	OK        bool
	Remaining int
}

// TryReserve atomically checks the resource's rolling-24h usage against
// cap and, if under, reserves one unit. When the cap has been reached (or
// the local smoother refuses the attempt) it returns result.OK=false with
// a nil error; ErrExhausted is not returned. A non-nil error is an
// infrastructure failure.
func (l *Ledger) TryReserve(ctx context.Context, resourceID string, cap int, now time.Time) (ReserveResult, error) {
	if !l.local.allow(resourceID) {
		return ReserveResult{OK: false}, nil
	}
	keys := bucketKeys(resourceID, now)
	res, err := reserveScript.Run(ctx, l.redis, keys, cap, int(bucketTTL.Seconds())).Slice()
	if err != nil {
		return ReserveResult{}, fmt.Errorf("reserve %s: %w", resourceID, err)
	}
	ok := res[0].(int64) == 1
	remaining := int(res[1].(int64))
	if !ok {
		return ReserveResult{OK: false}, nil
	}
	return ReserveResult{OK: true, Remaining: remaining}, nil
}

// Release decrements the current hour's bucket, undoing a reservation
// when the driver fails before completing the send. If the reservation
// was made in a now-rolled-over hour bucket (a reserve right at the top
// of the hour, released a moment later), this decrements the new current
// bucket instead — it goes slightly negative-of-truth for one hour-window
// but self-corrects as soon as that bucket expires.
func (l *Ledger) Release(ctx context.Context, resourceID string, now time.Time) error {
	key := bucketKeys(resourceID, now)[0]
	if err := l.redis.Decr(ctx, key).Err(); err != nil {
		return fmt.Errorf("release %s: %w", resourceID, err)
	}
	return nil
}

// Reset clears every hourly bucket in the resource's rolling-24h window,
// the operator-surface emergency override of spec §6.5 ("reset rate
// ledger") for a resource stuck exhausted by a bad reservation.
func (l *Ledger) Reset(ctx context.Context, resourceID string, now time.Time) error {
	keys := bucketKeys(resourceID, now)
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("reset %s: %w", resourceID, err)
	}
	return nil
}

// CurrentUsage returns the resource's rolling-24h usage count.
func (l *Ledger) CurrentUsage(ctx context.Context, resourceID string, now time.Time) (int, error) {
	keys := bucketKeys(resourceID, now)
	vals, err := l.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("current usage %s: %w", resourceID, err)
	}
	total := 0
	for _, v := range vals {
		if v == nil {
			continue
		}
		switch n := v.(type) {
		case string:
			var parsed int
			fmt.Sscanf(n, "%d", &parsed)
			total += parsed
		}
	}
	return total, nil
}
