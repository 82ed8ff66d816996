package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestTryReserveUnderCap(t *testing.T) {
	ledger := NewLedger(setupTestRedis(t))
	ledger.local = newLocalLimiters(1000, 1000) // disable smoothing noise in the test
	now := time.Now()

	res, err := ledger.TryReserve(context.Background(), "resource-1", 5, now)
	require.NoError(t, err)
	require.True(t, res.OK, "expected ok with 4 remaining, got %+v", res)
	assert.Equal(t, 4, res.Remaining)
}

func TestTryReserveExhausted(t *testing.T) {
	ledger := NewLedger(setupTestRedis(t))
	ledger.local = newLocalLimiters(1000, 1000)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		res, err := ledger.TryReserve(ctx, "resource-1", 3, now)
		require.NoErrorf(t, err, "reservation %d should succeed", i)
		require.Truef(t, res.OK, "reservation %d should succeed, got %+v", i, res)
	}

	res, err := ledger.TryReserve(ctx, "resource-1", 3, now)
	require.NoError(t, err)
	assert.False(t, res.OK, "expected cap to be exhausted, got %+v", res)
}

func TestCurrentUsageSumsRollingWindow(t *testing.T) {
	ledger := NewLedger(setupTestRedis(t))
	ledger.local = newLocalLimiters(1000, 1000)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 2; i++ {
		_, err := ledger.TryReserve(ctx, "resource-1", 10, now)
		require.NoError(t, err, "reserve")
	}
	// Simulate usage 10 hours ago still counting within the 24h window.
	_, err := ledger.TryReserve(ctx, "resource-1", 10, now.Add(-10*time.Hour))
	require.NoError(t, err, "reserve earlier")

	usage, err := ledger.CurrentUsage(ctx, "resource-1", now)
	require.NoError(t, err, "current usage")
	assert.Equal(t, 3, usage)
}

func TestReleaseDecrementsCurrentBucket(t *testing.T) {
	ledger := NewLedger(setupTestRedis(t))
	ledger.local = newLocalLimiters(1000, 1000)
	ctx := context.Background()
	now := time.Now()

	_, err := ledger.TryReserve(ctx, "resource-1", 5, now)
	require.NoError(t, err, "reserve")
	require.NoError(t, ledger.Release(ctx, "resource-1", now), "release")

	usage, err := ledger.CurrentUsage(ctx, "resource-1", now)
	require.NoError(t, err, "current usage")
	assert.Equal(t, 0, usage, "expected usage back to 0 after release")
}

func TestTryReserveOutOfWindowDoesNotCountTwiceInPast(t *testing.T) {
	ledger := NewLedger(setupTestRedis(t))
	ledger.local = newLocalLimiters(1000, 1000)
	ctx := context.Background()
	now := time.Now()

	// 25 hours ago is outside the 24h rolling window.
	_, err := ledger.TryReserve(ctx, "resource-1", 10, now.Add(-25*time.Hour))
	require.NoError(t, err, "reserve")

	usage, err := ledger.CurrentUsage(ctx, "resource-1", now)
	require.NoError(t, err, "current usage")
	assert.Equal(t, 0, usage, "expected 25h-old reservation to fall outside window")
}
