// Package operator implements the cross-process control surface of
// spec §6.5: a small set of booleans, shared over Redis so the
// server and worker processes (and however many of each are running)
// agree on them without a restart. Per-tenant pause/resume and the rate
// ledger's emergency reset live on the repositories/ledger they act on
// directly (TenantRepo.SetSubscription, ratelimit.Ledger.Reset); this
// package only owns the flags with no other natural home.
package operator

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	keySchedulerPaused = "operator:scheduler_paused"
	keyTestModeEnabled = "operator:test_mode_enabled"
)

// Controls reads and writes the shared operator flags.
type Controls struct {
	redis *redis.Client
}

// New creates a Controls instance over redisClient.
func New(redisClient *redis.Client) *Controls {
	return &Controls{redis: redisClient}
}

func (c *Controls) getBool(ctx context.Context, key string, def bool) (bool, error) {
	v, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("operator: read %s: %w", key, err)
	}
	return v == "1", nil
}

func (c *Controls) setBool(ctx context.Context, key string, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	if err := c.redis.Set(ctx, key, val, 0).Err(); err != nil {
		return fmt.Errorf("operator: write %s: %w", key, err)
	}
	return nil
}

// SchedulerPaused reports whether the global scheduler pause flag is set
// (spec §6.5: "pause/resume scheduler globally"). Absent the flag, the
// scheduler runs — pausing is an explicit opt-in, never the default.
func (c *Controls) SchedulerPaused(ctx context.Context) (bool, error) {
	return c.getBool(ctx, keySchedulerPaused, false)
}

// SetSchedulerPaused flips the global scheduler pause flag.
func (c *Controls) SetSchedulerPaused(ctx context.Context, paused bool) error {
	return c.setBool(ctx, keySchedulerPaused, paused)
}

// TestModeEnabled reports whether the global test-mode redirect is
// active. def is returned on a cache miss so a fresh deployment honors
// its config-file default (cfg.TestMode.Enabled) until an operator
// explicitly overrides it at runtime.
func (c *Controls) TestModeEnabled(ctx context.Context, def bool) (bool, error) {
	return c.getBool(ctx, keyTestModeEnabled, def)
}

// SetTestModeEnabled flips the global test-mode flag.
func (c *Controls) SetTestModeEnabled(ctx context.Context, enabled bool) error {
	return c.setBool(ctx, keyTestModeEnabled, enabled)
}
