package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when no value is cached for the key (or the
// cached value has outlived its TTL). Never confuse this with a cached
// empty value — it means "never computed", not "computed as empty".
var ErrMiss = errors.New("cache: miss")

// Kind groups TTL defaults per spec §4.3 ("TTLs per kind").
type Kind string

const (
	KindEnrichment         Kind = "enrichment"  // 90 days
	KindSuppressionReplica Kind = "suppression" // 24h
)

// Cache is the versioned, two-level Cache Layer.
type Cache struct {
	redis          *redis.Client
	local          *gocache.Cache
	versionMu      sync.RWMutex
	versionPrefix  string
	enrichmentTTL  time.Duration
	suppressionTTL time.Duration
}

// New creates a Cache Layer. versionPrefix is the configured
// cache_version_prefix (default "v1"); bumping it at the config layer
// makes every previously-written key unreachable without deleting any
// rows, since the prefix is part of the key itself.
func New(redisClient *redis.Client, versionPrefix string, enrichmentTTL, suppressionTTL time.Duration) *Cache {
	if versionPrefix == "" {
		versionPrefix = "v1"
	}
	return &Cache{
		redis:          redisClient,
		local:          gocache.New(5*time.Minute, 10*time.Minute),
		versionPrefix:  versionPrefix,
		enrichmentTTL:  enrichmentTTL,
		suppressionTTL: suppressionTTL,
	}
}

func (c *Cache) key(kind Kind, fingerprint string) string {
	c.versionMu.RLock()
	prefix := c.versionPrefix
	c.versionMu.RUnlock()
	return fmt.Sprintf("%s:%s:%s", prefix, kind, fingerprint)
}

// BumpVersion swaps the live version prefix, the operator-surface
// invalidate-everything override of spec §6.5 ("bump cache version"):
// every key written under the old prefix becomes unreachable without a
// single row being deleted. It also clears L1 so this process stops
// serving stale entries it already had resident.
func (c *Cache) BumpVersion(newPrefix string) {
	c.versionMu.Lock()
	c.versionPrefix = newPrefix
	c.versionMu.Unlock()
	c.local.Flush()
}

// Version returns the live version prefix.
func (c *Cache) Version() string {
	c.versionMu.RLock()
	defer c.versionMu.RUnlock()
	return c.versionPrefix
}

func (c *Cache) ttlFor(kind Kind) time.Duration {
	if kind == KindSuppressionReplica {
		return c.suppressionTTL
	}
	return c.enrichmentTTL
}

// Get returns the cached value for (kind, fingerprint), unmarshalled into
// dest, or ErrMiss if nothing is cached (or it expired). L1 is checked
// first; an L1 miss falls through to Redis and, on an L2 hit, repopulates
// L1 for the next caller in this process.
func (c *Cache) Get(ctx context.Context, kind Kind, fingerprint string, dest interface{}) error {
	key := c.key(kind, fingerprint)

	if raw, ok := c.local.Get(key); ok {
		return json.Unmarshal(raw.([]byte), dest)
	}

	raw, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("cache get %s: %w", key, err)
	}

	c.local.Set(key, raw, gocache.DefaultExpiration)
	return json.Unmarshal(raw, dest)
}

// Set writes value for (kind, fingerprint) with the kind's configured TTL,
// to both levels.
func (c *Cache) Set(ctx context.Context, kind Kind, fingerprint string, value interface{}) error {
	key := c.key(kind, fingerprint)
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}

	if err := c.redis.Set(ctx, key, raw, c.ttlFor(kind)).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	c.local.Set(key, raw, gocache.DefaultExpiration)
	return nil
}

// Invalidate removes a single key from both levels (used when a record's
// underlying facts change in a way that must not wait for TTL expiry).
func (c *Cache) Invalidate(ctx context.Context, kind Kind, fingerprint string) error {
	key := c.key(kind, fingerprint)
	c.local.Delete(key)
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", key, err)
	}
	return nil
}
