package enrichment

import (
	"context"
	"errors"

	"github.com/keiracom/agencyos-dispatch/internal/cache"
)

// CacheAdapter implements CacheProvider over the shared, versioned Cache
// Layer (spec §4.3), scoping every lookup to cache.KindEnrichment.
type CacheAdapter struct {
	cache *cache.Cache
}

// NewCacheAdapter wraps a Cache Layer for use as the Waterfall's tier-1
// provider.
func NewCacheAdapter(c *cache.Cache) *CacheAdapter {
	return &CacheAdapter{cache: c}
}

// Get satisfies CacheProvider.
func (a *CacheAdapter) Get(ctx context.Context, fingerprint string) (Result, bool, error) {
	var res Result
	err := a.cache.Get(ctx, cache.KindEnrichment, fingerprint, &res)
	if errors.Is(err, cache.ErrMiss) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	return res, true, nil
}

// Put satisfies CacheProvider.
func (a *CacheAdapter) Put(ctx context.Context, fingerprint string, r Result) error {
	return a.cache.Set(ctx, cache.KindEnrichment, fingerprint, r)
}
