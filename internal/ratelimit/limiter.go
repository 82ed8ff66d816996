package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// localLimiters smooths the burst of reserve attempts a single process
// sends at Redis for one resource — without it, a scheduler tick that
// wakes up N goroutines for the same under-warmup resource sends N
// simultaneous Lua-script round trips when one would do. It never
// replaces the Redis-backed cap; it only reduces contention in front of
// it.
type localLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newLocalLimiters(rps float64, burst int) *localLimiters {
	return &localLimiters{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (l *localLimiters) allow(resourceID string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[resourceID]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[resourceID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
