package respool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/ratelimit"
)

// ErrNoneAvailable is returned by Select when no resource currently
// satisfies the channel/tenant/health/quota filter.
var ErrNoneAvailable = errors.New("resource pool: no resource available")

// Repository is the persistence contract for resources.
type Repository interface {
	// ListByType returns every non-deleted resource of the given type,
	// regardless of current health (Select applies the health filter).
	ListByType(ctx context.Context, t domain.ResourceType) ([]domain.Resource, error)
	// MarkUsed updates last_used_at and increments usage_count. Best-effort
	// per spec §4.4 — callers tolerate a stale read.
	MarkUsed(ctx context.Context, id string, now time.Time) error
	// SetHealth persists a health-state transition (e.g. into degraded).
	SetHealth(ctx context.Context, id string, h domain.HealthState) error
	// RecordFailure increments the resource's consecutive-failure counter
	// and sets last_failure_at.
	RecordFailure(ctx context.Context, id string, at time.Time) error
	// RecordSuccess resets the resource's consecutive-failure counter.
	RecordSuccess(ctx context.Context, id string) error
}

const consecutiveFailThreshold = 5

// Pool selects and tracks the shared fleet of sender identities.
type Pool struct {
	repo   Repository
	ledger *ratelimit.Ledger

	mu        sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker
}

// New creates a Resource Pool backed by repo for persistence and ledger
// for the rate-quota filter (spec §4.4: "remaining-quota > 0 per the Rate
// Ledger").
func New(repo Repository, ledger *ratelimit.Ledger) *Pool {
	return &Pool{repo: repo, ledger: ledger, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (p *Pool) breakerFor(resourceID string) *gobreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.breakers[resourceID]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        resourceID,
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailThreshold
		},
	})
	p.breakers[resourceID] = b
	return b
}

// breakerOpen reports whether the circuit for a resource is currently
// open (tripped), without performing a call through it.
func (p *Pool) breakerOpen(resourceID string) bool {
	return p.breakerFor(resourceID).State() == gobreaker.StateOpen
}

// Select chooses the next resource for channel, for tenantID, per spec
// §4.4: type matches channel, health sendable, lease owner matches or
// unleased, remaining rate-ledger quota > 0; ordered ascending by
// last_used_at (nulls first), tie-broken by resource id.
func (p *Pool) Select(ctx context.Context, resourceType domain.ResourceType, tenantID string, now time.Time) (*domain.Resource, error) {
	resources, err := p.repo.ListByType(ctx, resourceType)
	if err != nil {
		return nil, fmt.Errorf("select resource: %w", err)
	}

	candidates := make([]domain.Resource, 0, len(resources))
	for _, r := range resources {
		if !r.Health.Sendable() {
			continue
		}
		if !r.UsableByTenant(tenantID) {
			continue
		}
		if p.breakerOpen(r.ID) {
			continue
		}
		candidates = append(candidates, r)
	}

	sort.Slice(candidates, func(i, j int) bool {
		li, lj := candidates[i].LastUsedAt, candidates[j].LastUsedAt
		switch {
		case li == nil && lj == nil:
			return candidates[i].ID < candidates[j].ID
		case li == nil:
			return true
		case lj == nil:
			return false
		case !li.Equal(*lj):
			return li.Before(*lj)
		default:
			return candidates[i].ID < candidates[j].ID
		}
	})

	for i := range candidates {
		r := &candidates[i]
		cap := r.EffectiveCap(now)
		if cap <= 0 {
			continue
		}
		res, err := p.ledger.TryReserve(ctx, r.ID, cap, now)
		if err != nil {
			continue // infrastructure hiccup on this resource; try the next
		}
		if !res.OK {
			continue
		}
		return r, nil
	}

	return nil, ErrNoneAvailable
}

// MarkDispatched records a successful driver dispatch: last_used_at bump
// (best-effort) and circuit-breaker/failure-counter reset.
func (p *Pool) MarkDispatched(ctx context.Context, resourceID string, now time.Time) {
	p.breakerFor(resourceID).Execute(func() (interface{}, error) { return nil, nil })
	_ = p.repo.RecordSuccess(ctx, resourceID)
	if err := p.repo.MarkUsed(ctx, resourceID, now); err != nil {
		// last_used_at is advisory; a stale read only affects next-pick
		// ordering, never correctness (spec §4.4).
		_ = err
	}
}

// Release undoes a tentative reservation made by Select when a later
// check (e.g. the warmup gate) rejects the send before dispatch.
func (p *Pool) Release(ctx context.Context, resourceID string, now time.Time) error {
	return p.ledger.Release(ctx, resourceID, now)
}

// MarkFailed records a permanent driver failure against a resource. The
// rate-ledger reservation must be released by the caller separately
// (spec §4.9 step e); this only tracks resource health.
func (p *Pool) MarkFailed(ctx context.Context, resourceID string, now time.Time) {
	p.breakerFor(resourceID).Execute(func() (interface{}, error) { return nil, errors.New("driver failure") })
	_ = p.repo.RecordFailure(ctx, resourceID, now)
	if p.breakerOpen(resourceID) {
		_ = p.repo.SetHealth(ctx, resourceID, domain.HealthDegraded)
	}
}
