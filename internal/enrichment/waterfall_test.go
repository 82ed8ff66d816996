package enrichment

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

type fakeCache struct {
	hits map[string]Result
}

func (f *fakeCache) Get(ctx context.Context, fingerprint string) (Result, bool, error) {
	r, ok := f.hits[fingerprint]
	return r, ok, nil
}

func (f *fakeCache) Put(ctx context.Context, fingerprint string, r Result) error {
	if f.hits == nil {
		f.hits = make(map[string]Result)
	}
	f.hits[fingerprint] = r
	return nil
}

type fakePrimary struct {
	result Result
	err    error
}

func (f *fakePrimary) LookupByEmail(ctx context.Context, email string) (Result, error) { return f.result, f.err }
func (f *fakePrimary) LookupByLinkedIn(ctx context.Context, url string) (Result, error) {
	return f.result, f.err
}
func (f *fakePrimary) LookupByNameAndDomain(ctx context.Context, first, last, domain string) (Result, error) {
	return f.result, f.err
}

type fakePremium struct {
	result Result
	calls  int
}

func (f *fakePremium) Lookup(ctx context.Context, q Query) (Result, error) {
	f.calls++
	return f.result, nil
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestWaterfall_AcceptsFromPrimary(t *testing.T) {
	primary := &fakePrimary{result: Result{
		Confidence: 0.9,
		Fields: domain.LeadPoolRecord{
			Email:     "lead@example.com",
			FirstName: "Ada",
			LastName:  "Lovelace",
			Firmographics: domain.Firmographics{CompanyName: "Analytical Engines"},
		},
	}}
	w := New(&fakeCache{}, primary, nil, nil, nil, Config{ConfidenceThreshold: 0.7})

	out := w.Enrich(context.Background(), "batch-1", domain.LeadPoolRecord{})
	require.Truef(t, out.Accepted, "expected acceptance, got provenance %q", out.Provenance)
	assert.Equal(t, domain.TierPrimary, out.Tier)
	assert.Equal(t, "lead@example.com", out.Record.Email)
}

func TestWaterfall_PremiumBudgetExceeded(t *testing.T) {
	rc := newTestRedis(t)
	budget := NewBatchBudget(rc, 0)

	// Record 10 batch attempts with no premium reservation yet; at a 0% cap
	// even the first premium reservation is refused.
	for i := 0; i < 10; i++ {
		_ = budget.RecordAttempt(context.Background(), "batch-2")
	}
	ok, err := budget.TryReservePremium(context.Background(), "batch-2", 0.0)
	require.NoError(t, err)
	assert.Falsef(t, ok, "expected premium reservation to be denied at 0%% budget")

	premium := &fakePremium{result: Result{Confidence: 0.95, Fields: domain.LeadPoolRecord{
		Email: "x@example.com", FirstName: "X", LastName: "Y",
		Firmographics: domain.Firmographics{CompanyName: "Co"},
	}}}
	// New treats a zero PremiumMaxBudgetPct as unset (15%), so the cap here
	// is 5%: one premium lead out of the 11 attempts would exceed it.
	w := New(&fakeCache{}, nil, nil, premium, budget, Config{ConfidenceThreshold: 0.7, PremiumMaxBudgetPct: 0.05})

	out := w.Enrich(context.Background(), "batch-2", domain.LeadPoolRecord{})
	assert.False(t, out.Accepted, "expected rejection under exhausted premium budget")
	assert.Equal(t, "premium_budget_exceeded", out.Provenance)
	assert.Equal(t, 0, premium.calls, "expected premium tier never invoked")
}

func TestWaterfall_FallsThroughOnTierFailure(t *testing.T) {
	primary := &fakePrimary{err: context.DeadlineExceeded}
	premium := &fakePremium{result: Result{Confidence: 0.9, Fields: domain.LeadPoolRecord{
		Email: "fallback@example.com", FirstName: "F", LastName: "B",
		Firmographics: domain.Firmographics{CompanyName: "Co"},
	}}}
	rc := newTestRedis(t)
	budget := NewBatchBudget(rc, 0)

	w := New(&fakeCache{}, primary, nil, premium, budget, Config{ConfidenceThreshold: 0.7, PremiumMaxBudgetPct: 1.0})
	out := w.Enrich(context.Background(), "batch-3", domain.LeadPoolRecord{})
	require.Truef(t, out.Accepted, "expected acceptance via premium fallback, got provenance %q", out.Provenance)
	assert.Equal(t, 1, premium.calls)
}
