package leadpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

type fakeRepo struct {
	pool        map[string]domain.LeadPoolRecord
	assigned    map[string]bool // lead id -> has active assignment
	activeCount int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{pool: make(map[string]domain.LeadPoolRecord), assigned: make(map[string]bool)}
}

func (f *fakeRepo) UpsertSkipConflict(ctx context.Context, rec *domain.LeadPoolRecord) (bool, error) {
	for _, k := range rec.NaturalKeys() {
		for _, existing := range f.pool {
			for _, ek := range existing.NaturalKeys() {
				if ek == k {
					return false, nil
				}
			}
		}
	}
	f.pool[rec.ID] = *rec
	return true, nil
}

func (f *fakeRepo) CandidatesForAllocation(ctx context.Context, tenantID string, icp domain.ICPVector, limit int) ([]domain.LeadPoolRecord, error) {
	var out []domain.LeadPoolRecord
	for _, rec := range f.pool {
		if f.assigned[rec.ID] {
			continue
		}
		out = append(out, rec)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateAssignments(ctx context.Context, assignments []domain.Assignment) ([]domain.Assignment, error) {
	var claimed []domain.Assignment
	for _, a := range assignments {
		if f.assigned[a.LeadID] {
			continue
		}
		f.assigned[a.LeadID] = true
		claimed = append(claimed, a)
	}
	return claimed, nil
}

func (f *fakeRepo) ActivePipelineCount(ctx context.Context, tenantID string) (int, error) {
	return f.activeCount, nil
}

type fakeProvider struct {
	matches []domain.LeadPoolRecord
}

func (f *fakeProvider) FindMatches(ctx context.Context, icp domain.ICPVector, budget int) ([]domain.LeadPoolRecord, error) {
	if budget < len(f.matches) {
		return f.matches[:budget], nil
	}
	return f.matches, nil
}

type fakeSuppression struct {
	blocked map[string]bool
}

func (f *fakeSuppression) IsSuppressed(ctx context.Context, tenantID string, kind domain.SuppressionKeyKind, rawKey string) (domain.SuppressionResult, error) {
	if f.blocked[rawKey] {
		return domain.SuppressionResult{Blocked: true, Reason: domain.ReasonDoNotContact}, nil
	}
	return domain.SuppressionResult{Blocked: false}, nil
}

func TestSourceAndPopulate_SkipsSuppressedAndDuplicates(t *testing.T) {
	repo := newFakeRepo()
	existing := domain.LeadPoolRecord{ID: domain.NewID(), Email: "dup@example.com"}
	repo.pool[existing.ID] = existing

	provider := &fakeProvider{matches: []domain.LeadPoolRecord{
		{Email: "dup@example.com"},
		{Email: "blocked@example.com"},
		{Email: "fresh@example.com"},
	}}
	suppression := &fakeSuppression{blocked: map[string]bool{"blocked@example.com": true}}

	a := New(repo, provider, suppression)
	res, err := a.SourceAndPopulate(context.Background(), "tenant-1", domain.ICPVector{}, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Suppressed)
	assert.Equal(t, 1, res.Duplicate)
}

func TestAllocate_ExcludesGloballyBlockedAndSuppressed(t *testing.T) {
	repo := newFakeRepo()
	clean := domain.LeadPoolRecord{ID: domain.NewID(), Email: "clean@example.com"}
	bounced := domain.LeadPoolRecord{ID: domain.NewID(), Email: "bounced@example.com", Bounced: true}
	suppressed := domain.LeadPoolRecord{ID: domain.NewID(), Email: "suppressed@example.com"}
	repo.pool[clean.ID] = clean
	repo.pool[bounced.ID] = bounced
	repo.pool[suppressed.ID] = suppressed

	suppression := &fakeSuppression{blocked: map[string]bool{"suppressed@example.com": true}}
	a := New(repo, &fakeProvider{}, suppression)

	claimed, err := a.Allocate(context.Background(), "tenant-1", "campaign-1", domain.ICPVector{}, 10, time.Now())
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, clean.ID, claimed[0].LeadID)
}

func TestMonthlyReplenishment_SkipsInactiveCampaign(t *testing.T) {
	repo := newFakeRepo()
	a := New(repo, &fakeProvider{}, &fakeSuppression{blocked: map[string]bool{}})

	tenant := domain.Tenant{ID: "tenant-1"}
	campaign := domain.Campaign{ID: "campaign-1", Status: domain.CampaignPaused, LeadQuota: 100}

	res, claimed, err := a.MonthlyReplenishment(context.Background(), tenant, campaign, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Nil(t, claimed)
}

func TestMonthlyReplenishment_SourcesGapForActiveCampaign(t *testing.T) {
	repo := newFakeRepo()
	repo.activeCount = 2
	provider := &fakeProvider{matches: []domain.LeadPoolRecord{
		{Email: "a@example.com"},
		{Email: "b@example.com"},
		{Email: "c@example.com"},
	}}
	a := New(repo, provider, &fakeSuppression{blocked: map[string]bool{}})

	tenant := domain.Tenant{ID: "tenant-1"}
	campaign := domain.Campaign{ID: "campaign-1", Status: domain.CampaignActive, LeadQuota: 5}

	res, claimed, err := a.MonthlyReplenishment(context.Background(), tenant, campaign, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)
	assert.Len(t, claimed, 3)
}
