package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keiracom/agencyos-dispatch/internal/channels"
	"github.com/keiracom/agencyos-dispatch/internal/config"
	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/jit"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/alert"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/distlock"
	"github.com/keiracom/agencyos-dispatch/internal/respool"
)

type fakeClaimer struct {
	due      []domain.Assignment
	advanced []domain.Assignment
}

func (f *fakeClaimer) ClaimDue(ctx context.Context, batchSize int, now time.Time) ([]domain.Assignment, error) {
	return f.due, nil
}

func (f *fakeClaimer) Advance(ctx context.Context, a domain.Assignment) error {
	f.advanced = append(f.advanced, a)
	return nil
}

type fakeTenants struct{ t domain.Tenant }

func (f *fakeTenants) GetTenant(ctx context.Context, id string) (domain.Tenant, error) { return f.t, nil }

type fakeCampaigns struct{ c domain.Campaign }

func (f *fakeCampaigns) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	return f.c, nil
}

type fakeLeads struct{ l domain.LeadPoolRecord }

func (f *fakeLeads) GetLead(ctx context.Context, id string) (domain.LeadPoolRecord, error) {
	return f.l, nil
}

type fakeActivityWriter struct{ appended []domain.Activity }

func (f *fakeActivityWriter) Append(ctx context.Context, a domain.Activity) error {
	f.appended = append(f.appended, a)
	return nil
}

// fakePool reproduces respool.Pool's real Select contract: no resource
// available is signaled as (nil, ErrNoneAvailable), never (nil, nil), so
// these tests exercise the same error shape jit.Validator sees in
// production.
type fakePool struct {
	resource *domain.Resource
	failed   []string
	released []string
}

func (f *fakePool) Select(ctx context.Context, resourceType domain.ResourceType, tenantID string, now time.Time) (*domain.Resource, error) {
	if f.resource == nil {
		return nil, respool.ErrNoneAvailable
	}
	return f.resource, nil
}
func (f *fakePool) Release(ctx context.Context, id string, now time.Time) error {
	f.released = append(f.released, id)
	return nil
}
func (f *fakePool) MarkDispatched(ctx context.Context, id string, now time.Time) {}
func (f *fakePool) MarkFailed(ctx context.Context, id string, now time.Time) {
	f.failed = append(f.failed, id)
}

type fakeSuppression struct{}

func (f *fakeSuppression) IsSuppressed(ctx context.Context, tenantID string, kind domain.SuppressionKeyKind, rawKey string) (domain.SuppressionResult, error) {
	return domain.SuppressionResult{}, nil
}

type fakeActivityReader struct{}

func (f *fakeActivityReader) LastActivity(ctx context.Context, leadID string) (*domain.Activity, error) {
	return nil, nil
}
func (f *fakeActivityReader) LastChannelActivity(ctx context.Context, leadID string, channel domain.Channel) (*domain.Activity, error) {
	return nil, nil
}

type fakeDriver struct {
	err error
}

func (f *fakeDriver) Send(ctx context.Context, resource domain.Resource, addr channels.Address, content channels.Content) (channels.DispatchResult, error) {
	if f.err != nil {
		return channels.DispatchResult{}, f.err
	}
	return channels.DispatchResult{ProviderMsgID: "msg-1"}, nil
}

type fakeContent struct{}

func (f *fakeContent) Resolve(ctx context.Context, lead domain.LeadPoolRecord, a domain.Assignment, step domain.SequenceStepDef, tier string) (channels.Content, error) {
	return channels.Content{Subject: "hi", Body: "body", TemplateRef: step.TemplateRef}, nil
}

func noopLock(key string, ttl time.Duration) distlock.DistLock { return &alwaysLock{} }

type alwaysLock struct{}

func (a *alwaysLock) Acquire(ctx context.Context) (bool, error) { return true, nil }
func (a *alwaysLock) Release(ctx context.Context) error         { return nil }

func baseFixtures(now time.Time) (domain.Tenant, domain.Campaign, domain.LeadPoolRecord, domain.Assignment) {
	tenant := domain.Tenant{
		ID:               "tenant-1",
		Subscription:     domain.SubscriptionActive,
		CreditsRemaining: 10,
		OnboardedAt:      now.Add(-60 * 24 * time.Hour),
		Timezone:         "UTC",
		SendWindowStart:  0,
		SendWindowEnd:    24,
	}
	campaign := domain.Campaign{
		ID:             "campaign-1",
		Status:         domain.CampaignActive,
		PermissionMode: domain.PermissionAutopilot,
		Sequence: []domain.SequenceStepDef{
			{Step: 1, Channel: domain.ChannelEmail, TemplateRef: "tmpl-1"},
			{Step: 2, Channel: domain.ChannelEmail, TemplateRef: "tmpl-2"},
		},
	}
	lead := domain.LeadPoolRecord{ID: "lead-1", Email: "lead@example.com", EmailStatus: domain.EmailVerified}
	assignment := domain.Assignment{
		ID:           "assignment-1",
		TenantID:     tenant.ID,
		CampaignID:   campaign.ID,
		LeadID:       lead.ID,
		Status:       domain.AssignmentInSequence,
		SequenceStep: 1,
		Score:        72,
	}
	return tenant, campaign, lead, assignment
}

func mustWeekday(now time.Time) time.Time {
	for now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		now = now.Add(24 * time.Hour)
	}
	return now
}

func newScheduler(claimer *fakeClaimer, tenant domain.Tenant, campaign domain.Campaign, lead domain.LeadPoolRecord, activities *fakeActivityWriter, pool *fakePool, driver channels.Driver) *Scheduler {
	validator := jit.New(&fakeSuppression{}, &fakeActivityReader{}, pool, config.JITConfig{})
	return New(
		claimer,
		&fakeTenants{t: tenant},
		&fakeCampaigns{c: campaign},
		&fakeLeads{l: lead},
		activities,
		validator,
		pool,
		map[domain.Channel]channels.Driver{domain.ChannelEmail: driver},
		&fakeContent{},
		func(lead domain.LeadPoolRecord, ch domain.Channel) (channels.Address, bool) {
			return channels.Address(lead.Email), lead.Email != ""
		},
		noopLock,
		alert.LogSink{},
		config.SchedulerConfig{BatchSize: 50, MaxParallel: 10, AssignmentLockTTLSeconds: 90},
	)
}

func TestRun_HappyPathSendsAndAdvancesStep(t *testing.T) {
	now := mustWeekday(time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC))
	tenant, campaign, lead, assignment := baseFixtures(now)
	resource := &domain.Resource{ID: "res-1", Type: domain.ResourceEmailDomain, Health: domain.HealthHealthy}
	claimer := &fakeClaimer{due: []domain.Assignment{assignment}}
	activities := &fakeActivityWriter{}
	pool := &fakePool{resource: resource}

	s := newScheduler(claimer, tenant, campaign, lead, activities, pool, &fakeDriver{})
	result, err := s.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent[domain.ChannelEmail])
	require.Len(t, activities.appended, 1)
	assert.Equal(t, domain.ActionSent, activities.appended[0].Action)
	require.Len(t, claimer.advanced, 1)
	assert.Equal(t, 2, claimer.advanced[0].SequenceStep)
}

func TestRun_RateLimitedResourceRejectsWithActivity(t *testing.T) {
	now := mustWeekday(time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC))
	tenant, campaign, lead, assignment := baseFixtures(now)
	claimer := &fakeClaimer{due: []domain.Assignment{assignment}}
	activities := &fakeActivityWriter{}
	pool := &fakePool{resource: nil} // Select returns ErrNoneAvailable => rate_limit_channel

	s := newScheduler(claimer, tenant, campaign, lead, activities, pool, &fakeDriver{})
	result, err := s.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rejected[domain.ChannelEmail])
	require.Len(t, activities.appended, 1)
	assert.Equal(t, string(jit.ReasonRateLimitChannel), activities.appended[0].RejectReason)
}

func TestRun_OutsideSendWindowDispatchesNothing(t *testing.T) {
	now := mustWeekday(time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC))
	tenant, campaign, lead, assignment := baseFixtures(now)
	tenant.SendWindowStart, tenant.SendWindowEnd = 8, 9 // window already closed at noon
	claimer := &fakeClaimer{due: []domain.Assignment{assignment}}
	activities := &fakeActivityWriter{}
	pool := &fakePool{resource: &domain.Resource{ID: "res-1", Health: domain.HealthHealthy}}

	s := newScheduler(claimer, tenant, campaign, lead, activities, pool, &fakeDriver{})
	result, err := s.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Len(t, activities.appended, 0)
	assert.Equal(t, 0, result.Sent[domain.ChannelEmail])
}
