package jit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keiracom/agencyos-dispatch/internal/config"
	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/respool"
)

type fakeActivities struct {
	last        *domain.Activity
	lastChannel map[domain.Channel]*domain.Activity
}

func (f *fakeActivities) LastActivity(ctx context.Context, leadID string) (*domain.Activity, error) {
	return f.last, nil
}

func (f *fakeActivities) LastChannelActivity(ctx context.Context, leadID string, channel domain.Channel) (*domain.Activity, error) {
	if f.lastChannel == nil {
		return nil, nil
	}
	return f.lastChannel[channel], nil
}

type fakeSuppression struct {
	result domain.SuppressionResult
}

func (f *fakeSuppression) IsSuppressed(ctx context.Context, tenantID string, kind domain.SuppressionKeyKind, rawKey string) (domain.SuppressionResult, error) {
	return f.result, nil
}

// fakePool reproduces respool.Pool's real Select contract: when no
// resource clears the filter, it returns (nil, ErrNoneAvailable), never
// (nil, nil) — so tests exercise the same error shape Validate sees in
// production.
type fakePool struct {
	resource *domain.Resource
	released []string
}

func (f *fakePool) Select(ctx context.Context, resourceType domain.ResourceType, tenantID string, now time.Time) (*domain.Resource, error) {
	if f.resource == nil {
		return nil, respool.ErrNoneAvailable
	}
	return f.resource, nil
}

func (f *fakePool) Release(ctx context.Context, resourceID string, now time.Time) error {
	f.released = append(f.released, resourceID)
	return nil
}

func baseInput(now time.Time) Input {
	return Input{
		Tenant: domain.Tenant{
			ID:               "tenant-1",
			Subscription:     domain.SubscriptionActive,
			CreditsRemaining: 10,
			OnboardedAt:      now.Add(-60 * 24 * time.Hour),
		},
		Campaign: domain.Campaign{
			Status:         domain.CampaignActive,
			PermissionMode: domain.PermissionAutopilot,
		},
		Lead: domain.LeadPoolRecord{
			ID:          "lead-1",
			Email:       "lead@example.com",
			EmailStatus: domain.EmailVerified,
		},
		Assignment: domain.Assignment{Status: domain.AssignmentInSequence},
		Channel:    domain.ChannelEmail,
		Score:      72,
		Now:        now,
	}
}

func TestValidate_AllowsHealthyEmailCandidate(t *testing.T) {
	now := time.Now()
	resource := &domain.Resource{ID: "res-1", Health: domain.HealthHealthy}
	v := New(&fakeSuppression{}, &fakeActivities{}, &fakePool{resource: resource}, config.JITConfig{})

	out, err := v.Validate(context.Background(), baseInput(now))
	require.NoError(t, err)
	require.True(t, out.Allow, "expected allow, got reject reason %q", out.Reason)
	assert.Equal(t, "res-1", out.Resource.ID)
}

func TestValidate_RejectsGlobalBounce(t *testing.T) {
	in := baseInput(time.Now())
	in.Lead.Bounced = true
	v := New(&fakeSuppression{}, &fakeActivities{}, &fakePool{resource: &domain.Resource{Health: domain.HealthHealthy}}, config.JITConfig{})

	out, err := v.Validate(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, out.Allow)
	assert.Equal(t, ReasonBouncedGlobally, out.Reason)
}

func TestValidate_RejectsTouchGapTooRecent(t *testing.T) {
	now := time.Now()
	in := baseInput(now)
	activities := &fakeActivities{last: &domain.Activity{CreatedAt: now.Add(-1 * time.Hour)}}
	v := New(&fakeSuppression{}, activities, &fakePool{resource: &domain.Resource{Health: domain.HealthHealthy}}, config.JITConfig{})

	out, err := v.Validate(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, out.Allow)
	assert.Equal(t, ReasonTooRecent, out.Reason)
}

func TestValidate_RejectsVoiceBelowALSThreshold(t *testing.T) {
	in := baseInput(time.Now())
	in.Channel = domain.ChannelVoice
	in.Score = 50
	in.Lead.Phone = "+15551234567"
	v := New(&fakeSuppression{}, &fakeActivities{}, &fakePool{resource: &domain.Resource{Health: domain.HealthHealthy}}, config.JITConfig{})

	out, err := v.Validate(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, out.Allow)
	assert.Equal(t, ReasonALSTooLow, out.Reason)
}

func TestValidate_WarmupGateReleasesReservationOnReject(t *testing.T) {
	now := time.Now()
	in := baseInput(now)
	in.Tenant.OnboardedAt = now.Add(-2 * 24 * time.Hour) // onboarded 2 days ago, under the 14-day default

	pool := &fakePool{resource: &domain.Resource{ID: "res-warming", Health: domain.HealthWarming}}
	v := New(&fakeSuppression{}, &fakeActivities{}, pool, config.JITConfig{})

	out, err := v.Validate(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, out.Allow)
	assert.Equal(t, ReasonWarmupNotReady, out.Reason)
	require.Len(t, pool.released, 1)
	assert.Equal(t, "res-warming", pool.released[0])
}

func TestValidate_SuppressedGlobalRejects(t *testing.T) {
	in := baseInput(time.Now())
	suppression := &fakeSuppression{result: domain.SuppressionResult{Blocked: true, Scope: domain.ScopeGlobal}}
	v := New(suppression, &fakeActivities{}, &fakePool{resource: &domain.Resource{Health: domain.HealthHealthy}}, config.JITConfig{})

	out, err := v.Validate(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, out.Allow)
	assert.Equal(t, ReasonSuppressedGlobal, out.Reason)
}

// TestValidate_RateExhaustedResourceRejectsNotErrors covers the spec §8
// "Rate cap" property end to end through Validate: when respool.Pool's
// Select returns its real ErrNoneAvailable sentinel (every resource's
// rate-ledger reservation failed), Validate must reject with
// ReasonRateLimitChannel rather than surfacing a hard error — a rate-capped
// candidate is a normal, recordable outcome (spec §7 rejected_jit), not a
// validator failure.
func TestValidate_RateExhaustedResourceRejectsNotErrors(t *testing.T) {
	in := baseInput(time.Now())
	v := New(&fakeSuppression{}, &fakeActivities{}, &fakePool{resource: nil}, config.JITConfig{})

	out, err := v.Validate(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, out.Allow)
	assert.Equal(t, ReasonRateLimitChannel, out.Reason)
}
