package patterns

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keiracom/agencyos-dispatch/internal/config"
	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

func sample(title, industry string, icp domain.ICPVector, channel domain.Channel, step int, converted bool, sentAt time.Time) ConversionSample {
	return ConversionSample{
		TenantID:     "tenant-1",
		Lead:         domain.LeadPoolRecord{Title: title, Firmographics: domain.Firmographics{Industry: industry}},
		ICP:          icp,
		Channel:      channel,
		SequenceStep: step,
		SentAt:       sentAt,
		Converted:    converted,
	}
}

func TestDetectWho_VPTitleLiftsAboveBaseline(t *testing.T) {
	icp := domain.ICPVector{Industries: []string{"SaaS"}}
	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	var samples []ConversionSample
	for i := 0; i < 25; i++ {
		samples = append(samples, sample("VP of Sales", "SaaS", icp, domain.ChannelEmail, 1, true, base))
	}
	for i := 0; i < 25; i++ {
		samples = append(samples, sample("Associate", "SaaS", icp, domain.ChannelEmail, 1, false, base))
	}

	lifts := detectWho(samples)
	var titleLift *domain.FeatureLift
	for i := range lifts {
		if lifts[i].Feature == "title_seniority_match" {
			titleLift = &lifts[i]
		}
	}
	require.NotNil(t, titleLift, "expected a title_seniority_match observation, got %+v", lifts)
	assert.Greater(t, titleLift.Lift, 0.5, "expected high average seniority among conversions")
	assert.True(t, titleLift.Eligible(0.70, 20), "expected eligibility at sample size %d to be true", titleLift.SampleSize)
}

func TestDetectWhat_ChannelLiftRelativeToBaseline(t *testing.T) {
	icp := domain.ICPVector{}
	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	var samples []ConversionSample
	for i := 0; i < 20; i++ {
		samples = append(samples, sample("", "", icp, domain.ChannelEmail, 1, true, base))
	}
	for i := 0; i < 20; i++ {
		samples = append(samples, sample("", "", icp, domain.ChannelSMS, 1, false, base))
	}

	lifts := detectWhat(samples)
	var emailLift, smsLift *domain.FeatureLift
	for i := range lifts {
		switch lifts[i].Feature {
		case "channel:email":
			emailLift = &lifts[i]
		case "channel:sms":
			smsLift = &lifts[i]
		}
	}
	require.NotNil(t, emailLift, "expected both channel buckets, got %+v", lifts)
	require.NotNil(t, smsLift, "expected both channel buckets, got %+v", lifts)
	assert.Greater(t, emailLift.Lift, smsLift.Lift, "expected email to out-convert sms")
}

func TestDetectWhen_NoConversionsYieldsNoLift(t *testing.T) {
	icp := domain.ICPVector{}
	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	samples := []ConversionSample{
		sample("", "", icp, domain.ChannelEmail, 1, false, base),
		sample("", "", icp, domain.ChannelEmail, 1, false, base.Add(time.Hour)),
	}
	assert.Nil(t, detectWhen(samples), "expected nil lifts with zero conversions")
}

type fakeRepo struct{ samples []ConversionSample }

func (f *fakeRepo) ConversionSamples(ctx context.Context, tenantID string, since time.Time) ([]ConversionSample, error) {
	return f.samples, nil
}

type fakeStore struct {
	saved    []domain.PatternRecord
	lastRun  map[string]time.Time
	setCalls int
}

func newFakeStore() *fakeStore { return &fakeStore{lastRun: map[string]time.Time{}} }

func (f *fakeStore) SaveRecords(ctx context.Context, records []domain.PatternRecord) error {
	f.saved = append(f.saved, records...)
	return nil
}
func (f *fakeStore) LastRunAt(ctx context.Context, tenantID string) (time.Time, bool, error) {
	t, ok := f.lastRun[tenantID]
	return t, ok, nil
}
func (f *fakeStore) SetLastRunAt(ctx context.Context, tenantID string, at time.Time) error {
	f.setCalls++
	f.lastRun[tenantID] = at
	return nil
}

func TestService_Run_SkipsBelowMinConversions(t *testing.T) {
	icp := domain.ICPVector{}
	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	samples := []ConversionSample{
		sample("VP", "SaaS", icp, domain.ChannelEmail, 1, true, base),
	}
	store := newFakeStore()
	svc := New(&fakeRepo{samples: samples}, store, nil, config.PatternsConfig{MinConversions: 20, MinConfidence: 0.7, MinSampleSize: 30, RunIntervalDays: 7})

	records, err := svc.Run(context.Background(), "tenant-1", base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, records, "expected no records below min conversions")
	assert.Equal(t, 1, store.setCalls, "expected last-run to still be recorded")
}

func TestService_Run_ProducesRecordsAboveThreshold(t *testing.T) {
	icp := domain.ICPVector{Industries: []string{"SaaS"}}
	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	var samples []ConversionSample
	for i := 0; i < 30; i++ {
		samples = append(samples, sample("VP of Sales", "SaaS", icp, domain.ChannelEmail, 1, true, base))
	}
	for i := 0; i < 30; i++ {
		samples = append(samples, sample("Associate", "Retail", icp, domain.ChannelSMS, 2, false, base))
	}

	store := newFakeStore()
	svc := New(&fakeRepo{samples: samples}, store, nil, config.PatternsConfig{MinConversions: 20, MinConfidence: 0.7, MinSampleSize: 30, RunIntervalDays: 7})

	records, err := svc.Run(context.Background(), "tenant-1", base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.NotEmpty(t, records, "expected at least one pattern record")
	assert.Len(t, store.saved, len(records), "expected saved records to match returned records")
}

func TestService_RunAll_SkipsScopeWithinInterval(t *testing.T) {
	icp := domain.ICPVector{}
	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.lastRun[""] = base.Add(-24 * time.Hour) // ran yesterday, interval is 7 days
	svc := New(&fakeRepo{samples: []ConversionSample{sample("", "", icp, domain.ChannelEmail, 1, true, base)}}, store, nil, config.PatternsConfig{MinConversions: 20, MinConfidence: 0.7, MinSampleSize: 30, RunIntervalDays: 7})

	err := svc.RunAll(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, 0, store.setCalls, "expected RunAll to skip the in-interval scope")
}
