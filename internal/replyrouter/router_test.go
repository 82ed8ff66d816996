package replyrouter

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keiracom/agencyos-dispatch/internal/config"
	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

type fakeIdempotency struct{ seen map[string]bool }

func newFakeIdempotency() *fakeIdempotency { return &fakeIdempotency{seen: map[string]bool{}} }

func (f *fakeIdempotency) MarkSeen(ctx context.Context, id string) (bool, error) {
	if f.seen[id] {
		return false, nil
	}
	f.seen[id] = true
	return true, nil
}

type fakeLeads struct{ byKey map[string]domain.LeadPoolRecord }

func (f *fakeLeads) ResolveByKey(ctx context.Context, kind domain.SuppressionKeyKind, key string) (domain.LeadPoolRecord, error) {
	return f.byKey[key], nil
}

type fakeLeadWriter struct {
	invalidated []string
	inserted    []*domain.LeadPoolRecord
}

func (f *fakeLeadWriter) MarkInvalid(ctx context.Context, leadID string) error {
	f.invalidated = append(f.invalidated, leadID)
	return nil
}
func (f *fakeLeadWriter) UpsertSkipConflict(ctx context.Context, rec *domain.LeadPoolRecord) (bool, error) {
	f.inserted = append(f.inserted, rec)
	return true, nil
}

type fakeSuppressionWriter struct{ calls int }

func (f *fakeSuppressionWriter) Suppress(ctx context.Context, scope domain.SuppressionScope, tenantID string, kind domain.SuppressionKeyKind, rawKey string, reason domain.SuppressionReason, expiresAt *time.Time) (*domain.SuppressionEntry, error) {
	f.calls++
	return &domain.SuppressionEntry{Scope: scope, TenantID: tenantID, KeyKind: kind, Key: rawKey, Reason: reason}, nil
}

type fakeSuppressionChecker struct{ blocked map[string]bool }

func (f *fakeSuppressionChecker) IsSuppressed(ctx context.Context, tenantID string, kind domain.SuppressionKeyKind, rawKey string) (domain.SuppressionResult, error) {
	return domain.SuppressionResult{Blocked: f.blocked[rawKey]}, nil
}

type fakeThreads struct {
	threads  map[string]domain.ConversationThread
	appended []domain.ThreadMessage
}

func newFakeThreads() *fakeThreads {
	return &fakeThreads{threads: map[string]domain.ConversationThread{}}
}

func (f *fakeThreads) GetOrCreateThread(ctx context.Context, leadID string, channel domain.Channel, threadKey string) (domain.ConversationThread, error) {
	key := leadID + ":" + string(channel) + ":" + threadKey
	if t, ok := f.threads[key]; ok {
		return t, nil
	}
	t := domain.ConversationThread{ID: key, LeadID: leadID, Channel: channel, ThreadKey: threadKey, Active: true}
	f.threads[key] = t
	return t, nil
}

func (f *fakeThreads) AppendMessage(ctx context.Context, threadID string, msg domain.ThreadMessage) error {
	f.appended = append(f.appended, msg)
	return nil
}

type fakeAssignments struct {
	active  map[string]domain.Assignment
	updated []domain.Assignment
}

func (f *fakeAssignments) ActiveAssignment(ctx context.Context, leadID string) (domain.Assignment, bool, error) {
	a, ok := f.active[leadID]
	return a, ok, nil
}

func (f *fakeAssignments) UpdateAssignment(ctx context.Context, a domain.Assignment) error {
	f.updated = append(f.updated, a)
	f.active[a.LeadID] = a
	return nil
}

type fakeTenantReader struct{ t domain.Tenant }

func (f *fakeTenantReader) GetTenant(ctx context.Context, id string) (domain.Tenant, error) { return f.t, nil }

type fakeCampaignReader struct{ c domain.Campaign }

func (f *fakeCampaignReader) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	return f.c, nil
}

type fakeActivityWriter struct{ appended []domain.Activity }

func (f *fakeActivityWriter) Append(ctx context.Context, a domain.Activity) error {
	f.appended = append(f.appended, a)
	return nil
}

type fakeMeetingCreator struct{ created []domain.Meeting }

func (f *fakeMeetingCreator) CreateMeeting(ctx context.Context, m domain.Meeting) (domain.Meeting, error) {
	m.ID = "meeting-1"
	f.created = append(f.created, m)
	return m, nil
}

type fakeSpendLedger struct{ spent map[string]float64 }

func newFakeSpendLedger() *fakeSpendLedger { return &fakeSpendLedger{spent: map[string]float64{}} }

func (f *fakeSpendLedger) Spent(ctx context.Context, leadID string) (float64, error) {
	return f.spent[leadID], nil
}
func (f *fakeSpendLedger) Add(ctx context.Context, leadID string, amountUSD float64) error {
	f.spent[leadID] += amountUSD
	return nil
}

type fakeReplyScheduler struct {
	scheduled []domain.Assignment
	tiers     []ReplyTier
	delays    []time.Duration
}

func (f *fakeReplyScheduler) ScheduleReply(ctx context.Context, a domain.Assignment, channel domain.Channel, tier ReplyTier, delay time.Duration) error {
	f.scheduled = append(f.scheduled, a)
	f.tiers = append(f.tiers, tier)
	f.delays = append(f.delays, delay)
	return nil
}

type fakeWebhookPusher struct{ pushed int }

func (f *fakeWebhookPusher) PushMeetingBooked(ctx context.Context, tenant domain.Tenant, lead domain.LeadPoolRecord, meeting domain.Meeting, campaign domain.Campaign) error {
	f.pushed++
	return nil
}

type fakeAlertSink struct{ alerts []string }

func (f *fakeAlertSink) Alert(subject, body string, fields map[string]string) {
	f.alerts = append(f.alerts, subject)
}

type fixture struct {
	router      *Router
	idempotency *fakeIdempotency
	leadWriter  *fakeLeadWriter
	suppression *fakeSuppressionWriter
	threads     *fakeThreads
	assignments *fakeAssignments
	spend       *fakeSpendLedger
	scheduler   *fakeReplyScheduler
	alerts      *fakeAlertSink
	webhooks    *fakeWebhookPusher
	lead        domain.LeadPoolRecord
}

func newFixture(classifier Classifier) fixture {
	lead := domain.LeadPoolRecord{ID: "lead-1", Email: "lead@example.com"}
	tenant := domain.Tenant{ID: "tenant-1", Timezone: "UTC", SendWindowStart: 0, SendWindowEnd: 24, WebhookURL: "https://tenant.example.com/webhook"}
	campaign := domain.Campaign{ID: "campaign-1"}
	assignment := domain.Assignment{ID: "assignment-1", TenantID: tenant.ID, CampaignID: campaign.ID, LeadID: lead.ID, Status: domain.AssignmentInSequence, SequenceStep: 1}

	idempotency := newFakeIdempotency()
	leadWriter := &fakeLeadWriter{}
	suppression := &fakeSuppressionWriter{}
	threads := newFakeThreads()
	assignments := &fakeAssignments{active: map[string]domain.Assignment{lead.ID: assignment}}
	spend := newFakeSpendLedger()
	scheduler := &fakeReplyScheduler{}
	alerts := &fakeAlertSink{}
	webhooks := &fakeWebhookPusher{}

	r := New(
		idempotency,
		&fakeLeads{byKey: map[string]domain.LeadPoolRecord{lead.Email: lead}},
		leadWriter,
		suppression,
		&fakeSuppressionChecker{blocked: map[string]bool{}},
		threads,
		assignments,
		&fakeTenantReader{t: tenant},
		&fakeCampaignReader{c: campaign},
		&fakeActivityWriter{},
		&fakeMeetingCreator{},
		spend,
		scheduler,
		webhooks,
		alerts,
		classifier,
		config.ReplyRouterConfig{LifetimeReplyCapUSD: 0.50},
		rand.New(rand.NewSource(1)),
	)

	return fixture{
		router:      r,
		idempotency: idempotency,
		leadWriter:  leadWriter,
		suppression: suppression,
		threads:     threads,
		assignments: assignments,
		spend:       spend,
		scheduler:   scheduler,
		alerts:      alerts,
		webhooks:    webhooks,
		lead:        lead,
	}
}

func baseMsg(body, providerMsgID string) InboundMessage {
	return InboundMessage{
		LeadKey:       "lead@example.com",
		LeadKeyKind:   domain.KeyEmail,
		Channel:       domain.ChannelEmail,
		Body:          body,
		ThreadKey:     "thread-1",
		ProviderMsgID: providerMsgID,
		Timestamp:     time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC),
	}
}

func TestHandle_DuplicateProviderMsgIDIsNoOp(t *testing.T) {
	f := newFixture(KeywordClassifier{})
	msg := baseMsg("sounds good, tell me more", "msg-1")

	_, err := f.router.Handle(context.Background(), msg)
	require.NoError(t, err, "first delivery")
	d, err := f.router.Handle(context.Background(), msg)
	require.NoError(t, err, "duplicate delivery")
	assert.True(t, d.Duplicate, "expected duplicate decision, got %+v", d)
	assert.Len(t, f.threads.appended, 1, "expected exactly one thread message appended")
}

func TestHandle_MeetingInterestPausesAndSchedulesCheapReply(t *testing.T) {
	f := newFixture(KeywordClassifier{})
	msg := baseMsg("happy to chat, how's Tuesday?", "msg-1")

	d, err := f.router.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, IntentMeetingInterest, d.Intent)
	assert.Equal(t, ActionPause, d.Action)
	assert.Equal(t, domain.AssignmentMeetingBooked, f.assignments.active[f.lead.ID].Status)
	require.Len(t, f.scheduler.scheduled, 1)
	assert.Equal(t, ReplyTierCheap, f.scheduler.tiers[0])
}

func TestHandle_NotInterestedStopsAndSuppresses(t *testing.T) {
	f := newFixture(KeywordClassifier{})
	msg := baseMsg("not interested, remove me please", "msg-1")

	d, err := f.router.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, IntentNotInterested, d.Intent)
	assert.Equal(t, ActionStop, d.Action)
	assert.Equal(t, 1, f.suppression.calls)
}

func TestHandle_WrongPersonMarksLeadInvalid(t *testing.T) {
	f := newFixture(KeywordClassifier{})
	msg := baseMsg("wrong person, I no longer work here, try Jane instead", "msg-1")

	d, err := f.router.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, IntentWrongPerson, d.Intent)
	assert.Equal(t, ActionStop, d.Action)
	assert.Len(t, f.leadWriter.invalidated, 1)
}

func TestHandle_AngryOrComplaintAlertsWithoutReply(t *testing.T) {
	f := newFixture(KeywordClassifier{})
	msg := baseMsg("this is harassment, I will take legal action", "msg-1")

	d, err := f.router.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, IntentAngryOrComplaint, d.Intent)
	assert.Equal(t, ActionStop, d.Action)
	assert.Len(t, f.alerts.alerts, 1)
	assert.Empty(t, f.scheduler.scheduled, "expected no automated reply scheduled")
}

func TestHandle_QuestionFallsBackToCheapOnceCapExhausted(t *testing.T) {
	f := newFixture(KeywordClassifier{})
	f.spend.spent[f.lead.ID] = 0.50 // cap already exhausted
	msg := baseMsg("what's the pricing for this?", "msg-1")

	d, err := f.router.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, IntentQuestion, d.Intent)
	require.Len(t, f.scheduler.tiers, 1)
	assert.Equal(t, ReplyTierCheap, f.scheduler.tiers[0])
}

func TestHandle_QuestionUsesExpensiveTierUnderCap(t *testing.T) {
	f := newFixture(KeywordClassifier{})
	msg := baseMsg("what's the pricing for this?", "msg-1")

	_, err := f.router.Handle(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, f.scheduler.tiers, 1)
	assert.Equal(t, ReplyTierExpensive, f.scheduler.tiers[0])
	assert.Equal(t, estimatedReplyCostUSD, f.spend.spent[f.lead.ID])
}

func TestHandle_ReferralSkipsWhenAlreadySuppressed(t *testing.T) {
	lead := domain.LeadPoolRecord{ID: "lead-1", Email: "lead@example.com"}
	tenant := domain.Tenant{ID: "tenant-1", Timezone: "UTC", SendWindowStart: 0, SendWindowEnd: 24}
	campaign := domain.Campaign{ID: "campaign-1"}
	assignment := domain.Assignment{ID: "assignment-1", TenantID: tenant.ID, CampaignID: campaign.ID, LeadID: lead.ID, Status: domain.AssignmentInSequence}

	leadWriter := &fakeLeadWriter{}
	r := New(
		newFakeIdempotency(),
		&fakeLeads{byKey: map[string]domain.LeadPoolRecord{lead.Email: lead}},
		leadWriter,
		&fakeSuppressionWriter{},
		&fakeSuppressionChecker{blocked: map[string]bool{"Someone Else": true}},
		newFakeThreads(),
		&fakeAssignments{active: map[string]domain.Assignment{lead.ID: assignment}},
		&fakeTenantReader{t: tenant},
		&fakeCampaignReader{c: campaign},
		&fakeActivityWriter{},
		&fakeMeetingCreator{},
		newFakeSpendLedger(),
		&fakeReplyScheduler{},
		&fakeWebhookPusher{},
		&fakeAlertSink{},
		KeywordClassifier{},
		config.ReplyRouterConfig{LifetimeReplyCapUSD: 0.50},
		rand.New(rand.NewSource(1)),
	)

	msg := baseMsg("please reach out to Someone Else on our team", "msg-1")
	d, err := r.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, IntentReferral, d.Intent)
	assert.Empty(t, leadWriter.inserted, "expected no referral lead created when suppressed")
}

func TestHandle_SkipsWhenNoActiveAssignment(t *testing.T) {
	f := newFixture(KeywordClassifier{})
	delete(f.assignments.active, f.lead.ID)
	msg := baseMsg("sounds good, tell me more", "msg-1")

	d, err := f.router.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, d.Skipped, "expected skipped decision, got %+v", d)
}

func TestBookMeeting_PersistsAndPushesWebhook(t *testing.T) {
	f := newFixture(KeywordClassifier{})
	assignment := f.assignments.active[f.lead.ID]

	meeting, err := f.router.BookMeeting(context.Background(), assignment, f.lead, time.Date(2026, 1, 10, 15, 0, 0, 0, time.UTC), 30, domain.MeetingVideo, "https://meet.example.com/abc")
	require.NoError(t, err)
	assert.NotEmpty(t, meeting.ID, "expected meeting to be persisted with an id")
	assert.Equal(t, 1, f.webhooks.pushed)
}
