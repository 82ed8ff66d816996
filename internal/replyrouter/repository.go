package replyrouter

import (
	"context"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

// LeadResolver resolves the canonical lead_key from a webhook payload
// (email, phone, or linkedin id) to the owning Lead Pool record.
type LeadResolver interface {
	ResolveByKey(ctx context.Context, kind domain.SuppressionKeyKind, key string) (domain.LeadPoolRecord, error)
}

// AssignmentStore fetches and mutates the single active Assignment for a
// lead (the Reply Router only ever acts on the one live assignment; a
// lead with no active assignment is ignored — there is no sequence to
// control).
type AssignmentStore interface {
	ActiveAssignment(ctx context.Context, leadID string) (domain.Assignment, bool, error)
	UpdateAssignment(ctx context.Context, a domain.Assignment) error
}

// ThreadStore owns the one active Conversation Thread per (lead,
// channel).
type ThreadStore interface {
	GetOrCreateThread(ctx context.Context, leadID string, channel domain.Channel, threadKey string) (domain.ConversationThread, error)
	AppendMessage(ctx context.Context, threadID string, msg domain.ThreadMessage) error
}

// SuppressionWriter is the write side of the Suppression Index this
// package depends on (not_interested → tenant suppression).
type SuppressionWriter interface {
	Suppress(ctx context.Context, scope domain.SuppressionScope, tenantID string, kind domain.SuppressionKeyKind, rawKey string, reason domain.SuppressionReason, expiresAt *time.Time) (*domain.SuppressionEntry, error)
}

// LeadPoolWriter is the subset of Lead Pool mutation the Router performs
// directly: marking a lead invalid (wrong_person) and creating a new pool
// record for a referral (skip-on-suppression applies exactly as it does
// during sourcing).
type LeadPoolWriter interface {
	MarkInvalid(ctx context.Context, leadID string) error
	UpsertSkipConflict(ctx context.Context, rec *domain.LeadPoolRecord) (inserted bool, err error)
}

// SuppressionChecker lets the Router skip creating a referral lead that
// is already suppressed, mirroring the Allocator's sourcing check.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, tenantID string, kind domain.SuppressionKeyKind, rawKey string) (domain.SuppressionResult, error)
}

// MeetingCreator persists the downstream Meeting artifact on booking.
type MeetingCreator interface {
	CreateMeeting(ctx context.Context, m domain.Meeting) (domain.Meeting, error)
}

// TenantReader fetches the tenant owning an assignment, needed for the
// outbound webhook contract (spec §6.3) and send-window-aware delay.
type TenantReader interface {
	GetTenant(ctx context.Context, id string) (domain.Tenant, error)
}

// CampaignReader fetches the campaign owning an assignment, needed for
// the outbound webhook's campaign block.
type CampaignReader interface {
	GetCampaign(ctx context.Context, id string) (domain.Campaign, error)
}

// ActivityWriter appends the append-only Activity record for "replied".
type ActivityWriter interface {
	Append(ctx context.Context, a domain.Activity) error
}

// ReplySpendLedger tracks the lifetime per-lead cost cap on expensive
// reply generation (spec §4.10, default $0.50).
type ReplySpendLedger interface {
	Spent(ctx context.Context, leadID string) (float64, error)
	Add(ctx context.Context, leadID string, amountUSD float64) error
}

// IdempotencyStore de-duplicates inbound webhooks by provider_msg_id
// (spec §6.2: "idempotent on provider_msg_id").
type IdempotencyStore interface {
	// MarkSeen reports whether this is the first time providerMsgID has
	// been observed (true: first time, proceed; false: duplicate, skip).
	MarkSeen(ctx context.Context, providerMsgID string) (firstSeen bool, err error)
}

// ReplyScheduler hands an automated reply off to be sent after delay —
// the randomized 3-5 min (in window) / 10-15 min (out of window) anti-bot
// hygiene interval of spec §4.9/§4.10. Actual reply content generation is
// delegated to an external collaborator per the Non-goals; the Router
// only decides whether to schedule one and at what tier (cheap/expensive).
type ReplyScheduler interface {
	ScheduleReply(ctx context.Context, assignment domain.Assignment, channel domain.Channel, tier ReplyTier, delay time.Duration) error
}

// WebhookPusher delivers the outbound meeting_booked webhook (spec §6.3).
type WebhookPusher interface {
	PushMeetingBooked(ctx context.Context, tenant domain.Tenant, lead domain.LeadPoolRecord, meeting domain.Meeting, campaign domain.Campaign) error
}

// AlertSink raises an operator alert for angry_or_complaint intents,
// which never receive an automated reply.
type AlertSink interface {
	Alert(subject, body string, fields map[string]string)
}
