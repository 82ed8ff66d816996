package replyrouter

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/config"
	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/observability"
)

// ReplyTier distinguishes the cheap-generator path from the
// budget-gated expensive path for question/positive-engagement replies
// (spec §4.10 step 4).
type ReplyTier string

const (
	ReplyTierCheap     ReplyTier = "cheap"
	ReplyTierExpensive ReplyTier = "expensive"
)

// SequenceAction is the sequence-control effect an intent drives.
type SequenceAction string

const (
	ActionPause          SequenceAction = "pause"
	ActionPauseUntilDate SequenceAction = "pause_until_date"
	ActionContinue       SequenceAction = "continue"
	ActionStop           SequenceAction = "stop"
)

// InboundMessage is the canonical payload normalized by the
// channel-specific webhook adapter (spec §6.2), the Router's single
// entry contract.
type InboundMessage struct {
	TenantID      string // optional hint; resolved authoritatively from the assignment
	LeadKey       string
	LeadKeyKind   domain.SuppressionKeyKind
	Channel       domain.Channel
	Subject       string
	Body          string
	ThreadKey     string
	ProviderMsgID string
	Timestamp     time.Time
}

// Decision summarizes what the Router did with one inbound message, for
// logging/testing.
type Decision struct {
	Duplicate bool
	Intent    Intent
	Action    SequenceAction
	Skipped   bool // no active assignment for the resolved lead
}

// Router implements the Reply Router of spec §4.10.
type Router struct {
	idempotency IdempotencyStore
	leads       LeadResolver
	leadWriter  LeadPoolWriter
	suppression SuppressionWriter
	suppChecker SuppressionChecker
	threads     ThreadStore
	assignments AssignmentStore
	tenants     TenantReader
	campaigns   CampaignReader
	activities  ActivityWriter
	meetings    MeetingCreator
	spend       ReplySpendLedger
	scheduler   ReplyScheduler
	webhooks    WebhookPusher
	alerts      AlertSink
	classifier  Classifier
	cfg         config.ReplyRouterConfig
	rng         *rand.Rand
}

// New assembles a Router. rng may be nil, in which case a
// time-seeded source is used (tests should inject a seeded *rand.Rand for
// determinism).
func New(
	idempotency IdempotencyStore,
	leads LeadResolver,
	leadWriter LeadPoolWriter,
	suppression SuppressionWriter,
	suppChecker SuppressionChecker,
	threads ThreadStore,
	assignments AssignmentStore,
	tenants TenantReader,
	campaigns CampaignReader,
	activities ActivityWriter,
	meetings MeetingCreator,
	spend ReplySpendLedger,
	scheduler ReplyScheduler,
	webhooks WebhookPusher,
	alerts AlertSink,
	classifier Classifier,
	cfg config.ReplyRouterConfig,
	rng *rand.Rand,
) *Router {
	if classifier == nil {
		classifier = KeywordClassifier{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Router{
		idempotency: idempotency,
		leads:       leads,
		leadWriter:  leadWriter,
		suppression: suppression,
		suppChecker: suppChecker,
		threads:     threads,
		assignments: assignments,
		tenants:     tenants,
		campaigns:   campaigns,
		activities:  activities,
		meetings:    meetings,
		spend:       spend,
		scheduler:   scheduler,
		webhooks:    webhooks,
		alerts:      alerts,
		classifier:  classifier,
		cfg:         cfg,
		rng:         rng,
	}
}

// Handle runs the full pipeline of spec §4.10 against one normalized
// inbound message. It is idempotent on msg.ProviderMsgID: a duplicate
// delivery is a no-op that still returns a non-error Decision.
func (r *Router) Handle(ctx context.Context, msg InboundMessage) (Decision, error) {
	firstSeen, err := r.idempotency.MarkSeen(ctx, msg.ProviderMsgID)
	if err != nil {
		return Decision{}, fmt.Errorf("idempotency check %s: %w", msg.ProviderMsgID, err)
	}
	if !firstSeen {
		observability.Metrics.ReplyDuplicateSkip.Inc()
		return Decision{Duplicate: true}, nil
	}

	lead, err := r.leads.ResolveByKey(ctx, msg.LeadKeyKind, msg.LeadKey)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve lead %s: %w", msg.LeadKey, err)
	}

	thread, err := r.threads.GetOrCreateThread(ctx, lead.ID, msg.Channel, msg.ThreadKey)
	if err != nil {
		return Decision{}, fmt.Errorf("get/create thread for lead %s: %w", lead.ID, err)
	}
	if err := r.threads.AppendMessage(ctx, thread.ID, domain.ThreadMessage{
		Direction:     domain.DirectionInbound,
		Timestamp:     msg.Timestamp,
		Content:       msg.Body,
		ProviderMsgID: msg.ProviderMsgID,
	}); err != nil {
		return Decision{}, fmt.Errorf("append thread message: %w", err)
	}

	assignment, ok, err := r.assignments.ActiveAssignment(ctx, lead.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("load active assignment for lead %s: %w", lead.ID, err)
	}
	if !ok {
		// No tenant currently owns this lead's sequence; the reply is
		// recorded on the thread but nothing downstream acts on it.
		return Decision{Skipped: true}, nil
	}

	classification, err := r.classifier.Classify(ctx, msg.Subject, msg.Body)
	if err != nil {
		return Decision{}, fmt.Errorf("classify inbound message %s: %w", msg.ProviderMsgID, err)
	}

	if err := r.activities.Append(ctx, domain.Activity{
		TenantID:     assignment.TenantID,
		LeadID:       lead.ID,
		AssignmentID: assignment.ID,
		CampaignID:   assignment.CampaignID,
		Channel:      msg.Channel,
		Action:       domain.ActionReplied,
		SequenceStep: assignment.SequenceStep,
		CreatedAt:    msg.Timestamp,
	}); err != nil {
		return Decision{}, fmt.Errorf("append replied activity: %w", err)
	}

	observability.Metrics.ReplyIntentTotal.WithLabelValues(string(classification.Intent)).Inc()

	action, err := r.applyIntent(ctx, msg, lead, assignment, classification)
	if err != nil {
		return Decision{}, err
	}

	return Decision{Intent: classification.Intent, Action: action}, nil
}

// applyIntent executes the intent-action table of spec §4.10 step 4.
func (r *Router) applyIntent(ctx context.Context, msg InboundMessage, lead domain.LeadPoolRecord, a domain.Assignment, c Classification) (SequenceAction, error) {
	switch c.Intent {
	case IntentMeetingInterest:
		a.Status = domain.AssignmentMeetingBooked
		if err := r.assignments.UpdateAssignment(ctx, a); err != nil {
			return "", fmt.Errorf("pause assignment %s: %w", a.ID, err)
		}
		if err := r.scheduleReply(ctx, msg, a, ReplyTierCheap); err != nil {
			return "", err
		}
		return ActionPause, nil

	case IntentQuestion:
		tier, err := r.tierFor(ctx, lead.ID)
		if err != nil {
			return "", err
		}
		a.Status = domain.AssignmentReplied
		if err := r.assignments.UpdateAssignment(ctx, a); err != nil {
			return "", fmt.Errorf("pause assignment %s: %w", a.ID, err)
		}
		if err := r.scheduleReply(ctx, msg, a, tier); err != nil {
			return "", err
		}
		return ActionPause, nil

	case IntentPositiveEngagement:
		a.Status = domain.AssignmentReplied
		if err := r.assignments.UpdateAssignment(ctx, a); err != nil {
			return "", fmt.Errorf("continue assignment %s: %w", a.ID, err)
		}
		if err := r.scheduleReply(ctx, msg, a, ReplyTierCheap); err != nil {
			return "", err
		}
		return ActionContinue, nil

	case IntentNotInterested:
		a.Status = domain.AssignmentNotInterested
		if err := r.assignments.UpdateAssignment(ctx, a); err != nil {
			return "", fmt.Errorf("stop assignment %s: %w", a.ID, err)
		}
		if lead.Email != "" {
			if _, err := r.suppression.Suppress(ctx, domain.ScopeTenant, a.TenantID, domain.KeyEmail, lead.Email, domain.ReasonDoNotContact, nil); err != nil {
				return "", fmt.Errorf("suppress %s for tenant %s: %w", lead.Email, a.TenantID, err)
			}
		}
		return ActionStop, nil

	case IntentOutOfOffice:
		a.Status = domain.AssignmentOutOfOffice
		if err := r.assignments.UpdateAssignment(ctx, a); err != nil {
			return "", fmt.Errorf("pause-until-date assignment %s: %w", a.ID, err)
		}
		return ActionPauseUntilDate, nil

	case IntentWrongPerson:
		a.Status = domain.AssignmentNotInterested
		if err := r.assignments.UpdateAssignment(ctx, a); err != nil {
			return "", fmt.Errorf("stop assignment %s: %w", a.ID, err)
		}
		if err := r.leadWriter.MarkInvalid(ctx, lead.ID); err != nil {
			return "", fmt.Errorf("mark lead %s invalid: %w", lead.ID, err)
		}
		return ActionStop, nil

	case IntentReferral:
		a.Status = domain.AssignmentNotInterested
		if err := r.assignments.UpdateAssignment(ctx, a); err != nil {
			return "", fmt.Errorf("stop assignment %s: %w", a.ID, err)
		}
		if c.ReferralRef != "" {
			suppressed, err := r.suppChecker.IsSuppressed(ctx, a.TenantID, domain.KeyEmail, c.ReferralRef)
			if err != nil {
				return "", fmt.Errorf("check referral suppression: %w", err)
			}
			if !suppressed.Blocked {
				referral := &domain.LeadPoolRecord{
					FirstName:      c.ReferralRef,
					ProvenanceNote: fmt.Sprintf("referral from lead %s", lead.ID),
					Status:         "new",
				}
				if _, err := r.leadWriter.UpsertSkipConflict(ctx, referral); err != nil {
					return "", fmt.Errorf("create referral lead: %w", err)
				}
			}
		}
		return ActionStop, nil

	case IntentAngryOrComplaint:
		a.Status = domain.AssignmentNotInterested
		if err := r.assignments.UpdateAssignment(ctx, a); err != nil {
			return "", fmt.Errorf("stop assignment %s: %w", a.ID, err)
		}
		r.alerts.Alert("angry_or_complaint reply received", "no automated reply will be sent", map[string]string{
			"assignment_id": a.ID,
			"lead_id":       lead.ID,
		})
		return ActionStop, nil

	default:
		return "", fmt.Errorf("fatal: unhandled intent %q", c.Intent)
	}
}

// tierFor picks cheap vs expensive per the lifetime-per-lead cost cap
// (spec §4.10 step 6): expensive once the cap is exhausted falls back to
// cheap.
func (r *Router) tierFor(ctx context.Context, leadID string) (ReplyTier, error) {
	spent, err := r.spend.Spent(ctx, leadID)
	if err != nil {
		return "", fmt.Errorf("read reply spend for lead %s: %w", leadID, err)
	}
	cap := r.cfg.LifetimeReplyCapUSD
	if cap <= 0 {
		cap = 0.50
	}
	if spent >= cap {
		return ReplyTierCheap, nil
	}
	return ReplyTierExpensive, nil
}

// scheduleReply hands the reply off with the randomized anti-bot delay
// of spec §4.9/§4.10: 3-5 min if the tenant is currently inside its send
// window, 10-15 min otherwise.
func (r *Router) scheduleReply(ctx context.Context, msg InboundMessage, a domain.Assignment, tier ReplyTier) error {
	tenant, err := r.tenants.GetTenant(ctx, a.TenantID)
	if err != nil {
		return fmt.Errorf("load tenant %s: %w", a.TenantID, err)
	}
	delay := r.randomDelay(withinWindow(tenant, msg.Timestamp))
	if err := r.scheduler.ScheduleReply(ctx, a, msg.Channel, tier, delay); err != nil {
		return fmt.Errorf("schedule reply for assignment %s: %w", a.ID, err)
	}
	if tier == ReplyTierExpensive {
		if err := r.spend.Add(ctx, a.LeadID, estimatedReplyCostUSD); err != nil {
			return fmt.Errorf("record reply spend for lead %s: %w", a.LeadID, err)
		}
	}
	observability.Metrics.ReplySpendTotal.WithLabelValues(string(tier)).Inc()
	return nil
}

// estimatedReplyCostUSD is the flat per-expensive-reply cost charged
// against the lifetime cap; a real deployment would pass the generator's
// actual token cost back instead.
const estimatedReplyCostUSD = 0.05

func (r *Router) randomDelay(inWindow bool) time.Duration {
	if inWindow {
		return time.Duration(3+r.rng.Intn(3)) * time.Minute // 3-5 min
	}
	return time.Duration(10+r.rng.Intn(6)) * time.Minute // 10-15 min
}

func withinWindow(t domain.Tenant, now time.Time) bool {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	start, end := t.SendWindowStart, t.SendWindowEnd
	if start == 0 && end == 0 {
		start, end = 8, 18
	}
	hour := local.Hour()
	return hour >= start && hour < end
}

// BookMeeting finalizes a meeting_interest thread once the lead actually
// books a slot (out-of-band calendar callback, not a reply classification
// itself): creates the Meeting artifact and fires the outbound webhook of
// spec §6.3, non-blocking to the creation itself — a push failure is
// logged to the caller's push-log, never rolled back against the meeting.
func (r *Router) BookMeeting(ctx context.Context, a domain.Assignment, lead domain.LeadPoolRecord, scheduledAt time.Time, durationMinutes int, meetingType domain.MeetingType, meetingLink string) (domain.Meeting, error) {
	meeting, err := r.meetings.CreateMeeting(ctx, domain.Meeting{
		TenantID:        a.TenantID,
		LeadID:          lead.ID,
		CampaignID:      a.CampaignID,
		ScheduledAt:     scheduledAt,
		DurationMinutes: durationMinutes,
		Type:            meetingType,
		MeetingLink:     meetingLink,
	})
	if err != nil {
		return domain.Meeting{}, fmt.Errorf("create meeting for assignment %s: %w", a.ID, err)
	}

	tenant, err := r.tenants.GetTenant(ctx, a.TenantID)
	if err != nil {
		return meeting, fmt.Errorf("load tenant %s for webhook push: %w", a.TenantID, err)
	}
	if tenant.WebhookURL == "" {
		return meeting, nil
	}
	campaign, err := r.campaigns.GetCampaign(ctx, a.CampaignID)
	if err != nil {
		return meeting, fmt.Errorf("load campaign %s for webhook push: %w", a.CampaignID, err)
	}
	if err := r.webhooks.PushMeetingBooked(ctx, tenant, lead, meeting, campaign); err != nil {
		// Non-blocking: the meeting already persisted. The pusher's own
		// push-log + degraded-endpoint tracking (spec §6.3) owns retry.
		return meeting, fmt.Errorf("push meeting_booked webhook: %w", err)
	}
	return meeting, nil
}
