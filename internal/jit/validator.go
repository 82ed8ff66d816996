package jit

import (
	"context"
	"errors"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/config"
	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/respool"
)

// ActivityReader is the subset of Activity history the validator needs:
// the most recent activity to a lead (touch gap) and the most recent
// activity to a lead on a specific channel (channel cooldown).
type ActivityReader interface {
	LastActivity(ctx context.Context, leadID string) (*domain.Activity, error)
	LastChannelActivity(ctx context.Context, leadID string, channel domain.Channel) (*domain.Activity, error)
}

// SuppressionChecker is the is_suppressed contract, declared locally so
// this package depends only on the method shape, not on
// internal/suppressionindex's alert/bloom wiring.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, tenantID string, kind domain.SuppressionKeyKind, rawKey string) (domain.SuppressionResult, error)
}

// ResourcePool is the subset of respool.Pool's contract the validator
// needs for step 13's tentative reserve (and its release, if a later
// check rejects the send after a resource was already chosen).
type ResourcePool interface {
	Select(ctx context.Context, resourceType domain.ResourceType, tenantID string, now time.Time) (*domain.Resource, error)
	Release(ctx context.Context, resourceID string, now time.Time) error
}

// Outcome is the tagged allow/reject result of Validate.
type Outcome struct {
	Allow    bool
	Reason   RejectReason
	Resource *domain.Resource
}

func reject(reason RejectReason) Outcome { return Outcome{Allow: false, Reason: reason} }

// Input bundles everything Validate needs for one candidate send. Score
// is passed explicitly (rather than read off Assignment) so callers can
// validate against a just-recomputed score without persisting it first.
type Input struct {
	Tenant     domain.Tenant
	Campaign   domain.Campaign
	Lead       domain.LeadPoolRecord
	Assignment domain.Assignment
	Channel    domain.Channel
	Score      int
	Now        time.Time
}

// Validator runs the 13-step ordered gate of spec §4.8.
type Validator struct {
	suppression SuppressionChecker
	activities  ActivityReader
	pool        ResourcePool
	cfg         config.JITConfig
}

// New creates a JIT Validator.
func New(suppression SuppressionChecker, activities ActivityReader, pool ResourcePool, cfg config.JITConfig) *Validator {
	return &Validator{suppression: suppression, activities: activities, pool: pool, cfg: cfg}
}

// Validate runs in.Channel against in.Assignment/in.Lead/in.Tenant/
// in.Campaign at in.Now and returns a tagged allow/reject outcome. On
// allow, Outcome.Resource carries a reservation the caller must either
// consume (on successful dispatch) or release via the pool (on failure
// before dispatch).
func (v *Validator) Validate(ctx context.Context, in Input) (Outcome, error) {
	// 1. local status
	followupArmed := in.Assignment.SequenceStep > 0
	if !in.Assignment.IsSendable(followupArmed) {
		return reject(ReasonLocalStatus), nil
	}

	// 2. subscription
	if !in.Tenant.Subscription.IsSendEligible() {
		return reject(ReasonSubscriptionInactive), nil
	}

	// 3. credits
	if in.Tenant.CreditsRemaining <= 0 {
		return reject(ReasonNoCredits), nil
	}

	// 4. campaign active
	if !in.Campaign.IsActive() {
		return reject(ReasonCampaignInactive), nil
	}

	// 5. permission mode
	if in.Campaign.PermissionMode == domain.PermissionManual {
		return reject(ReasonManualMode), nil
	}

	// 6. global bounce/unsubscribe
	if in.Lead.Bounced {
		return reject(ReasonBouncedGlobally), nil
	}
	if in.Lead.Unsubscribed {
		return reject(ReasonUnsubscribedGlobally), nil
	}

	// 7. suppression list
	if key, kind, ok := suppressionKeyFor(in.Channel, in.Lead); ok {
		res, err := v.suppression.IsSuppressed(ctx, in.Tenant.ID, kind, key)
		if err != nil {
			return Outcome{}, err
		}
		if res.Blocked {
			switch res.Scope {
			case domain.ScopeGlobal:
				return reject(ReasonSuppressedGlobal), nil
			case domain.ScopeDomain:
				return reject(ReasonSuppressedDomain), nil
			default:
				return reject(ReasonSuppressedTenant), nil
			}
		}
	}

	// 8. email status
	if in.Channel == domain.ChannelEmail && in.Lead.EmailStatus == domain.EmailInvalid {
		return reject(ReasonEmailInvalid), nil
	}

	// 9. minimum touch gap
	last, err := v.activities.LastActivity(ctx, in.Lead.ID)
	if err != nil {
		return Outcome{}, err
	}
	if last != nil && daysSince(last.CreatedAt, in.Now) < minTouchGapDays(v.cfg) {
		return reject(ReasonTooRecent), nil
	}

	// 10. channel cooldown
	lastOnChannel, err := v.activities.LastChannelActivity(ctx, in.Lead.ID, in.Channel)
	if err != nil {
		return Outcome{}, err
	}
	if lastOnChannel != nil && daysSince(lastOnChannel.CreatedAt, in.Now) < channelCooldownDays(v.cfg) {
		return reject(ReasonChannelCooldown), nil
	}

	// 11. channel ALS gate
	switch in.Channel {
	case domain.ChannelVoice:
		if in.Score < voiceMinALS(v.cfg) {
			return reject(ReasonALSTooLow), nil
		}
	case domain.ChannelMail:
		if in.Score < mailMinALS(v.cfg) {
			return reject(ReasonALSTooLow), nil
		}
	}

	// 12-13. warmup gate and rate-ledger reserve. A concrete resource must
	// be chosen to evaluate the warmup gate ("sending resource is past
	// warming"), so selection (which performs the rate-ledger reserve,
	// step 13) happens first; the warmup check, if it fails, releases that
	// reservation rather than leaving it held.
	resourceType := resourceTypeFor(in.Channel)
	resource, err := v.pool.Select(ctx, resourceType, in.Tenant.ID, in.Now)
	if err != nil {
		if errors.Is(err, respool.ErrNoneAvailable) {
			return reject(ReasonRateLimitChannel), nil
		}
		return Outcome{}, err
	}
	if resource == nil {
		return reject(ReasonRateLimitChannel), nil
	}

	if in.Channel == domain.ChannelEmail {
		onboardedLongEnough := in.Tenant.OnboardedDays(in.Now) >= emailWarmupDays(v.cfg)
		resourcePastWarming := resource.Health != domain.HealthWarming
		if !onboardedLongEnough && !resourcePastWarming {
			_ = v.pool.Release(ctx, resource.ID, in.Now)
			return reject(ReasonWarmupNotReady), nil
		}
	}

	return Outcome{Allow: true, Resource: resource}, nil
}

func daysSince(t, now time.Time) int {
	return int(now.Sub(t).Hours() / 24)
}

func suppressionKeyFor(channel domain.Channel, lead domain.LeadPoolRecord) (key string, kind domain.SuppressionKeyKind, ok bool) {
	switch channel {
	case domain.ChannelSMS, domain.ChannelVoice:
		if lead.Phone != "" {
			return lead.Phone, domain.KeyPhone, true
		}
	default:
		if lead.Email != "" {
			return lead.Email, domain.KeyEmail, true
		}
	}
	return "", "", false
}

func resourceTypeFor(channel domain.Channel) domain.ResourceType {
	switch channel {
	case domain.ChannelEmail:
		return domain.ResourceEmailDomain
	case domain.ChannelSMS, domain.ChannelVoice:
		return domain.ResourcePhoneNumber
	case domain.ChannelLinkedIn:
		return domain.ResourceLinkedInSeat
	case domain.ChannelMail:
		return domain.ResourceMailSender
	default:
		return ""
	}
}

func minTouchGapDays(cfg config.JITConfig) int {
	if cfg.MinTouchGapDays > 0 {
		return cfg.MinTouchGapDays
	}
	return 2
}

func channelCooldownDays(cfg config.JITConfig) int {
	if cfg.ChannelCooldownDays > 0 {
		return cfg.ChannelCooldownDays
	}
	return 5
}

func voiceMinALS(cfg config.JITConfig) int {
	if cfg.VoiceMinALS > 0 {
		return cfg.VoiceMinALS
	}
	return 70
}

func mailMinALS(cfg config.JITConfig) int {
	if cfg.MailMinALS > 0 {
		return cfg.MailMinALS
	}
	return 85
}

func emailWarmupDays(cfg config.JITConfig) int {
	if cfg.EmailWarmupDays > 0 {
		return cfg.EmailWarmupDays
	}
	return 14
}
