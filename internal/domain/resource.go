package domain

import "time"

// ResourceType is the kind of sender identity.
type ResourceType string

const (
	ResourceEmailDomain  ResourceType = "email_domain"
	ResourcePhoneNumber  ResourceType = "phone_number" // shared by sms and voice channels
	ResourceLinkedInSeat ResourceType = "linkedin_seat"
	ResourceMailSender   ResourceType = "mail_sender"
)

// Channel returns the channel this resource type serves. Phone numbers
// serve both sms and voice; callers disambiguate via the channel they
// are dispatching, not the resource type alone.
func (t ResourceType) Channel() Channel {
	switch t {
	case ResourceEmailDomain:
		return ChannelEmail
	case ResourceLinkedInSeat:
		return ChannelLinkedIn
	case ResourceMailSender:
		return ChannelMail
	default:
		return ""
	}
}

// ResourceTypeForChannel returns the resource type that serves a given
// outreach channel. Both sms and voice map to ResourcePhoneNumber; the
// caller already knows which channel it's dispatching, so the ambiguity
// ResourceType.Channel() can't resolve never arises in this direction.
func ResourceTypeForChannel(c Channel) ResourceType {
	switch c {
	case ChannelEmail:
		return ResourceEmailDomain
	case ChannelSMS, ChannelVoice:
		return ResourcePhoneNumber
	case ChannelLinkedIn:
		return ResourceLinkedInSeat
	case ChannelMail:
		return ResourceMailSender
	default:
		return ""
	}
}

// DefaultDailyCap returns the configured default cap for a resource type
// per spec §4.2 / §6.1. Channel-specific phone caps (sms vs voice) are
// resolved by the caller since ResourceType alone doesn't distinguish them.
func DefaultDailyCap(t ResourceType, channel Channel) int {
	switch {
	case t == ResourceEmailDomain:
		return 50
	case t == ResourcePhoneNumber && channel == ChannelSMS:
		return 100
	case t == ResourcePhoneNumber && channel == ChannelVoice:
		return 50
	case t == ResourceLinkedInSeat:
		return 17
	case t == ResourceMailSender:
		return 1000
	default:
		return 0
	}
}

// HealthState is the operational health of a resource.
type HealthState string

const (
	HealthWarming     HealthState = "warming"
	HealthHealthy     HealthState = "healthy"
	HealthDegraded    HealthState = "degraded"
	HealthQuarantined HealthState = "quarantined"
)

// Sendable reports the health filter used by Resource Pool selection
// (spec §4.4: health ∈ {warming, healthy}).
func (h HealthState) Sendable() bool {
	return h == HealthWarming || h == HealthHealthy
}

// Resource is a sender identity in the shared platform fleet.
type Resource struct {
	ID               string       `json:"id" db:"id"`
	Type             ResourceType `json:"type" db:"type"`
	ProviderID       string       `json:"provider_id" db:"provider_id"`
	Health           HealthState  `json:"health" db:"health"`
	LastUsedAt       *time.Time   `json:"last_used_at,omitempty" db:"last_used_at"`
	UsageCount       int64        `json:"usage_count" db:"usage_count"`
	DailyCap         int          `json:"daily_cap" db:"daily_cap"`
	WarmingStartedAt *time.Time   `json:"warming_started_at,omitempty" db:"warming_started_at"`
	LeasedToTenant   string       `json:"leased_to_tenant,omitempty" db:"leased_to_tenant"`
	ConsecutiveFails int          `json:"consecutive_fails" db:"consecutive_fails"`
	LastFailureAt    *time.Time   `json:"last_failure_at,omitempty" db:"last_failure_at"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// UsableByTenant reports whether this resource may be selected for the
// given tenant: either unleased (shared pool) or leased specifically to it.
func (r *Resource) UsableByTenant(tenantID string) bool {
	return r.LeasedToTenant == "" || r.LeasedToTenant == tenantID
}

// warmupRampDays is the day-indexed (1-based) cap ramp for warming
// resources, per spec §4.4 ("day-1 5, day-2 10 ..."). Day indices beyond
// the table's length use the resource's full configured cap.
var warmupRampDays = []int{5, 10, 20, 35, 50}

// EffectiveCap returns the min of the configured cap and the warmup ramp
// schedule, if the resource is still warming.
func (r *Resource) EffectiveCap(now time.Time) int {
	if r.Health != HealthWarming || r.WarmingStartedAt == nil {
		return r.DailyCap
	}
	dayIndex := int(now.Sub(*r.WarmingStartedAt).Hours()/24) + 1
	if dayIndex <= 0 {
		dayIndex = 1
	}
	if dayIndex > len(warmupRampDays) {
		return r.DailyCap
	}
	ramp := warmupRampDays[dayIndex-1]
	if ramp < r.DailyCap {
		return ramp
	}
	return r.DailyCap
}
