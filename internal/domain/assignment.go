package domain

import "time"

// AssignmentStatus is the local sequence state of a lead within one
// tenant's pipeline.
type AssignmentStatus string

const (
	AssignmentNew            AssignmentStatus = "new"
	AssignmentEnriched       AssignmentStatus = "enriched"
	AssignmentInSequence     AssignmentStatus = "in_sequence"
	AssignmentReplied        AssignmentStatus = "replied"
	AssignmentMeetingBooked  AssignmentStatus = "meeting_booked"
	AssignmentConverted      AssignmentStatus = "converted"
	AssignmentNotInterested  AssignmentStatus = "not_interested"
	AssignmentOutOfOffice    AssignmentStatus = "out_of_office"
	AssignmentArchived       AssignmentStatus = "archived"
)

// IsTerminal reports whether the assignment has left the active pipeline
// (spec §3 lifecycle summary: "converted / archived").
func (s AssignmentStatus) IsTerminal() bool {
	switch s {
	case AssignmentConverted, AssignmentNotInterested, AssignmentArchived:
		return true
	default:
		return false
	}
}

// IsActivePipeline reports membership in the set consulted by
// monthly_replenishment's gap calculation (spec §4.6).
func (s AssignmentStatus) IsActivePipeline() bool {
	switch s {
	case AssignmentNew, AssignmentEnriched, AssignmentInSequence, AssignmentReplied:
		return true
	default:
		return false
	}
}

// Channel is one of the five outreach channels.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelVoice    Channel = "voice"
	ChannelLinkedIn Channel = "linkedin"
	ChannelMail     Channel = "mail"
)

// PersonalizationArtifact is a reference to generated content (hook,
// opener) stored by an external content generator; the core only stores
// and dispatches the resulting ref, per the Non-goals.
type PersonalizationArtifact struct {
	Kind string `json:"kind"` // "hook", "opener", ...
	Ref  string `json:"ref"`
}

// Assignment is the exclusive link from a Lead Pool Record to a Tenant.
type Assignment struct {
	ID             string           `json:"id" db:"id"`
	TenantID       string           `json:"tenant_id" db:"tenant_id"`
	LeadID         string           `json:"lead_id" db:"lead_id"`
	CampaignID     string           `json:"campaign_id" db:"campaign_id"`
	SequenceStep   int              `json:"sequence_step" db:"sequence_step"`
	Status         AssignmentStatus `json:"status" db:"status"`
	LastTouchedAt  *time.Time       `json:"last_touched_at,omitempty" db:"last_touched_at"`
	LastChannel    Channel          `json:"last_channel,omitempty" db:"last_channel"`
	RetryCount     int              `json:"retry_count" db:"retry_count"`
	Score          int              `json:"score" db:"score"`
	Tier           string           `json:"tier" db:"tier"`
	Artifacts      []PersonalizationArtifact `json:"artifacts,omitempty" db:"artifacts"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsSendable reports the JIT step-1 local-status gate: in_sequence, or
// replied with a follow-up armed (modeled here as replied + a non-zero
// next sequence step, set by the Reply Router on positive_engagement).
func (a *Assignment) IsSendable(followupArmed bool) bool {
	if a.Status == AssignmentInSequence {
		return true
	}
	return a.Status == AssignmentReplied && followupArmed
}
