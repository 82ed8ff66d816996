package domain

import "time"

// ActivityAction is the closed set of outcomes an Activity can record.
type ActivityAction string

const (
	ActionSent      ActivityAction = "sent"
	ActionDelivered ActivityAction = "delivered"
	ActionOpened    ActivityAction = "opened"
	ActionClicked   ActivityAction = "clicked"
	ActionReplied   ActivityAction = "replied"
	ActionBounced   ActivityAction = "bounced"
	ActionRejected  ActivityAction = "rejected"
	ActionFailed    ActivityAction = "failed"
)

// ContentSnapshot captures what was actually sent, frozen at send time so
// later template edits never retroactively change history.
type ContentSnapshot struct {
	Subject     string `json:"subject,omitempty"`
	BodyPreview string `json:"body_preview,omitempty"`
	TemplateRef string `json:"template_ref,omitempty"`
	ABArmRef    string `json:"ab_arm_ref,omitempty"`
	AIModelRef  string `json:"ai_model_ref,omitempty"`
}

// Activity is an append-only event. No code path may UPDATE a persisted
// Activity row; corrections are modeled as a new Activity.
type Activity struct {
	ID              string          `json:"id" db:"id"`
	TenantID        string          `json:"tenant_id" db:"tenant_id"`
	LeadID          string          `json:"lead_id" db:"lead_id"`
	AssignmentID    string          `json:"assignment_id" db:"assignment_id"`
	CampaignID      string          `json:"campaign_id" db:"campaign_id"`
	Channel         Channel         `json:"channel" db:"channel"`
	Action          ActivityAction  `json:"action" db:"action"`
	RejectReason    string          `json:"reject_reason,omitempty" db:"reject_reason"`
	ProviderMsgID   string          `json:"provider_msg_id,omitempty" db:"provider_msg_id"`
	ResourceID      string          `json:"resource_id,omitempty" db:"resource_id"`
	Content         ContentSnapshot `json:"content" db:"content"`
	SequenceStep    int             `json:"sequence_step" db:"sequence_step"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}
