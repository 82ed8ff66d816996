package domain

import "time"

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

// SequenceStepDef defines one step of a campaign's ordered touch plan.
type SequenceStepDef struct {
	Step        int     `json:"step"`
	Channel     Channel `json:"channel"`
	TemplateRef string  `json:"template_ref"`
	DelayDays   int     `json:"delay_days"` // days after the previous step before this one is due
}

// Campaign belongs to a Tenant and defines channel allocation and the
// sequence every Assignment under it follows.
type Campaign struct {
	ID                 string            `json:"id" db:"id"`
	TenantID           string            `json:"tenant_id" db:"tenant_id"`
	Name               string            `json:"name" db:"name"`
	Status             CampaignStatus    `json:"status" db:"status"`
	ChannelAllocation  map[Channel]int   `json:"channel_allocation" db:"channel_allocation"` // percentages summing to 100
	PermissionMode     PermissionMode    `json:"permission_mode" db:"permission_mode"`
	LeadQuota          int               `json:"lead_quota" db:"lead_quota"`
	Sequence           []SequenceStepDef `json:"sequence" db:"sequence"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsActive reports the JIT step-4 campaign-status gate.
func (c *Campaign) IsActive() bool { return c.Status == CampaignActive }

// StepFor returns the sequence step definition for the given step index,
// or false if the sequence does not define that many steps (meaning the
// campaign is exhausted for this assignment).
func (c *Campaign) StepFor(step int) (SequenceStepDef, bool) {
	for _, s := range c.Sequence {
		if s.Step == step {
			return s, true
		}
	}
	return SequenceStepDef{}, false
}

// ValidateAllocation reports whether the channel allocation percentages
// sum to exactly 100, per spec §3.
func (c *Campaign) ValidateAllocation() bool {
	total := 0
	for _, pct := range c.ChannelAllocation {
		total += pct
	}
	return total == 100
}
