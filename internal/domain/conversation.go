package domain

import "time"

// MessageDirection is which side sent a Conversation Thread message.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// ThreadMessage is one message within a Conversation Thread.
type ThreadMessage struct {
	Direction     MessageDirection `json:"direction"`
	Timestamp     time.Time        `json:"timestamp"`
	Content       string           `json:"content"`
	ProviderMsgID string           `json:"provider_msg_id,omitempty"`
}

// ConversationThread is the ordered message history for a (lead, channel)
// pair. Exactly one thread is active per (lead, channel) at a time.
type ConversationThread struct {
	ID        string          `json:"id" db:"id"`
	LeadID    string          `json:"lead_id" db:"lead_id"`
	Channel   Channel         `json:"channel" db:"channel"`
	ThreadKey string          `json:"thread_key" db:"thread_key"`
	Messages  []ThreadMessage `json:"messages" db:"messages"`
	Active    bool            `json:"active" db:"active"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Append adds a message in timestamp order. Callers are expected to pass
// monotonically increasing timestamps; Append does not re-sort.
func (c *ConversationThread) Append(m ThreadMessage) {
	c.Messages = append(c.Messages, m)
	c.UpdatedAt = m.Timestamp
}

// MeetingType distinguishes how a booked meeting will be conducted.
type MeetingType string

const (
	MeetingCall   MeetingType = "call"
	MeetingVideo  MeetingType = "video"
	MeetingInPerson MeetingType = "in_person"
)

// Meeting is a downstream artifact created by the Reply Router on
// meeting_interest → booking. Out of core scope except for the creation
// event and the outbound webhook it triggers (spec §6.3).
type Meeting struct {
	ID                string      `json:"id" db:"id"`
	TenantID          string      `json:"tenant_id" db:"tenant_id"`
	LeadID            string      `json:"lead_id" db:"lead_id"`
	CampaignID        string      `json:"campaign_id" db:"campaign_id"`
	ScheduledAt       time.Time   `json:"scheduled_at" db:"scheduled_at"`
	DurationMinutes   int         `json:"duration_minutes" db:"duration_minutes"`
	Type              MeetingType `json:"meeting_type" db:"meeting_type"`
	MeetingLink       string      `json:"meeting_link,omitempty" db:"meeting_link"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
}

// Deal is a downstream artifact; out of core scope beyond its existence
// as a terminal reference for a converted Assignment.
type Deal struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"tenant_id" db:"tenant_id"`
	AssignmentID string    `json:"assignment_id" db:"assignment_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
