package domain

import "time"

// ScheduledReply is an automated reply waiting out its randomized
// anti-bot delay (spec §4.9/§4.10) before the reply dispatcher sends it.
// Tier mirrors replyrouter.ReplyTier's string values ("cheap"/"expensive")
// without importing that package, the same pattern Assignment.Status
// uses for cross-package enum values stored as plain strings.
type ScheduledReply struct {
	ID           string
	AssignmentID string
	Channel      Channel
	Tier         string
	DueAt        time.Time
}
