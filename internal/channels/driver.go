package channels

import (
	"context"
	"errors"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

// ErrPermanent wraps a driver error the caller must never retry (spec §7:
// permanent_provider_error). ErrTransient marks one worth retrying with
// backoff (spec §7: transient_provider_error). A driver that returns a
// plain error not wrapped in either is treated as transient, the more
// conservative default.
var (
	ErrPermanent = errors.New("channel driver: permanent error")
	ErrTransient = errors.New("channel driver: transient error")
	// ErrRejectedDNCR marks a send refused inside the driver itself
	// because the destination matched a do-not-call registry (spec §4.12,
	// §7: distinct from a JIT reject because it requires a provider
	// lookup the JIT Validator has no access to).
	ErrRejectedDNCR = errors.New("channel driver: rejected by do-not-call registry")
)

// Content is the outbound message content a Driver dispatches, already
// resolved by the Scheduler (template + personalization, or an
// SDK-enhanced generation for tier=Hot assignments).
type Content struct {
	Subject     string
	Body        string
	TemplateRef string
	ABArmRef    string
	AIModelRef  string
}

// Address is the channel-specific destination (email address, phone
// number in E.164, LinkedIn profile URL, or a mailing address record
// reference).
type Address string

// DispatchResult is what a Driver hands back on a successful send.
type DispatchResult struct {
	ProviderMsgID string
}

// Driver is the uniform contract every channel implements. resource is
// the sender identity (already selected and rate-reserved by the
// Resource Pool / JIT Validator); implementations must not perform their
// own resource selection.
type Driver interface {
	Send(ctx context.Context, resource domain.Resource, addr Address, content Content) (DispatchResult, error)
}

// InboundEvent is a normalized inbound signal a Driver's Ingest method
// surfaces to the Reply Router: a reply, bounce, or engagement event from
// the provider's webhook or polling API.
type InboundEvent struct {
	ProviderMsgID string
	LeadRef       string
	Channel       domain.Channel
	Kind          string // "reply", "bounce", "open", "click", "spam_complaint"
	Body          string
	OccurredAt    int64 // unix seconds; avoids importing time.Time into provider-specific wire decoding
}

// InboundAdapter is implemented by channel drivers that can turn a raw
// provider webhook payload into a normalized InboundEvent (spec §4.12:
// "ingest(webhook_payload) → canonical_inbound_message | ignore"). A
// driver with no inbound contract (direct mail: fire-and-forget, no
// delivery events) reports ok=false for every payload.
type InboundAdapter interface {
	Ingest(payload []byte) (event InboundEvent, ok bool, err error)
}

// EventPoller is implemented by drivers whose provider exposes a
// reconciliation endpoint listing recent events. It backs the periodic
// recovery job of spec §4.10 ("poll provider APIs since last successful
// webhook timestamp"), which re-ingests anything a dropped webhook
// delivery would otherwise have lost. Each returned payload is fed
// through the same driver's Ingest, so PollEvents only needs to produce
// the provider's raw event bodies, not parse them itself.
type EventPoller interface {
	PollEvents(ctx context.Context, since time.Time) ([][]byte, error)
}
