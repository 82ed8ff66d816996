// Package replyrouter implements the Reply Router of spec §4.10: webhook
// ingress for inbound channel messages, intent classification against a
// closed set, and the sequence-control/side-effect table those intents
// drive (pause/stop/continue, suppression writes, meeting creation,
// referral lead sourcing, operator alerts).
//
// Idempotency is keyed on provider_msg_id, mirroring the staging-table +
// EventAggregator idiom this package is grounded on
// (internal/worker/webhook_receiver.go and internal/tracking/{consumer,
// handler,publisher}.go in this repository's own history): duplicate
// webhook deliveries for the same id produce exactly one thread message
// and one Activity.
package replyrouter
