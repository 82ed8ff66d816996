// Package respool implements the Resource Pool: selection of the next
// sender identity (email domain, phone number, LinkedIn seat, mail sender)
// for a send, per spec §4.4.
//
// Selection filters by channel type, health, lease ownership and
// remaining rate-ledger quota, then orders ascending by last_used_at
// (nulls first) with a deterministic id tie-break — least-recently-used
// wins. A resource's health is tracked with the same consecutive-failure
// / recovery-window shape used elsewhere for send-path failover,
// generalized from per-identity quota routing to per-resource LRU
// selection, and backed by a circuit breaker per resource: five
// consecutive driver failures open the breaker, which marks the resource
// "degraded" and keeps it out of selection while open. The persisted
// consecutive-failure counter does not change health by itself.
package respool
