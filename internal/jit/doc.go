// Package jit implements the JIT Validator: the 13-step ordered gate
// deciding whether one (assignment, channel, now) candidate may send
// right now, per spec §4.8. Checks short-circuit on first reject; a
// closed set of reject reasons (§7) is attached to every rejection so it
// can be written straight onto the resulting Activity row.
//
// Validate is invoked once per candidate send, never once per batch — the
// Scheduler's batch query is an optimization, not a substitute gate; this
// package is the single source of truth for "may this send happen".
package jit
