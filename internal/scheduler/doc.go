// Package scheduler implements the Outreach Scheduler: the periodic batch
// dispatcher that claims due assignments, runs each through the JIT
// Validator, and invokes the matching channel driver, per spec §4.9.
//
// A run claims its batch with `FOR UPDATE SKIP LOCKED` so multiple
// scheduler processes can run concurrently without double-claiming the
// same assignment, and takes a brief per-assignment advisory lock around
// JIT + dispatch to close the small window between the cooldown check
// reading activity history and that history being durably written (the
// activity log itself remains the ground truth; the lock is best-effort
// hygiene, per spec §4.8's concurrency note). The package applies no
// queue-depth backpressure: each run dispatches whatever ClaimDue returns,
// up to the batch size.
package scheduler
