// Package ratelimit implements the rate ledger: atomic reserve-then-consume
// enforcement of each resource's daily send cap, measured on a rolling
// 24-hour window rather than a calendar day so traffic smooths evenly
// across the day instead of bursting at midnight UTC.
//
// The rolling window is approximated with hourly buckets in Redis: a
// reservation increments the current UTC-hour bucket, and a check sums the
// current bucket plus the previous 23. This trades exactness (a lead sent
// at 14:00 technically should "fall off" the window at 14:00 the next day,
// not at the top of the 15:00 hour) for an O(24) atomic Lua script instead
// of a sorted-set-per-event design, which is the right tradeoff at the
// send volumes this system runs at.
package ratelimit
