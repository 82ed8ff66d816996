// Package cache implements the Cache Layer: a versioned key/value memo for
// expensive enrichment calls, keyed by fingerprint.
//
// Keys carry a version prefix ("v1:...") so bumping the prefix invalidates
// every existing entry without a delete pass. Two levels back each lookup:
// an in-process go-cache L1 absorbs repeated hits within one worker during
// a single batch (cache stampede under concurrent waterfall workers is
// expected and harmless — merges are idempotent), and a Redis L2 shares
// results across worker processes. A miss at both levels is an explicit
// sentinel (ErrMiss), never a zero value, so callers can't mistake "never
// cached" for "cached as empty".
package cache
