// Package suppressionindex implements the constant-time is_suppressed
// lookup described for the suppression index: three logical namespaces
// (global, tenant, domain) consulted in that order, first hit wins.
//
// Reads are served from an in-process two-layer structure (bloom filter
// plus a sorted hash array, mirroring the bulk list-matching design used
// elsewhere for suppression lists) backed by Postgres as the source of
// truth. Writes go to Postgres first, then patch the in-memory structure
// so a freshly suppressed key is blocked on the very next lookup without
// waiting for the periodic full refresh.
//
// A lookup error is never allowed to silently pass a lead through: on any
// read failure the caller gets back "blocked" and an operational alert is
// raised. Err safe, not err open.
package suppressionindex
