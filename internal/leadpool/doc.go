// Package leadpool implements the Lead Pool & Allocator: the platform-owned
// store of Lead Pool Records and the exclusive-assignment logic that hands
// them to tenants, per spec §4.6.
//
// A Lead Pool Record persists independently of any tenant; Allocate creates
// the exclusive link (an Assignment) under a unique constraint so
// concurrent allocators across tenants can never double-assign the same
// lead — the database is the serialization point, not an in-process lock.
// SourceAndPopulate upserts by natural key and skips on conflict, since the
// pool is additive and must never let a later, lower-quality source
// overwrite an existing record.
package leadpool
