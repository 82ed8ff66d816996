package domain

import "github.com/google/uuid"

// NewID returns a new opaque, time-sortable 128-bit identifier (a UUIDv7:
// 48 bits of millisecond timestamp followed by random bits). Sorting ids
// lexically sorts by creation time, which every entity in this package
// relies on instead of a separate numeric sequence column.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the global random source errors; fall
		// back to a random v4 rather than panic mid-transaction.
		return uuid.NewString()
	}
	return id.String()
}

// ParseID validates that s is a well-formed identifier produced by NewID
// (or any RFC 4122 UUID — ids handed in from external systems over the
// webhook boundary are not guaranteed to be v7).
func ParseID(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
