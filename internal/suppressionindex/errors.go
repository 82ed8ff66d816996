package suppressionindex

import "errors"

var (
	// ErrNotFound is returned when removing an entry that isn't present.
	ErrNotFound = errors.New("suppression entry not found")
	// ErrInvalidKey is returned for an empty or malformed key value.
	ErrInvalidKey = errors.New("invalid suppression key")
)
