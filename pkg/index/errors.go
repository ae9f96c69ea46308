package index

import "errors"

var (
	// ErrNonComparableKey is returned when an indexed property cannot be hashed.
	ErrNonComparableKey = errors.New("index key is not comparable")
	// ErrArity is returned when the number of properties does not match the index levels.
	ErrArity = errors.New("index property count mismatch")
	// ErrNotFound is returned when removing an item that is not stored under the given key.
	ErrNotFound = errors.New("item not found in index")
)
