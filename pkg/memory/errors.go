package memory

import "errors"

// ErrNotFound is returned by Update and Delete when the id does not exist.
// It is a reported condition, not a fault; front ends translate it to a
// structured error payload.
var ErrNotFound = errors.New("memory not found")
