package store

import "errors"

// ErrNotFound is returned when a requested record does not exist (or, for
// key-by-hash lookups, exists but is no longer active — the distinction is
// deliberately not exposed).
var ErrNotFound = errors.New("not found")
