// Package cache provides the advisory fast-path lookup in front of the key
// store. Cache contents are derived entirely from authoritative store state:
// a write race between two verifications is harmless because both carry the
// same record, and staleness is bounded by the entry TTL. Writes are
// best-effort by contract; callers log and ignore failures.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultTTL bounds how long a cached liveness decision may be served before
// the store is consulted again.
const DefaultTTL = time.Hour

// Entry is the cached view of an API key, keyed by secret hash. An entry with
// Active == false is a cached rejection: verification fails immediately
// without a store round-trip.
type Entry struct {
	KeyID  string
	Name   string
	Active bool
}

// KeyCache is the advisory existence/liveness cache consulted before the
// store on every key verification.
type KeyCache interface {
	// Get returns the cached entry for a secret hash, or (nil, nil) on miss.
	Get(ctx context.Context, keyHash string) (*Entry, error)
	// Set stores an entry under a secret hash with the given TTL.
	Set(ctx context.Context, keyHash string, entry Entry, ttl time.Duration) error
	// Delete drops an entry, forcing the next verification through the store.
	Delete(ctx context.Context, keyHash string) error
}

// encodeEntry and decodeEntry define the wire format shared by backends:
// "id:active:name". The name comes last so colons in names survive.
func encodeEntry(e Entry) string {
	return fmt.Sprintf("%s:%t:%s", e.KeyID, e.Active, e.Name)
}

func decodeEntry(raw string) (*Entry, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed cache entry")
	}
	return &Entry{
		KeyID:  parts[0],
		Active: parts[1] == "true",
		Name:   parts[2],
	}, nil
}
