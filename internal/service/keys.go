package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/modelrelay/relay/internal/cache"
	"github.com/modelrelay/relay/internal/model"
	"github.com/modelrelay/relay/internal/store"
)

const (
	// DefaultKeyPrefix is the recognizable constant prefix carried by every
	// raw secret. Deployments may override it in configuration.
	DefaultKeyPrefix = "relay_"

	// DefaultRateLimit is the informational per-key ceiling assigned at
	// creation. It is recorded and reported but not enforced here.
	DefaultRateLimit = 1000
)

var (
	// ErrInvalidKey covers every key verification failure: unknown secret,
	// revoked key, corrupted input. The single error keeps callers from
	// probing which keys exist.
	ErrInvalidKey = errors.New("invalid API key")

	// ErrMalformedCredential is returned when a presented header value does
	// not contain a recognizable secret at all.
	ErrMalformedCredential = errors.New("malformed credential")
)

// Keys issues and verifies API keys: the long-lived credential of the
// gateway. Verification consults the advisory cache first and falls back to
// the authoritative store; cache writes are best-effort and never fail a
// request.
type Keys struct {
	store  *store.Store
	cache  cache.KeyCache // nil disables the fast path
	prefix string
	logger *slog.Logger
}

// NewKeys creates a key manager. cache may be nil.
func NewKeys(st *store.Store, kc cache.KeyCache, prefix string, logger *slog.Logger) *Keys {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Keys{store: st, cache: kc, prefix: prefix, logger: logger}
}

// Prefix returns the secret prefix this manager issues and recognizes.
func (k *Keys) Prefix() string {
	return k.prefix
}

// Create generates a new API key and returns the raw secret together with
// the stored record. The raw secret is not retrievable afterwards.
func (k *Keys) Create(ctx context.Context, name, description string) (string, *model.APIKey, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", nil, fmt.Errorf("generate random key: %w", err)
	}
	rawSecret := k.prefix + hex.EncodeToString(randomBytes)

	key := &model.APIKey{
		ID:          newID("ak"),
		KeyHash:     store.HashAPIKey(rawSecret),
		Name:        name,
		Description: description,
		IsActive:    true,
		RateLimit:   DefaultRateLimit,
	}

	if err := k.store.CreateAPIKey(ctx, key); err != nil {
		return "", nil, fmt.Errorf("create api key: %w", err)
	}

	k.cacheSet(ctx, key)
	return rawSecret, key, nil
}

// Verify checks a raw secret and returns the active key it belongs to. Every
// failure surfaces as ErrInvalidKey.
func (k *Keys) Verify(ctx context.Context, rawSecret string) (*model.APIKey, error) {
	keyHash := store.HashAPIKey(rawSecret)

	if k.cache != nil {
		entry, err := k.cache.Get(ctx, keyHash)
		if err != nil {
			k.logger.Debug("key cache read failed", "error", err)
		} else if entry != nil {
			if !entry.Active {
				return nil, ErrInvalidKey
			}
			key, err := k.store.GetAPIKey(ctx, entry.KeyID)
			if err == nil && key.IsActive {
				return key, nil
			}
			// Stale cache entry; fall through to the authoritative lookup.
		}
	}

	key, err := k.store.GetActiveAPIKeyByHash(ctx, keyHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, fmt.Errorf("verify api key: %w", err)
	}

	k.cacheSet(ctx, key)
	return key, nil
}

// Touch increments the key's usage counter and last-used timestamp. The
// counter update is atomic at the store, so concurrent verified requests on
// the same key never lose increments. Touching is best-effort bookkeeping:
// a failed bump is logged and swallowed, never failing a request that
// already authenticated.
func (k *Keys) Touch(ctx context.Context, key *model.APIKey) {
	if err := k.store.TouchAPIKey(ctx, key.ID); err != nil {
		k.logger.Warn("usage touch failed", "error", err, "key_id", key.ID)
	}
}

// Revoke deactivates a key. The negative decision is pushed into the cache
// so other nodes reject the secret without waiting for the old entry to
// expire. Self-revocation-only is enforced at the handler.
func (k *Keys) Revoke(ctx context.Context, key *model.APIKey) error {
	if err := k.store.RevokeAPIKey(ctx, key.ID); err != nil {
		return err
	}
	if k.cache != nil {
		entry := cache.Entry{KeyID: key.ID, Name: key.Name, Active: false}
		if err := k.cache.Set(ctx, key.KeyHash, entry, cache.DefaultTTL); err != nil {
			k.logger.Warn("key cache revocation write failed", "error", err, "key_id", key.ID)
		}
	}
	return nil
}

// cacheSet is the advisory repopulation after a successful store lookup.
func (k *Keys) cacheSet(ctx context.Context, key *model.APIKey) {
	if k.cache == nil {
		return
	}
	entry := cache.Entry{KeyID: key.ID, Name: key.Name, Active: key.IsActive}
	if err := k.cache.Set(ctx, key.KeyHash, entry, cache.DefaultTTL); err != nil {
		k.logger.Debug("key cache write failed", "error", err, "key_id", key.ID)
	}
}

// ExtractSecret pulls a raw API key out of a credential header value. It
// accepts the standard "Bearer <secret>" form, a bare prefixed secret, or
// the secret embedded anywhere in the value after the known prefix.
func ExtractSecret(headerValue, prefix string) (string, error) {
	headerValue = strings.TrimSpace(headerValue)
	if headerValue == "" {
		return "", ErrMalformedCredential
	}

	if rest, ok := strings.CutPrefix(headerValue, "Bearer "); ok {
		headerValue = strings.TrimSpace(rest)
	}

	if strings.HasPrefix(headerValue, prefix) {
		return headerValue, nil
	}

	if idx := strings.Index(headerValue, prefix); idx >= 0 {
		return strings.TrimSpace(headerValue[idx:]), nil
	}

	return "", ErrMalformedCredential
}

// newID builds a short prefixed identifier, e.g. "ak_1f2e3d4c5b6a7988".
func newID(prefix string) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return prefix + "_" + raw[:16]
}
