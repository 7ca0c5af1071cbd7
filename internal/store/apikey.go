package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/modelrelay/relay/internal/model"
)

// HashAPIKey computes the hex-encoded SHA-256 hash under which a raw secret
// is stored and looked up.
func HashAPIKey(rawKey string) string {
	h := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(h[:])
}

// CreateAPIKey inserts a new API key record.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}

	q := s.rebind(`INSERT INTO api_keys
		(id, key_hash, name, description, is_active, rate_limit, usage_count, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, q,
		key.ID, key.KeyHash, key.Name, key.Description,
		key.IsActive, key.RateLimit, key.UsageCount, key.CreatedAt, key.LastUsedAt)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetAPIKey returns a key by ID regardless of its active flag.
func (s *Store) GetAPIKey(ctx context.Context, id string) (*model.APIKey, error) {
	var key model.APIKey
	q := s.rebind(`SELECT * FROM api_keys WHERE id = ?`)
	if err := s.db.GetContext(ctx, &key, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &key, nil
}

// GetActiveAPIKeyByHash returns the active key matching the given secret
// hash. "active" is part of the read predicate: inactive rows are invisible
// here, so a revoked key and a nonexistent key are indistinguishable to
// callers.
func (s *Store) GetActiveAPIKeyByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	var key model.APIKey
	q := s.rebind(`SELECT * FROM api_keys WHERE key_hash = ? AND is_active = ?`)
	if err := s.db.GetContext(ctx, &key, q, keyHash, true); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return &key, nil
}

// TouchAPIKey increments the key's usage counter and stamps last_used_at.
// The increment happens inside the UPDATE so concurrent touches of the same
// key never lose updates.
func (s *Store) TouchAPIKey(ctx context.Context, id string) error {
	q := s.rebind(`UPDATE api_keys
		SET usage_count = usage_count + 1, last_used_at = ?
		WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, q, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeAPIKey soft-deletes a key by clearing its active flag. The row is
// retained so usage history keeps a resolvable key reference.
func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	q := s.rebind(`UPDATE api_keys SET is_active = ? WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, q, false, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAPIKeys returns all keys, newest first. Used by the operator CLI only;
// the HTTP surface never exposes keys other than the caller's own.
func (s *Store) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	var keys []model.APIKey
	if err := s.db.SelectContext(ctx, &keys, `SELECT * FROM api_keys ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}
