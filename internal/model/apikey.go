package model

import "time"

// APIKey represents a long-lived caller credential. The raw secret is never
// stored; only a SHA-256 hash is persisted, and the raw value is returned to
// the caller exactly once at creation time.
type APIKey struct {
	ID          string     `json:"id" db:"id"`
	KeyHash     string     `json:"-" db:"key_hash"` // SHA-256 hash, never expose
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description" db:"description"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	RateLimit   int        `json:"rate_limit" db:"rate_limit"`
	UsageCount  int64      `json:"usage_count" db:"usage_count"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// APIKeyCreated is the one-time creation response that carries the raw secret.
type APIKeyCreated struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Key         string    `json:"key"` // shown once, cannot be retrieved again
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	RateLimit   int       `json:"rate_limit"`
	UsageCount  int64     `json:"usage_count"`
}

// APIKeyInfo is the metadata view of a key, without hash or secret.
type APIKeyInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	RateLimit   int        `json:"rate_limit"`
	UsageCount  int64      `json:"usage_count"`
}

// Info returns the metadata view of the key.
func (k *APIKey) Info() APIKeyInfo {
	return APIKeyInfo{
		ID:          k.ID,
		Name:        k.Name,
		Description: k.Description,
		CreatedAt:   k.CreatedAt,
		LastUsedAt:  k.LastUsedAt,
		RateLimit:   k.RateLimit,
		UsageCount:  k.UsageCount,
	}
}
