package model

import "time"

// UsageRecord is an immutable audit entry of tokens consumed and cost for one
// completed request (or one terminated stream). Records are append-only and
// keep a weak reference to the key that made the request, so revoking or
// deactivating a key never disturbs its usage history.
type UsageRecord struct {
	ID               string    `json:"id" db:"id"`
	APIKeyID         string    `json:"api_key_id" db:"api_key_id"`
	Provider         string    `json:"provider" db:"provider"`
	Model            string    `json:"model" db:"model"`
	Endpoint         string    `json:"endpoint" db:"endpoint"`
	PromptTokens     int       `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens" db:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens" db:"total_tokens"`
	Cost             float64   `json:"cost" db:"cost"`
	Timestamp        time.Time `json:"timestamp" db:"timestamp"`
}

// ProviderUsage aggregates usage for one provider.
type ProviderUsage struct {
	Requests int64   `json:"requests" db:"requests"`
	Tokens   int64   `json:"tokens" db:"tokens"`
	Cost     float64 `json:"cost" db:"cost"`
}

// UsageSummary is the per-key aggregate returned by the usage query surface.
type UsageSummary struct {
	APIKeyID          string                   `json:"api_key_id"`
	TotalRequests     int64                    `json:"total_requests"`
	TotalTokens       int64                    `json:"total_tokens"`
	TotalCost         float64                  `json:"total_cost"`
	ProviderBreakdown map[string]ProviderUsage `json:"provider_breakdown"`
}
