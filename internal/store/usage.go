package store

import (
	"context"
	"fmt"
	"time"

	"github.com/modelrelay/relay/internal/model"
)

// InsertUsageRecord appends an immutable usage record. Records are never
// updated or deleted after this point.
func (s *Store) InsertUsageRecord(ctx context.Context, rec *model.UsageRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	q := s.rebind(`INSERT INTO usage_logs
		(id, api_key_id, provider, model, endpoint, prompt_tokens, completion_tokens, total_tokens, cost, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, q,
		rec.ID, rec.APIKeyID, rec.Provider, rec.Model, rec.Endpoint,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.Cost, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// SummarizeUsage aggregates all usage for one key: totals plus a per-provider
// breakdown. Results are scoped strictly to the given key ID.
func (s *Store) SummarizeUsage(ctx context.Context, apiKeyID string) (*model.UsageSummary, error) {
	summary := &model.UsageSummary{
		APIKeyID:          apiKeyID,
		ProviderBreakdown: make(map[string]model.ProviderUsage),
	}

	totalsQ := s.rebind(`SELECT
			COUNT(id) AS requests,
			COALESCE(SUM(total_tokens), 0) AS tokens,
			COALESCE(SUM(cost), 0) AS cost
		FROM usage_logs WHERE api_key_id = ?`)

	var totals model.ProviderUsage
	if err := s.db.GetContext(ctx, &totals, totalsQ, apiKeyID); err != nil {
		return nil, fmt.Errorf("usage totals: %w", err)
	}
	summary.TotalRequests = totals.Requests
	summary.TotalTokens = totals.Tokens
	summary.TotalCost = totals.Cost

	breakdownQ := s.rebind(`SELECT
			provider,
			COUNT(id) AS requests,
			COALESCE(SUM(total_tokens), 0) AS tokens,
			COALESCE(SUM(cost), 0) AS cost
		FROM usage_logs WHERE api_key_id = ? GROUP BY provider`)

	rows := []struct {
		Provider string `db:"provider"`
		model.ProviderUsage
	}{}
	if err := s.db.SelectContext(ctx, &rows, breakdownQ, apiKeyID); err != nil {
		return nil, fmt.Errorf("usage breakdown: %w", err)
	}
	for _, r := range rows {
		summary.ProviderBreakdown[r.Provider] = r.ProviderUsage
	}

	return summary, nil
}

// ListUsageRecords returns the key's usage records, newest first, capped at
// limit (0 means no cap).
func (s *Store) ListUsageRecords(ctx context.Context, apiKeyID string, limit int) ([]model.UsageRecord, error) {
	q := `SELECT * FROM usage_logs WHERE api_key_id = ? ORDER BY timestamp DESC`
	args := []interface{}{apiKeyID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	var recs []model.UsageRecord
	if err := s.db.SelectContext(ctx, &recs, s.rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list usage records: %w", err)
	}
	return recs, nil
}
