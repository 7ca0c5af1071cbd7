package service

import (
	"context"
	"log/slog"

	"github.com/modelrelay/relay/internal/model"
	"github.com/modelrelay/relay/internal/store"
)

// MeterInput carries the normalized usage figures for one completed request.
type MeterInput struct {
	APIKeyID         string
	Provider         string
	Model            string
	Endpoint         string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Meter persists usage records and answers usage queries. Recording is
// best-effort: a completion that already succeeded must never turn into a
// failure because the meter could not write.
type Meter struct {
	store  *store.Store
	logger *slog.Logger
}

// NewMeter creates a usage meter.
func NewMeter(st *store.Store, logger *slog.Logger) *Meter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Meter{store: st, logger: logger}
}

// Record appends one usage record with its computed cost. Failures are
// logged and swallowed by contract.
func (m *Meter) Record(ctx context.Context, in MeterInput) {
	rec := &model.UsageRecord{
		ID:               newID("log"),
		APIKeyID:         in.APIKeyID,
		Provider:         in.Provider,
		Model:            in.Model,
		Endpoint:         in.Endpoint,
		PromptTokens:     in.PromptTokens,
		CompletionTokens: in.CompletionTokens,
		TotalTokens:      in.TotalTokens,
		Cost:             CostFor(in.Provider, in.Model, in.TotalTokens),
	}

	if err := m.store.InsertUsageRecord(ctx, rec); err != nil {
		m.logger.Error("usage record write failed",
			"error", err,
			"api_key_id", in.APIKeyID,
			"provider", in.Provider,
			"model", in.Model,
		)
	}
}

// Summary returns the per-key aggregate with provider breakdown.
func (m *Meter) Summary(ctx context.Context, apiKeyID string) (*model.UsageSummary, error) {
	return m.store.SummarizeUsage(ctx, apiKeyID)
}
