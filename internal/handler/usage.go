package handler

import (
	"net/http"

	"github.com/modelrelay/relay/internal/model"
	"github.com/modelrelay/relay/internal/server/middleware"
	"github.com/modelrelay/relay/internal/service"
	"github.com/modelrelay/relay/internal/store"
)

// UsageHandler serves usage statistics, scoped to the calling key.
type UsageHandler struct {
	meter *service.Meter
	store *store.Store
}

// NewUsageHandler creates a usage handler.
func NewUsageHandler(meter *service.Meter, st *store.Store) *UsageHandler {
	return &UsageHandler{meter: meter, store: st}
}

// Get returns the caller's aggregate usage with per-provider breakdown.
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	summary, err := h.meter.Summary(r.Context(), principal.APIKeyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.KindInternalError, "Failed to get usage stats")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Summary returns the lightweight counters kept on the key record itself.
func (h *UsageHandler) Summary(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	key := principal.APIKey

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"api_key_id":    key.ID,
		"message":       "Usage tracking is active",
		"rate_limit":    key.RateLimit,
		"current_usage": key.UsageCount,
	})
}

// Records returns the caller's most recent usage records, newest first.
func (h *UsageHandler) Records(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	records, err := h.store.ListUsageRecords(r.Context(), principal.APIKeyID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.KindInternalError, "Failed to list usage records")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
	})
}
