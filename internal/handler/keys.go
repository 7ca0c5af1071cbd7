package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/modelrelay/relay/internal/model"
	"github.com/modelrelay/relay/internal/server/middleware"
	"github.com/modelrelay/relay/internal/service"
)

// KeysHandler serves the API key management surface. Key visibility is
// strictly self-scoped: a caller can inspect and revoke only the key their
// own credential resolves to.
type KeysHandler struct {
	keys *service.Keys
}

// NewKeysHandler creates a key management handler.
func NewKeysHandler(keys *service.Keys) *KeysHandler {
	return &KeysHandler{keys: keys}
}

type createKeyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Create issues a new API key. The raw secret appears in this response and
// nowhere else.
func (h *KeysHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.KindBadRequest, "Invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, model.KindBadRequest, "name is required")
		return
	}

	raw, key, err := h.keys.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.KindInternalError, "Failed to create API key")
		return
	}

	writeJSON(w, http.StatusCreated, model.APIKeyCreated{
		ID:          key.ID,
		Name:        key.Name,
		Key:         raw,
		Description: key.Description,
		CreatedAt:   key.CreatedAt,
		RateLimit:   key.RateLimit,
		UsageCount:  key.UsageCount,
	})
}

// List returns the caller's own key. The self-only scope makes this a
// single-element list; the shape stays a list so a future admin surface can
// widen it without breaking clients.
func (h *KeysHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"api_keys": []model.APIKeyInfo{principal.APIKey.Info()},
	})
}

// Current returns the key the caller's credential resolves to.
func (h *KeysHandler) Current(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	writeJSON(w, http.StatusOK, principal.APIKey.Info())
}

// Get returns the caller's key by ID, refusing IDs belonging to other keys.
func (h *KeysHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	keyID := chi.URLParam(r, "keyID")

	if keyID != principal.APIKeyID {
		writeError(w, http.StatusForbidden, model.KindForbidden, "API keys are visible only to their owner")
		return
	}
	writeJSON(w, http.StatusOK, principal.APIKey.Info())
}

// Revoke deactivates the caller's own key. Requests already in flight under
// this key finish; the next verification fails.
func (h *KeysHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	keyID := chi.URLParam(r, "keyID")

	if keyID != principal.APIKeyID {
		writeError(w, http.StatusForbidden, model.KindForbidden, "API keys can be revoked only by their owner")
		return
	}

	if err := h.keys.Revoke(r.Context(), principal.APIKey); err != nil {
		writeError(w, http.StatusInternalServerError, model.KindInternalError, "Failed to revoke API key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"revoked": true,
		"id":      keyID,
	})
}
