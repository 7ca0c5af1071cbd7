package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/modelrelay/relay/internal/model"
	"github.com/modelrelay/relay/internal/service"
)

// TokensHandler serves the bearer token exchange surface under /auth. The
// API key travels in the request body here, not in a header: these endpoints
// are how a caller obtains the credential they will put in headers later.
type TokensHandler struct {
	keys   *service.Keys
	tokens *service.Tokens
}

// NewTokensHandler creates a token exchange handler.
func NewTokensHandler(keys *service.Keys, tokens *service.Tokens) *TokensHandler {
	return &TokensHandler{keys: keys, tokens: tokens}
}

type tokenRequest struct {
	APIKey         string `json:"api_key"`
	ExpiresInHours *int   `json:"expires_in_hours,omitempty"`
}

type tokenBodyRequest struct {
	Token string `json:"token"`
}

// Issue exchanges a valid API key for a signed bearer token. Issuance counts
// as a use of the key.
func (h *TokensHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.KindBadRequest, "Invalid JSON body")
		return
	}
	if req.APIKey == "" {
		writeError(w, http.StatusBadRequest, model.KindBadRequest, "api_key is required")
		return
	}

	ttl := service.DefaultTokenTTL
	if req.ExpiresInHours != nil {
		hours := *req.ExpiresInHours
		if hours < 1 || hours > 168 {
			writeError(w, http.StatusBadRequest, model.KindBadRequest,
				"expires_in_hours must be between 1 and 168")
			return
		}
		ttl = time.Duration(hours) * time.Hour
	}

	key, err := h.keys.Verify(r.Context(), req.APIKey)
	if err != nil {
		writeError(w, http.StatusUnauthorized, model.KindUnauthorized, "Invalid API key")
		return
	}

	issued, err := h.tokens.Issue(r.Context(), key.ID, ttl)
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.KindInternalError, "Failed to create token")
		return
	}

	h.keys.Touch(r.Context(), key)

	writeJSON(w, http.StatusOK, issued)
}

// Refresh verifies the presented token and issues a replacement with a fresh
// default lifetime.
func (h *TokensHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req tokenBodyRequest
	if err := readJSON(r, &req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, model.KindBadRequest, "token is required")
		return
	}

	issued, err := h.tokens.Refresh(r.Context(), req.Token)
	if err != nil {
		writeTokenError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issued)
}

// Verify reports whether a token is valid and, if so, who it belongs to.
func (h *TokensHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req tokenBodyRequest
	if err := readJSON(r, &req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, model.KindBadRequest, "token is required")
		return
	}

	claims, key, err := h.tokens.Verify(r.Context(), req.Token)
	if err != nil {
		writeTokenError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":        true,
		"api_key_id":   key.ID,
		"api_key_name": key.Name,
		"token_id":     claims.ID,
		"expires_at":   claims.ExpiresAt.Time,
	})
}

// Revoke acknowledges a revocation request. Tokens are self-contained, so a
// structurally valid token stays usable until it expires; the response says
// so rather than pretending otherwise.
func (h *TokensHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req tokenBodyRequest
	if err := readJSON(r, &req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, model.KindBadRequest, "token is required")
		return
	}

	if err := h.tokens.Revoke(r.Context(), req.Token); err != nil {
		writeTokenError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Token revoked successfully",
		"note":    "Bearer tokens remain valid until expiry; use short expiry times for security",
	})
}

// writeTokenError maps token verification failures onto the envelope. Expired
// and invalid tokens get the same kind; only a post-issuance key revocation
// is called out distinctly.
func writeTokenError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrKeyRevoked) {
		writeError(w, http.StatusUnauthorized, model.KindKeyRevoked, "API key has been revoked")
		return
	}
	writeError(w, http.StatusUnauthorized, model.KindUnauthorized, "Invalid or expired token")
}
