package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/modelrelay/relay/internal/model"
	"github.com/modelrelay/relay/internal/service"
)

type contextKeyAuth string

// AuthPrincipalKey is the context key for the authenticated principal.
const AuthPrincipalKey contextKeyAuth = "auth_principal"

// Principal represents the authenticated identity making the request. Every
// credential ultimately resolves to an API key; Method records whether the
// raw key or a derived bearer token was presented.
type Principal struct {
	Method     string // "api_key" or "bearer_token"
	APIKey     *model.APIKey
	TokenJTI   string
	APIKeyID   string
	APIKeyName string
}

// Authenticate returns an HTTP middleware that validates the request's
// credentials. It accepts:
//
//  1. A raw API key via the configured header (default X-API-Key) or as an
//     Authorization bearer value carrying the key prefix.
//  2. A signed bearer token via the Authorization header.
//
// Raw-key requests bump the key's usage counter. On success a Principal is
// attached to the request context; on failure a 401 envelope is returned
// that does not distinguish unknown keys from revoked ones, except for
// tokens whose key was revoked after issuance, which report key_revoked.
func Authenticate(keys *service.Keys, tokens *service.Tokens, apiKeyHeader string) func(http.Handler) http.Handler {
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := r.Header.Get(apiKeyHeader)
			if credential == "" {
				credential = r.Header.Get("Authorization")
			}
			if credential == "" {
				writeAuthError(w, http.StatusUnauthorized, model.KindUnauthorized,
					"Authentication required. Provide "+apiKeyHeader+" header or Bearer token.")
				return
			}

			principal, kind, msg := resolve(r.Context(), keys, tokens, credential)
			if principal == nil {
				writeAuthError(w, http.StatusUnauthorized, kind, msg)
				return
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolve turns a credential header value into a Principal, or returns the
// error kind and message for the 401 envelope.
func resolve(ctx context.Context, keys *service.Keys, tokens *service.Tokens, credential string) (*Principal, string, string) {
	// A value containing the key prefix is a raw API key regardless of how
	// it was wrapped.
	if secret, err := service.ExtractSecret(credential, keys.Prefix()); err == nil {
		key, err := keys.Verify(ctx, secret)
		if err != nil {
			return nil, model.KindUnauthorized, "Invalid API key"
		}
		keys.Touch(ctx, key)
		return &Principal{
			Method:     "api_key",
			APIKey:     key,
			APIKeyID:   key.ID,
			APIKeyName: key.Name,
		}, "", ""
	}

	// Otherwise treat a bearer value as a signed token.
	tokenString := strings.TrimSpace(strings.TrimPrefix(credential, "Bearer "))
	if tokenString == "" {
		return nil, model.KindUnauthorized, "Invalid credentials"
	}

	claims, key, err := tokens.Verify(ctx, tokenString)
	if err != nil {
		if errors.Is(err, service.ErrKeyRevoked) {
			return nil, model.KindKeyRevoked, "API key has been revoked"
		}
		return nil, model.KindUnauthorized, "Invalid or expired token"
	}
	return &Principal{
		Method:     "bearer_token",
		APIKey:     key,
		TokenJTI:   claims.ID,
		APIKeyID:   key.ID,
		APIKeyName: key.Name,
	}, "", ""
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    status,
			Kind:    kind,
			Message: message,
		},
	})
}
