package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/modelrelay/relay/internal/model"
	"github.com/modelrelay/relay/internal/store"
)

const (
	// DefaultTokenTTL is the lifetime applied when the caller does not ask
	// for one, and the lifetime every refreshed token gets regardless of
	// what the old token carried.
	DefaultTokenTTL = 24 * time.Hour

	// MinTokenTTL and MaxTokenTTL bound caller-specified lifetimes.
	MinTokenTTL = 1 * time.Hour
	MaxTokenTTL = 168 * time.Hour
)

var (
	// ErrInvalidToken covers bad signatures and malformed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired marks a structurally valid token past its expiry.
	// Handlers surface it identically to ErrInvalidToken.
	ErrTokenExpired = errors.New("token expired")
	// ErrKeyRevoked marks a valid, unexpired token whose API key has been
	// deactivated since issuance.
	ErrKeyRevoked = errors.New("api key revoked")
	// ErrKeyNotFound and ErrKeyInactive are issuance failures.
	ErrKeyNotFound = errors.New("api key not found")
	ErrKeyInactive = errors.New("api key inactive")
)

// TokenClaims are the JWT claims bound to an API key identity. Subject is
// the key ID; ID (jti) makes every token unique.
type TokenClaims struct {
	Name      string `json:"name"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// IssuedToken is the response shape for a newly signed bearer token.
type IssuedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	APIKeyID    string    `json:"api_key_id"`
	APIKeyName  string    `json:"api_key_name"`
}

// Tokens issues and verifies short-lived HS256 bearer tokens derived from an
// API key identity. Tokens hold no stored state: validity is re-derived on
// every verification from the signature, the expiry, and the live key record.
// There is consequently no real revocation before expiry; Revoke documents
// that explicitly.
type Tokens struct {
	store      *store.Store
	secret     []byte
	issuer     string
	defaultTTL time.Duration
}

// NewTokens creates a token manager signing with the given secret.
func NewTokens(st *store.Store, secret, issuer string) *Tokens {
	return &Tokens{
		store:      st,
		secret:     []byte(secret),
		issuer:     issuer,
		defaultTTL: DefaultTokenTTL,
	}
}

// Issue signs a new token for the given key. ttl <= 0 means the default;
// out-of-bound values are clamped (handlers reject them before this point).
func (t *Tokens) Issue(ctx context.Context, apiKeyID string, ttl time.Duration) (*IssuedToken, error) {
	if ttl <= 0 {
		ttl = t.defaultTTL
	}
	if ttl < MinTokenTTL {
		ttl = MinTokenTTL
	}
	if ttl > MaxTokenTTL {
		ttl = MaxTokenTTL
	}

	key, err := t.store.GetAPIKey(ctx, apiKeyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("load api key: %w", err)
	}
	if !key.IsActive {
		return nil, ErrKeyInactive
	}

	now := time.Now()
	expiry := now.Add(ttl)
	claims := TokenClaims{
		Name:      key.Name,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   key.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &IssuedToken{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresIn:   int64(ttl.Seconds()),
		ExpiresAt:   expiry,
		APIKeyID:    key.ID,
		APIKeyName:  key.Name,
	}, nil
}

// Verify checks signature and expiry, then re-checks that the referenced key
// is still active. A token is never a cached trust decision.
func (t *Tokens) Verify(ctx context.Context, tokenString string) (*TokenClaims, *model.APIKey, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, nil, ErrTokenExpired
		}
		return nil, nil, ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return nil, nil, ErrInvalidToken
	}

	key, err := t.store.GetAPIKey(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrKeyRevoked
		}
		return nil, nil, fmt.Errorf("load api key: %w", err)
	}
	if !key.IsActive {
		return nil, nil, ErrKeyRevoked
	}

	return claims, key, nil
}

// Refresh verifies the old token and issues a new one for the same subject
// with the manager's default TTL.
func (t *Tokens) Refresh(ctx context.Context, oldToken string) (*IssuedToken, error) {
	claims, _, err := t.Verify(ctx, oldToken)
	if err != nil {
		return nil, err
	}
	return t.Issue(ctx, claims.Subject, t.defaultTTL)
}

// Revoke performs a verify-only check. Bearer tokens here are self-contained
// and remain valid until natural expiry; there is no denylist. API consumers
// are told to use short TTLs instead.
func (t *Tokens) Revoke(ctx context.Context, tokenString string) error {
	_, _, err := t.Verify(ctx, tokenString)
	return err
}
