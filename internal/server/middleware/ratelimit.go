package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit returns an HTTP middleware that limits requests per IP address
// to the specified number per minute. Uses a sliding window algorithm.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// RateLimitByCredential returns an HTTP middleware that limits requests per
// presented credential rather than per IP, so one misbehaving key cannot
// exhaust a shared NAT's budget. Requests without a credential fall back to
// the remote address.
func RateLimitByCredential(headerName string, requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if v := r.Header.Get(headerName); v != "" {
				return v, nil
			}
			if v := r.Header.Get("Authorization"); v != "" {
				return v, nil
			}
			return httprate.KeyByIP(r)
		}),
	)
}
