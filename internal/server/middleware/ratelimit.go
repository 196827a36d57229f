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

// RateLimitByAPIKey returns an HTTP middleware that limits requests per
// presented credential. Requests without a credential fall back to grouping
// by remote IP so anonymous traffic cannot share one unlimited bucket.
func RateLimitByAPIKey(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if secret := ExtractCredential(r); secret != "" {
				return secret, nil
			}
			return httprate.KeyByIP(r)
		}),
	)
}
