package middleware

import (
	"net/http"
	"time"

	"github.com/BradenHooton/steeldesk/internal/auth"
	pkghttp "github.com/BradenHooton/steeldesk/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds coarse request throttling for the admin console API
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultAdminRateLimit returns 60 requests per minute
func DefaultAdminRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 60,
	}
}

// RateLimitByIP limits requests per client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(writeRateLimited),
	)
}

// RateLimitBySession limits requests per signed-in account, falling back to
// the client IP when no session is present
func RateLimitBySession(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetUserFromContext(r); claims != nil && claims.UserID != "" {
				return "user:" + claims.UserID, nil
			}
			return httprate.KeyByRealIP(r)
		}),
		httprate.WithLimitHandler(writeRateLimited),
	)
}

func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "Rate limit exceeded")
}
