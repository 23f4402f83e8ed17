package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/steeldesk/internal/auth"
	"github.com/BradenHooton/steeldesk/internal/models"
	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitByIP_LimitsPerAddress(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 2})(okHandler())

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/admin/api/accounts/a/lock", nil)
		req.RemoteAddr = "198.51.100.7:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodGet, "/admin/api/accounts/a/lock", nil)
	req.RemoteAddr = "198.51.100.8:5000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "other addresses have their own budget")
}

func TestRateLimitBySession_KeysOnAccount(t *testing.T) {
	handler := RateLimitBySession(RateLimitConfig{RequestsPerMinute: 1})(okHandler())

	send := func(userID, addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/admin/api/accounts/a/unlock", nil)
		req.RemoteAddr = addr
		if userID != "" {
			claims := &models.TokenClaims{UserID: userID, Type: models.TokenTypeSession}
			req = req.WithContext(context.WithValue(req.Context(), auth.UserContextKey, claims))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("admin-1", "198.51.100.7:5000"))
	assert.Equal(t, http.StatusTooManyRequests, send("admin-1", "198.51.100.9:5000"), "same account from a new address")
	assert.Equal(t, http.StatusOK, send("admin-2", "198.51.100.7:5000"))
	assert.Equal(t, http.StatusOK, send("", "198.51.100.10:5000"))
}
