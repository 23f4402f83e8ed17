package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/steeldesk/internal/models"
	"github.com/BradenHooton/steeldesk/internal/ratelimit"
	pkghttp "github.com/BradenHooton/steeldesk/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var guardNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type mockLimiter struct {
	CheckFunc func(key string, now time.Time) ratelimit.Result
	mu        sync.Mutex
	keys      []string
}

func (m *mockLimiter) Check(key string, now time.Time) ratelimit.Result {
	m.mu.Lock()
	m.keys = append(m.keys, key)
	m.mu.Unlock()
	if m.CheckFunc != nil {
		return m.CheckFunc(key, now)
	}
	return ratelimit.Result{}
}

type mockInspector struct {
	LockStatusFunc func(ctx context.Context, email string) (*models.LoginDecision, error)
	emails         []string
}

func (m *mockInspector) LockStatus(ctx context.Context, email string) (*models.LoginDecision, error) {
	m.emails = append(m.emails, email)
	if m.LockStatusFunc != nil {
		return m.LockStatusFunc(ctx, email)
	}
	return nil, nil
}

func lockedFor(remaining time.Duration) func(ctx context.Context, email string) (*models.LoginDecision, error) {
	return func(ctx context.Context, email string) (*models.LoginDecision, error) {
		d := models.Rejected(models.ReasonAccountLocked, remaining)
		return &d, nil
	}
}

// rejectingHandler answers every attempt with the generic signal, the way an
// opaque authentication handler would
func rejectingHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		pkghttp.WriteSignInSignal(w, r, "/admin/sign-in", pkghttp.SignInSignal{Code: pkghttp.CodeCredentialsRejected})
	})
}

func guardConfig(limiter ratelimit.Limiter, inspector LockInspector) SignInGuardConfig {
	return SignInGuardConfig{
		Limiter:    limiter,
		Inspector:  inspector,
		IPConfig:   &pkghttp.IPConfig{TrustedProxies: []string{"0.0.0.0/0", "::/0"}},
		SignInPage: "/admin/sign-in",
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:        func() time.Time { return guardNow },
	}
}

func signInRequest(email string) *http.Request {
	form := url.Values{"email": {email}, "password": {"hunter2hunter2"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/sign-in", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "1.2.3.4:41000"
	return req
}

func redirectTarget(t *testing.T, rec *httptest.ResponseRecorder) url.Values {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/admin/sign-in", loc.Path)
	return loc.Query()
}

// ============================================================================
// Matching
// ============================================================================

func TestSignInGuard_IgnoresOtherRequests(t *testing.T) {
	limiter := &mockLimiter{}
	handler := SignInGuard(guardConfig(limiter, &mockInspector{}))(okHandler())

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/admin/sign-in", nil),
		httptest.NewRequest(http.MethodPost, "/admin/api/accounts/a/unlock", nil),
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Empty(t, limiter.keys)
}

func TestSignInGuard_PathPatterns(t *testing.T) {
	limiter := &mockLimiter{}
	config := guardConfig(limiter, &mockInspector{})
	config.Paths = []string{"/api/auth/callback/*"}
	handler := SignInGuard(config)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/callback/credentials", nil)
	req.RemoteAddr = "1.2.3.4:41000"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"1.2.3.4"}, limiter.keys)
}

// ============================================================================
// Rate limiting
// ============================================================================

func TestSignInGuard_SixthAttemptLimited(t *testing.T) {
	limiter := ratelimit.NewFixedWindow(ratelimit.DefaultConfig())
	calls := 0
	handler := SignInGuard(guardConfig(limiter, &mockInspector{}))(rejectingHandler(&calls))

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signInRequest("sales@steeldesk.test"))
		assert.Equal(t, "CredentialsRejected", redirectTarget(t, rec).Get("error"))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signInRequest("sales@steeldesk.test"))

	q := redirectTarget(t, rec)
	assert.Equal(t, "RateLimitExceeded", q.Get("error"))
	assert.Equal(t, "15", q.Get("minutes"))
	assert.Equal(t, 5, calls, "the verifier must not run once the limit trips")
}

func TestSignInGuard_RateLimitedJSON(t *testing.T) {
	limiter := &mockLimiter{CheckFunc: func(key string, now time.Time) ratelimit.Result {
		return ratelimit.Result{Limited: true, Remaining: 30 * time.Second}
	}}
	calls := 0
	handler := SignInGuard(guardConfig(limiter, &mockInspector{}))(rejectingHandler(&calls))

	req := signInRequest("sales@steeldesk.test")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var body pkghttp.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "RateLimitExceeded", body.Error)
	assert.Equal(t, 1, body.Minutes)
	assert.Zero(t, calls)
}

func TestSignInGuard_UnknownClientShareKey(t *testing.T) {
	limiter := &mockLimiter{}
	handler := SignInGuard(guardConfig(limiter, &mockInspector{}))(okHandler())

	req := signInRequest("sales@steeldesk.test")
	req.RemoteAddr = ""
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{pkghttp.UnknownClientIP}, limiter.keys)
}

func TestSignInGuard_UsesForwardedAddress(t *testing.T) {
	limiter := &mockLimiter{}
	handler := SignInGuard(guardConfig(limiter, &mockInspector{}))(okHandler())

	req := signInRequest("sales@steeldesk.test")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"203.0.113.9"}, limiter.keys)
}

// ============================================================================
// Lock re-query
// ============================================================================

func TestSignInGuard_RewritesGenericRejectionForLockedAccount(t *testing.T) {
	inspector := &mockInspector{LockStatusFunc: lockedFor(14*time.Minute + 30*time.Second)}
	calls := 0
	handler := SignInGuard(guardConfig(&mockLimiter{}, inspector))(rejectingHandler(&calls))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signInRequest("Sales@SteelDesk.test"))

	q := redirectTarget(t, rec)
	assert.Equal(t, "AccountLocked", q.Get("error"))
	assert.Equal(t, "15", q.Get("minutes"))
	assert.Equal(t, "AccountLocked", rec.Header().Get(pkghttp.HeaderSignInError))
	assert.Equal(t, []string{"Sales@SteelDesk.test"}, inspector.emails)
	assert.Equal(t, 1, calls)
}

func TestSignInGuard_RewritesJSONRejection(t *testing.T) {
	inspector := &mockInspector{LockStatusFunc: lockedFor(20 * time.Minute)}
	calls := 0
	handler := SignInGuard(guardConfig(&mockLimiter{}, inspector))(rejectingHandler(&calls))

	req := signInRequest("sales@steeldesk.test")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusLocked, rec.Code)

	var body pkghttp.ErrorResponse
	dec := json.NewDecoder(rec.Body)
	require.NoError(t, dec.Decode(&body))
	assert.Equal(t, "AccountLocked", body.Error)
	assert.Equal(t, 20, body.Minutes)
	assert.False(t, dec.More(), "the original body must be dropped")
}

func TestSignInGuard_KeepsGenericRejectionWhenNotLocked(t *testing.T) {
	inspector := &mockInspector{}
	calls := 0
	handler := SignInGuard(guardConfig(&mockLimiter{}, inspector))(rejectingHandler(&calls))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signInRequest("sales@steeldesk.test"))

	q := redirectTarget(t, rec)
	assert.Equal(t, "CredentialsRejected", q.Get("error"))
	assert.Empty(t, q.Get("minutes"))
	assert.Len(t, inspector.emails, 1)
}

func TestSignInGuard_FailsOpenWhenReQueryFails(t *testing.T) {
	inspector := &mockInspector{LockStatusFunc: func(ctx context.Context, email string) (*models.LoginDecision, error) {
		return nil, models.ErrStoreUnavailable
	}}
	calls := 0
	handler := SignInGuard(guardConfig(&mockLimiter{}, inspector))(rejectingHandler(&calls))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signInRequest("sales@steeldesk.test"))

	assert.Equal(t, "CredentialsRejected", redirectTarget(t, rec).Get("error"))
}

func TestSignInGuard_OnlyGenericRejectionTriggersReQuery(t *testing.T) {
	inspector := &mockInspector{LockStatusFunc: func(ctx context.Context, email string) (*models.LoginDecision, error) {
		return nil, errors.New("must not be called")
	}}

	handlers := map[string]http.HandlerFunc{
		"success": func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/admin", http.StatusSeeOther)
		},
		"already locked": func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteSignInSignal(w, r, "/admin/sign-in", pkghttp.SignInSignal{Code: pkghttp.CodeAccountLocked, Minutes: 3})
		},
		"failed": func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteSignInSignal(w, r, "/admin/sign-in", pkghttp.SignInSignal{Code: pkghttp.CodeSignInFailed})
		},
	}

	for name, next := range handlers {
		t.Run(name, func(t *testing.T) {
			inspector.emails = nil
			handler := SignInGuard(guardConfig(&mockLimiter{}, inspector))(next)

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, signInRequest("sales@steeldesk.test"))

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Empty(t, inspector.emails)
		})
	}
}

func TestSignInGuard_JSONBodyIdentifierAndBodyPreserved(t *testing.T) {
	inspector := &mockInspector{LockStatusFunc: lockedFor(5 * time.Minute)}
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Email string `json:"email"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		seen = payload.Email
		pkghttp.WriteSignInSignal(w, r, "/admin/sign-in", pkghttp.SignInSignal{Code: pkghttp.CodeCredentialsRejected})
	})
	handler := SignInGuard(guardConfig(&mockLimiter{}, inspector))(next)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/callback/credentials",
		strings.NewReader(`{"email":"buyer@steeldesk.test","password":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.RemoteAddr = "1.2.3.4:41000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "buyer@steeldesk.test", seen)
	assert.Equal(t, []string{"buyer@steeldesk.test"}, inspector.emails)
	assert.Equal(t, http.StatusLocked, rec.Code)
}

func TestSignInGuard_NoIdentifierSkipsReQuery(t *testing.T) {
	inspector := &mockInspector{LockStatusFunc: lockedFor(5 * time.Minute)}
	calls := 0
	handler := SignInGuard(guardConfig(&mockLimiter{}, inspector))(rejectingHandler(&calls))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signInRequest(""))

	assert.Equal(t, "CredentialsRejected", redirectTarget(t, rec).Get("error"))
	assert.Empty(t, inspector.emails)
}
