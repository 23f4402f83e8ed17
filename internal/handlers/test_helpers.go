package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/steeldesk/internal/auth"
	"github.com/BradenHooton/steeldesk/internal/models"
	"github.com/BradenHooton/steeldesk/internal/services"
	pkghttp "github.com/BradenHooton/steeldesk/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

// NewFormRequest creates a form-encoded POST as a browser would send it
func NewFormRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// WithAdminContext adds admin session claims to the request context
func WithAdminContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.TokenClaims{
		Type:   models.TokenTypeSession,
		UserID: userID,
		Email:  email,
		Role:   "admin",
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// WithURLParam sets a chi URL parameter on the request
func WithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthenticator implements Authenticator for testing
type MockAuthenticator struct {
	AuthenticateFunc func(ctx context.Context, email, password string) (*services.AuthResult, error)
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, email, password string) (*services.AuthResult, error) {
	if m.AuthenticateFunc == nil {
		return &services.AuthResult{Decision: models.Rejected(models.ReasonUserNotFound, 0)}, nil
	}
	return m.AuthenticateFunc(ctx, email, password)
}

// MockSessionIssuer implements SessionIssuer for testing
type MockSessionIssuer struct {
	GenerateSessionTokenFunc func(user *models.User) (string, time.Time, error)
}

func (m *MockSessionIssuer) GenerateSessionToken(user *models.User) (string, time.Time, error) {
	if m.GenerateSessionTokenFunc == nil {
		return "session-token", time.Now().Add(time.Hour), nil
	}
	return m.GenerateSessionTokenFunc(user)
}

// MockAccountLockService implements AccountLockService for testing
type MockAccountLockService struct {
	GetLockStatusFunc func(ctx context.Context, userID string) (*services.AccountLockStatus, error)
	UnlockFunc        func(ctx context.Context, userID, actorID string) error
}

func (m *MockAccountLockService) GetLockStatus(ctx context.Context, userID string) (*services.AccountLockStatus, error) {
	if m.GetLockStatusFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetLockStatusFunc(ctx, userID)
}

func (m *MockAccountLockService) Unlock(ctx context.Context, userID, actorID string) error {
	if m.UnlockFunc == nil {
		return nil
	}
	return m.UnlockFunc(ctx, userID, actorID)
}

// MockHealthChecker implements HealthChecker for testing
type MockHealthChecker struct {
	Err error
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	return m.Err
}
