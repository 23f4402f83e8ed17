package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/steeldesk/internal/models"
	"github.com/BradenHooton/steeldesk/internal/services"
	"github.com/stretchr/testify/assert"
)

func newTestAccountHandler(svc AccountLockService) *AccountHandler {
	return NewAccountHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAccountHandler_GetLockStatus(t *testing.T) {
	lockUntil := time.Now().Add(10 * time.Minute)
	svc := &MockAccountLockService{GetLockStatusFunc: func(ctx context.Context, userID string) (*services.AccountLockStatus, error) {
		return &services.AccountLockStatus{UserID: userID, Locked: true, FailedAttemptCount: 5, LockUntil: &lockUntil, MinutesRemaining: 10}, nil
	}}
	h := newTestAccountHandler(svc)

	req := WithURLParam(httptest.NewRequest(http.MethodGet, "/admin/api/accounts/u1/lock", nil), "id", "u1")
	rec := httptest.NewRecorder()
	h.GetLockStatus(rec, req)

	var status services.AccountLockStatus
	AssertJSONResponse(t, rec, http.StatusOK, &status)
	assert.Equal(t, "u1", status.UserID)
	assert.True(t, status.Locked)
	assert.Equal(t, 10, status.MinutesRemaining)
}

func TestAccountHandler_GetLockStatus_Errors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  int
		wantError string
	}{
		{"not found", models.ErrNotFound, http.StatusNotFound, "not_found"},
		{"store down", models.ErrStoreUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockAccountLockService{GetLockStatusFunc: func(ctx context.Context, userID string) (*services.AccountLockStatus, error) {
				return nil, tt.err
			}}
			req := WithURLParam(httptest.NewRequest(http.MethodGet, "/admin/api/accounts/u1/lock", nil), "id", "u1")
			rec := httptest.NewRecorder()

			newTestAccountHandler(svc).GetLockStatus(rec, req)

			AssertErrorResponse(t, rec, tt.wantCode, tt.wantError)
		})
	}
}

func TestAccountHandler_Unlock(t *testing.T) {
	var unlocked, actor string
	svc := &MockAccountLockService{
		UnlockFunc: func(ctx context.Context, userID, actorID string) error {
			unlocked, actor = userID, actorID
			return nil
		},
		GetLockStatusFunc: func(ctx context.Context, userID string) (*services.AccountLockStatus, error) {
			return &services.AccountLockStatus{UserID: userID}, nil
		},
	}
	h := newTestAccountHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/admin/api/accounts/u1/unlock", nil)
	req = WithURLParam(WithAdminContext(req, "admin-1", "owner@steeldesk.test"), "id", "u1")
	rec := httptest.NewRecorder()
	h.Unlock(rec, req)

	var status services.AccountLockStatus
	AssertJSONResponse(t, rec, http.StatusOK, &status)
	assert.False(t, status.Locked)
	assert.Equal(t, "u1", unlocked)
	assert.Equal(t, "admin-1", actor)
}

func TestAccountHandler_Unlock_NotFound(t *testing.T) {
	svc := &MockAccountLockService{UnlockFunc: func(ctx context.Context, userID, actorID string) error {
		return models.ErrNotFound
	}}

	req := WithURLParam(httptest.NewRequest(http.MethodPost, "/admin/api/accounts/x/unlock", nil), "id", "x")
	rec := httptest.NewRecorder()
	newTestAccountHandler(svc).Unlock(rec, req)

	AssertErrorResponse(t, rec, http.StatusNotFound, "not_found")
}

func TestAccountHandler_MissingID(t *testing.T) {
	h := newTestAccountHandler(&MockAccountLockService{})

	rec := httptest.NewRecorder()
	h.GetLockStatus(rec, httptest.NewRequest(http.MethodGet, "/admin/api/accounts//lock", nil))

	AssertErrorResponse(t, rec, http.StatusBadRequest, "bad_request")
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(&MockHealthChecker{})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)

	rec = httptest.NewRecorder()
	Health(&MockHealthChecker{Err: errors.New("down")})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unhealthy"`)
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(SignInRequest{Email: "a@steeldesk.test", Password: "x"}))

	err := ValidateRequest(SignInRequest{Email: "nope", Password: "x"})
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "Email: must be a valid email address")
	}

	err = ValidateRequest(SignInRequest{Email: "a@steeldesk.test"})
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "Password: this field is required")
	}
}
