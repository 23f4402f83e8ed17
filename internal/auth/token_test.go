package auth

import (
	"testing"
	"time"

	"github.com/BradenHooton/steeldesk/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "f3c9a1d27be84e6a9c05d8b1e7a24f6093cd51be8a7f42d6"

func testAdmin() *models.User {
	return &models.User{ID: "admin-1", Email: "owner@steeldesk.test", Role: "admin", IsActive: true}
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager(testSecret, 8*time.Hour)

	token, expiresAt, err := tm.GenerateSessionToken(testAdmin())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(8*time.Hour), expiresAt, time.Minute)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.TokenTypeSession, claims.Type)
	assert.Equal(t, "admin-1", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := tm.GenerateSessionToken(testAdmin())
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsWrongSecret(t *testing.T) {
	token, _, err := NewTokenManager(testSecret, time.Hour).GenerateSessionToken(testAdmin())
	require.NoError(t, err)

	_, err = NewTokenManager("another-secret-another-secret-another-secret", time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsForeignTokenType(t *testing.T) {
	now := time.Now()
	claims := &models.TokenClaims{
		Type:   "refresh",
		UserID: "admin-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsNoneAlgorithm(t *testing.T) {
	claims := &models.TokenClaims{
		Type:             models.TokenTypeSession,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: sessionIssuer},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, time.Hour).ValidateToken(token)
	assert.Error(t, err)
}
