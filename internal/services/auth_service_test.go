package services_test

import (
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/services"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthService_ValidateToken(t *testing.T) {
	authService := services.NewAuthService("test_jwt_secret")

	token := signToken(t, "test_jwt_secret", jwt.MapClaims{
		"user_id": "user-1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	claims, err := authService.ValidateToken(token)
	require.NoError(t, err)
	userID, err := services.UserID(claims)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	// Wrong secret
	forged := signToken(t, "other", jwt.MapClaims{"user_id": "user-1"})
	_, err = authService.ValidateToken(forged)
	assert.ErrorIs(t, err, services.ErrInvalidToken)

	// Expired
	expired := signToken(t, "test_jwt_secret", jwt.MapClaims{
		"user_id": "user-1",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	_, err = authService.ValidateToken(expired)
	assert.ErrorIs(t, err, services.ErrInvalidToken)

	_, err = authService.ValidateToken("garbage")
	assert.ErrorIs(t, err, services.ErrInvalidToken)
}

func TestUserID(t *testing.T) {
	id, err := services.UserID(jwt.MapClaims{"sub": "user-9"})
	require.NoError(t, err)
	assert.Equal(t, "user-9", id)

	id, err = services.UserID(jwt.MapClaims{"user_id": float64(42)})
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	_, err = services.UserID(jwt.MapClaims{"username": "x"})
	assert.ErrorIs(t, err, services.ErrInvalidToken)
}
