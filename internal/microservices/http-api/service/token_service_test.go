package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenService_IssueAndValidate(t *testing.T) {
	tokens := NewTokenService(testSecret, time.Hour)

	token, err := tokens.Issue("teacher-7", "teacher")
	require.NoError(t, err)

	claims, err := tokens.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "teacher-7", claims.UserID)
	assert.Equal(t, "teacher-7", claims.Subject)
	assert.Equal(t, "teacher", claims.Role)
	assert.Equal(t, []string{ScopeNotificationsRead}, claims.Scopes)
}

func TestTokenService_RejectsOtherSecret(t *testing.T) {
	token, err := NewTokenService(testSecret, time.Hour).Issue("u1", "student")
	require.NoError(t, err)

	_, err = NewTokenService("another-secret-another-secret-xx", time.Hour).ValidateToken(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Expired(t *testing.T) {
	svc := NewTokenService(testSecret, time.Minute).(*tokenService)
	issuedAt := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issuedAt }
	token, err := svc.Issue("u1", "student")
	require.NoError(t, err)

	svc.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	_, err = svc.ValidateToken(token)

	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenService_SubjectOnlyToken(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u9",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	claims, err := NewTokenService(testSecret, time.Hour).ValidateToken(token)

	require.NoError(t, err)
	assert.Equal(t, "u9", claims.UserID)
}

func TestTokenService_RejectsGarbageAndEmptyUser(t *testing.T) {
	tokens := NewTokenService(testSecret, time.Hour)

	_, err := tokens.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Issue("", "student")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
