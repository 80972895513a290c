package auth

import (
	"testing"
	"time"

	"studylink/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)

	token, err := m.Issue("u1", "Ann")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), claims.UserID)
	assert.Equal(t, "Ann", claims.Username)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenManager("secret-a", time.Hour)
	verifier := NewTokenManager("secret-b", time.Hour)

	token, err := issuer.Issue("u1", "Ann")
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsGarbage(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)

	_, err := m.Validate("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = m.Validate("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredTokenReported(t *testing.T) {
	m := &TokenManager{secret: []byte("secret"), ttl: -time.Minute}

	token, err := m.Issue("u1", "Ann")
	require.NoError(t, err)

	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestZeroTTLDefaultsToADay(t *testing.T) {
	m := NewTokenManager("secret", 0)

	token, err := m.Issue("u1", "Ann")
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	expires := claims.ExpiresAt.Time
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), expires, time.Minute)
}
