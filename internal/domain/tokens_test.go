package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/identity-service/internal/domain"
)

func TestRefreshTokenValidity(t *testing.T) {
	token, err := domain.NewRefreshToken(uuid.New(), testNow, 0)
	require.NoError(t, err)

	assert.Equal(t, testNow.Add(domain.DefaultRefreshTokenTTL), token.ExpiresAt())
	assert.True(t, token.IsValid(testNow))
	assert.False(t, token.IsValid(token.ExpiresAt()))

	token.Revoke()
	assert.False(t, token.IsValid(testNow))
	token.Revoke()
	assert.True(t, token.IsRevoked())
}

func TestRehydrateRefreshToken(t *testing.T) {
	token, err := domain.NewRefreshToken(uuid.New(), testNow, time.Hour)
	require.NoError(t, err)

	restored, err := domain.RehydrateRefreshToken(token.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, token.Snapshot(), restored.Snapshot())

	snapshot := token.Snapshot()
	snapshot.ExpiresAt = snapshot.IssuedAt
	_, err = domain.RehydrateRefreshToken(snapshot)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPasswordRecoverTokenValidity(t *testing.T) {
	accountID := uuid.New()
	token, err := domain.NewPasswordRecoverToken(accountID, "User@Example.com", "secret", testHash, testNow)
	require.NoError(t, err)

	assert.Equal(t, testNow.Add(15*time.Minute), token.ExpiresAt())
	assert.True(t, token.IsValid(testNow))
	assert.True(t, token.IsValid(testNow.Add(14*time.Minute)))
	assert.False(t, token.IsValid(testNow.Add(15*time.Minute)))

	events := token.DomainEvents()
	require.Len(t, events, 1)
	created, ok := events[0].(domain.PasswordRecoverTokenCreated)
	require.True(t, ok)
	assert.Equal(t, token.ID(), created.RecoverTokenID)
	assert.Equal(t, "user@example.com", created.Email)

	token.Apply()
	assert.False(t, token.IsValid(testNow))
	assert.False(t, token.IsValid(testNow.Add(-time.Hour)))
}

func TestNewTokensValidation(t *testing.T) {
	_, err := domain.NewConfirmationToken(uuid.Nil, testHash)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = domain.NewConfirmationToken(uuid.New(), "short")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = domain.NewPasswordRecoverToken(uuid.New(), "a@b.co", "", testHash, testNow)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = domain.NewRefreshToken(uuid.Nil, testNow, time.Hour)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
