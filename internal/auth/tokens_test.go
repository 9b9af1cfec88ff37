package auth

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthapp/identity-service/internal/identity"
)

func TestTokenManager_IssueAndConsume(t *testing.T) {
	ctx := context.Background()
	repo := identity.NewMemoryRepository()
	m := NewTokenManager()

	i := identity.New("alice@x.com", "hash", identity.RolePatient, time.Now())
	token, err := m.Issue(i, identity.PurposeVerification)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, i))

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	stored, expiresAt := i.Token(identity.PurposeVerification)
	require.NotNil(t, stored)
	assert.NotEqual(t, token, *stored)
	assert.WithinDuration(t, time.Now().Add(SingleUseTokenTTL), *expiresAt, time.Second)

	t.Run("wrong purpose", func(t *testing.T) {
		_, err := m.Consume(ctx, repo, identity.PurposeReset, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("consume once", func(t *testing.T) {
		got, err := m.Consume(ctx, repo, identity.PurposeVerification, token)
		require.NoError(t, err)
		digest, _ := got.Token(identity.PurposeVerification)
		assert.Nil(t, digest)
		require.NoError(t, repo.Save(ctx, got))

		_, err = m.Consume(ctx, repo, identity.PurposeVerification, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown and empty tokens", func(t *testing.T) {
		_, err := m.Consume(ctx, repo, identity.PurposeVerification, "nope")
		assert.ErrorIs(t, err, ErrInvalidToken)
		_, err = m.Consume(ctx, repo, identity.PurposeVerification, "")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestTokenManager_Expiry(t *testing.T) {
	ctx := context.Background()
	repo := identity.NewMemoryRepository()
	m := NewTokenManager()
	issuedAt := time.Now()
	m.now = func() time.Time { return issuedAt }

	i := identity.New("bob@x.com", "hash", identity.RoleDoctor, issuedAt)
	token, err := m.Issue(i, identity.PurposeReset)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, i))

	m.now = func() time.Time { return issuedAt.Add(SingleUseTokenTTL) }
	_, err = m.Consume(ctx, repo, identity.PurposeReset, token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	// the expired token is left in place
	_, err = m.Consume(ctx, repo, identity.PurposeReset, token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	m.now = func() time.Time { return issuedAt.Add(SingleUseTokenTTL - time.Second) }
	_, err = m.Consume(ctx, repo, identity.PurposeReset, token)
	assert.NoError(t, err)
}

func TestTokenManager_ReissueSupersedes(t *testing.T) {
	ctx := context.Background()
	repo := identity.NewMemoryRepository()
	m := NewTokenManager()

	i := identity.New("carol@x.com", "hash", identity.RolePatient, time.Now())
	first, err := m.Issue(i, identity.PurposeReset)
	require.NoError(t, err)
	second, err := m.Issue(i, identity.PurposeReset)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, i))

	assert.NotEqual(t, first, second)
	_, err = m.Consume(ctx, repo, identity.PurposeReset, first)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = m.Consume(ctx, repo, identity.PurposeReset, second)
	assert.NoError(t, err)
}
