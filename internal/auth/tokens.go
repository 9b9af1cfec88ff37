package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/healthapp/identity-service/internal/identity"
)

// SingleUseTokenTTL is the lifetime of verification and reset tokens
const SingleUseTokenTTL = 24 * time.Hour

// singleUseTokenBytes gives 256 bits of entropy per token
const singleUseTokenBytes = 32

// TokenManager issues and consumes single-use verification and reset tokens
type TokenManager struct {
	ttl time.Duration
	now func() time.Time
}

func NewTokenManager() *TokenManager {
	return &TokenManager{ttl: SingleUseTokenTTL, now: time.Now}
}

// Issue generates a token for purpose and stores its digest on i, replacing
// any earlier token of the same purpose. The caller persists i.
func (m *TokenManager) Issue(i *identity.Identity, purpose identity.Purpose) (string, error) {
	b := make([]byte, singleUseTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate %s token: %w", purpose, err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	now := m.now()
	i.SetToken(purpose, hashToken(token), now.Add(m.ttl))
	i.UpdatedAt = now

	return token, nil
}

// Consume finds the identity holding token for purpose and clears the token
// on the returned copy. It must run inside the transaction that saves the
// identity, so the token is gone once the state change commits.
// An expired token is left in place and reported as ErrTokenExpired.
func (m *TokenManager) Consume(ctx context.Context, repo identity.Repository, purpose identity.Purpose, token string) (*identity.Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	digest := hashToken(token)
	var (
		found *identity.Identity
		err   error
	)
	switch purpose {
	case identity.PurposeVerification:
		found, err = repo.GetByVerificationToken(ctx, digest)
	case identity.PurposeReset:
		found, err = repo.GetByResetToken(ctx, digest)
	default:
		return nil, fmt.Errorf("unknown token purpose %q", purpose)
	}
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up %s token: %w", purpose, err)
	}

	now := m.now()
	if _, expiresAt := found.Token(purpose); expiresAt == nil || !now.Before(*expiresAt) {
		return nil, ErrTokenExpired
	}

	found.ClearToken(purpose)
	found.UpdatedAt = now

	return found, nil
}

// hashToken returns the hex SHA-256 digest under which a token is stored
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
