package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	digest, err := h.Hash("Password1")
	require.NoError(t, err)
	assert.NotEqual(t, "Password1", digest)
	assert.True(t, h.Verify("Password1", digest))
	assert.False(t, h.Verify("Password2", digest))

	t.Run("salted", func(t *testing.T) {
		other, err := h.Hash("Password1")
		require.NoError(t, err)
		assert.NotEqual(t, digest, other)
	})

	t.Run("empty password rejected", func(t *testing.T) {
		_, err := h.Hash("")
		assert.ErrorIs(t, err, ErrPasswordRequired)
	})

	t.Run("overlong password rejected", func(t *testing.T) {
		_, err := h.Hash(strings.Repeat("A1", 40))
		assert.ErrorIs(t, err, ErrPasswordTooLong)
	})

	t.Run("malformed digest never matches", func(t *testing.T) {
		assert.False(t, h.Verify("Password1", "not-a-hash"))
		assert.False(t, h.Verify("Password1", ""))
	})
}
