// Package identity holds the authentication record and its persistence.
package identity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role determines which profile an identity owns and what it may access
type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole converts a wire value to a Role
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) String() string { return string(r) }

// Purpose distinguishes the two kinds of single-use token
type Purpose string

const (
	PurposeVerification Purpose = "verification"
	PurposeReset        Purpose = "reset"
)

// Identity is one authenticatable account.
// Email and Role never change after creation; Verified never reverts.
type Identity struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Verified     bool      `json:"verified"`

	// Single-use token state, one slot per purpose. Only SHA-256 digests
	// are kept; the plaintext exists in the outgoing email only.
	VerificationTokenHash *string    `json:"-"`
	VerificationExpiresAt *time.Time `json:"-"`
	ResetTokenHash        *string    `json:"-"`
	ResetExpiresAt        *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an unverified identity with a fresh id
func New(email, passwordHash string, role Role, now time.Time) *Identity {
	return &Identity{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// SetToken stores the digest and expiry for purpose, replacing any previous token
func (i *Identity) SetToken(purpose Purpose, digest string, expiresAt time.Time) {
	switch purpose {
	case PurposeVerification:
		i.VerificationTokenHash = &digest
		i.VerificationExpiresAt = &expiresAt
	case PurposeReset:
		i.ResetTokenHash = &digest
		i.ResetExpiresAt = &expiresAt
	}
}

// Token returns the stored digest and expiry for purpose, nil when absent
func (i *Identity) Token(purpose Purpose) (*string, *time.Time) {
	switch purpose {
	case PurposeVerification:
		return i.VerificationTokenHash, i.VerificationExpiresAt
	case PurposeReset:
		return i.ResetTokenHash, i.ResetExpiresAt
	}
	return nil, nil
}

// ClearToken removes the token of purpose
func (i *Identity) ClearToken(purpose Purpose) {
	switch purpose {
	case PurposeVerification:
		i.VerificationTokenHash = nil
		i.VerificationExpiresAt = nil
	case PurposeReset:
		i.ResetTokenHash = nil
		i.ResetExpiresAt = nil
	}
}

// MarkVerified flips the identity to verified and drops the verification token
func (i *Identity) MarkVerified() {
	i.Verified = true
	i.ClearToken(PurposeVerification)
}

// clone returns a deep copy so stored records cannot be mutated by callers
func (i *Identity) clone() *Identity {
	c := *i
	c.VerificationTokenHash = copyPtr(i.VerificationTokenHash)
	c.VerificationExpiresAt = copyPtr(i.VerificationExpiresAt)
	c.ResetTokenHash = copyPtr(i.ResetTokenHash)
	c.ResetExpiresAt = copyPtr(i.ResetExpiresAt)
	return &c
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
