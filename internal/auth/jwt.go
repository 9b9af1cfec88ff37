package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/healthapp/identity-service/internal/identity"
	"github.com/healthapp/identity-service/internal/logging"
)

// MinSigningKeyLen is the shortest HS256 key accepted
const MinSigningKeyLen = 32

var ErrSessionTokenInvalid = errors.New("invalid session token")

// SessionClaims are the claims carried by a session token.
// Subject holds the identity's email.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// JWTService issues and validates HS256 session tokens. The signing key is
// fixed for the life of the process; replacing it invalidates every token.
type JWTService struct {
	secret     []byte
	expiration time.Duration
	logger     *logging.Logger
	now        func() time.Time
}

func NewJWTService(secret []byte, expiration time.Duration, logger *logging.Logger) (*JWTService, error) {
	if len(secret) < MinSigningKeyLen {
		return nil, fmt.Errorf("signing key must be at least %d bytes, got %d", MinSigningKeyLen, len(secret))
	}
	if expiration <= 0 {
		return nil, fmt.Errorf("token expiration must be positive")
	}

	return &JWTService{
		secret:     secret,
		expiration: expiration,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Issue creates a signed session token for i
func (s *JWTService) Issue(i *identity.Identity) (string, error) {
	now := s.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   i.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
		},
		UserID: i.ID.String(),
		Role:   i.Role.String(),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, nil
}

// Claims verifies signature and expiry and returns the token's claims
func (s *JWTService) Claims(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrSessionTokenInvalid
	}

	return claims, nil
}

// Validate reports whether tokenStr is a well-formed, correctly signed,
// unexpired session token
func (s *JWTService) Validate(tokenStr string) bool {
	if _, err := s.Claims(tokenStr); err != nil {
		s.logger.Debug("session token rejected", "error", err.Error())
		return false
	}
	return true
}

// EmailOf returns the subject of a correctly signed token. Expiry is not
// checked; callers that need a live session must call Validate first.
func (s *JWTService) EmailOf(tokenStr string) (string, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSessionTokenInvalid, err)
	}

	return claims.Subject, nil
}

func (s *JWTService) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
	}
	return s.secret, nil
}
