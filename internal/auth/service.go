package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/healthapp/identity-service/internal/identity"
	"github.com/healthapp/identity-service/internal/logging"
	"github.com/healthapp/identity-service/internal/profile"
	"github.com/healthapp/identity-service/internal/storage"
)

var (
	ErrDuplicateIdentity  = errors.New("email already registered")
	ErrValidation         = errors.New("validation error")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("please verify your email before logging in")
	ErrResourceNotFound   = errors.New("user not found with this email")
	ErrDoctorNotFound     = errors.New("doctor profile not found")
)

// defaultFirstName addresses welcome emails when no profile name is known
const defaultFirstName = "User"

// Notifier delivers account emails. Calls must not block on delivery and
// never report failure to the caller.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, email, token string, role identity.Role)
	SendPasswordResetEmail(ctx context.Context, email, token string, role identity.Role)
	SendWelcomeEmail(ctx context.Context, email, firstName string)
}

// SessionIssuer issues and checks session tokens
type SessionIssuer interface {
	Issue(i *identity.Identity) (string, error)
	Validate(token string) bool
	EmailOf(token string) (string, error)
}

// RegisterInput is a sign-up request. Profile must match Role.
type RegisterInput struct {
	Email    string
	Password string
	Role     identity.Role
	Profile  profile.Registration
}

// LoginResult is returned on successful login
type LoginResult struct {
	Token     string        `json:"token"`
	TokenType string        `json:"type"`
	UserID    string        `json:"userId"`
	Email     string        `json:"email"`
	Role      identity.Role `json:"role"`
}

// Service drives the identity lifecycle: registration, verification,
// login and password reset
type Service struct {
	store    storage.Store
	hasher   PasswordHasher
	tokens   *TokenManager
	sessions SessionIssuer
	notifier Notifier
	logger   *logging.Logger
	now      func() time.Time
}

func NewService(
	store storage.Store,
	hasher PasswordHasher,
	tokens *TokenManager,
	sessions SessionIssuer,
	notifier Notifier,
	logger *logging.Logger,
) *Service {
	return &Service{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		sessions: sessions,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Register creates an unverified identity with its profile and sends a
// verification email
func (s *Service) Register(ctx context.Context, in RegisterInput) (*identity.Identity, error) {
	if err := validateRegistration(in); err != nil {
		return nil, err
	}

	// Early, friendly duplicate check. The unique constraint decides races.
	var exists bool
	err := s.store.Run(ctx, func(ctx context.Context, r storage.Repositories) error {
		var err error
		exists, err = r.Identities.ExistsByEmail(ctx, in.Email)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, ErrDuplicateIdentity
	}

	passwordHash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	var (
		created *identity.Identity
		token   string
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, r storage.Repositories) error {
		i := identity.New(in.Email, passwordHash, in.Role, s.now())

		var err error
		token, err = s.tokens.Issue(i, identity.PurposeVerification)
		if err != nil {
			return err
		}

		if err := r.Identities.Create(ctx, i); err != nil {
			if errors.Is(err, identity.ErrDuplicateEmail) {
				return ErrDuplicateIdentity
			}
			return fmt.Errorf("failed to create identity: %w", err)
		}

		if err := s.createProfile(ctx, r.Profiles, i, in.Profile); err != nil {
			return err
		}

		created = i
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.SendVerificationEmail(ctx, created.Email, token, created.Role)

	return created, nil
}

// VerifyEmail consumes a verification token and marks its identity verified
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	var verified *identity.Identity
	err := s.store.RunInTx(ctx, func(ctx context.Context, r storage.Repositories) error {
		i, err := s.tokens.Consume(ctx, r.Identities, identity.PurposeVerification, token)
		if err != nil {
			return err
		}

		i.MarkVerified()
		if err := r.Identities.Save(ctx, i); err != nil {
			return fmt.Errorf("failed to verify email: %w", err)
		}

		verified = i
		return nil
	})
	if err != nil {
		return err
	}

	s.notifier.SendWelcomeEmail(ctx, verified.Email, s.firstName(ctx, verified))

	return nil
}

// Login checks credentials and issues a session token. Unknown email and
// wrong password are indistinguishable; verification is checked last.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	existing, err := s.getByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	if !s.hasher.Verify(password, existing.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !existing.Verified {
		return nil, ErrEmailNotVerified
	}

	token, err := s.sessions.Issue(existing)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	return &LoginResult{
		Token:     token,
		TokenType: "Bearer",
		UserID:    existing.ID.String(),
		Email:     existing.Email,
		Role:      existing.Role,
	}, nil
}

// ForgotPassword issues a reset token and emails it
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	var (
		target *identity.Identity
		token  string
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, r storage.Repositories) error {
		i, err := r.Identities.GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, identity.ErrNotFound) {
				return ErrResourceNotFound
			}
			return fmt.Errorf("failed to get identity: %w", err)
		}

		token, err = s.tokens.Issue(i, identity.PurposeReset)
		if err != nil {
			return err
		}

		if err := r.Identities.Save(ctx, i); err != nil {
			return fmt.Errorf("failed to store reset token: %w", err)
		}

		target = i
		return nil
	})
	if err != nil {
		return err
	}

	s.notifier.SendPasswordResetEmail(ctx, target.Email, token, target.Role)

	return nil
}

// ResetPassword consumes a reset token and replaces the password in the
// same transaction. The caller is not logged in.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	passwordHash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}

	return s.store.RunInTx(ctx, func(ctx context.Context, r storage.Repositories) error {
		i, err := s.tokens.Consume(ctx, r.Identities, identity.PurposeReset, token)
		if err != nil {
			return err
		}

		i.PasswordHash = passwordHash
		if err := r.Identities.Save(ctx, i); err != nil {
			return fmt.Errorf("failed to reset password: %w", err)
		}

		return nil
	})
}

// CreateAdmin provisions a verified ADMIN identity without a profile.
// Admins cannot register through Register.
func (s *Service) CreateAdmin(ctx context.Context, email, password string) (*identity.Identity, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if !passwordMeetsPolicy(password) {
		return nil, fmt.Errorf("%w: password %s", ErrValidation, passwordPolicy)
	}

	passwordHash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}

	var created *identity.Identity
	err = s.store.RunInTx(ctx, func(ctx context.Context, r storage.Repositories) error {
		i := identity.New(email, passwordHash, identity.RoleAdmin, s.now())
		i.MarkVerified()

		if err := r.Identities.Create(ctx, i); err != nil {
			if errors.Is(err, identity.ErrDuplicateEmail) {
				return ErrDuplicateIdentity
			}
			return fmt.Errorf("failed to create admin: %w", err)
		}

		created = i
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin account created", "user_id", created.ID.String())

	return created, nil
}

// ApproveDoctor clears the doctor owned by identityID to practice
func (s *Service) ApproveDoctor(ctx context.Context, identityID uuid.UUID) error {
	err := s.store.RunInTx(ctx, func(ctx context.Context, r storage.Repositories) error {
		return r.Profiles.ApproveDoctor(ctx, identityID)
	})
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return ErrDoctorNotFound
		}
		return fmt.Errorf("failed to approve doctor: %w", err)
	}

	s.logger.Info("doctor approved", "user_id", identityID.String())

	return nil
}

// Logout acknowledges a logout. Session tokens are stateless and stay
// valid until they expire.
func (s *Service) Logout(ctx context.Context) error {
	return nil
}

// Authenticate resolves a session token to its current identity
func (s *Service) Authenticate(ctx context.Context, token string) (*identity.Identity, error) {
	if !s.sessions.Validate(token) {
		return nil, ErrInvalidToken
	}

	email, err := s.sessions.EmailOf(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	i, err := s.getByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	return i, nil
}

func (s *Service) getByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	var found *identity.Identity
	err := s.store.Run(ctx, func(ctx context.Context, r storage.Repositories) error {
		var err error
		found, err = r.Identities.GetByEmail(ctx, email)
		return err
	})
	return found, err
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, ErrPasswordRequired) || errors.Is(err, ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

func (s *Service) createProfile(ctx context.Context, profiles profile.Repository, i *identity.Identity, reg profile.Registration) error {
	var err error
	switch p := reg.(type) {
	case *profile.PatientRegistration:
		patient := profile.NewPatient(i.ID, p)
		if err = profiles.CreatePatient(ctx, patient); err == nil && len(p.MedicalQuestionnaire) > 0 {
			err = profiles.CreateMedicalHistory(ctx, profile.NewMedicalHistory(patient.ID, p.MedicalQuestionnaire, i.CreatedAt))
		}
	case *profile.DoctorRegistration:
		err = profiles.CreateDoctor(ctx, profile.NewDoctor(i.ID, p))
	default:
		return fmt.Errorf("%w: unsupported profile", ErrValidation)
	}

	if err != nil {
		if errors.Is(err, profile.ErrDuplicateLicense) {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// firstName looks up the greeting name for i, falling back to "User"
func (s *Service) firstName(ctx context.Context, i *identity.Identity) string {
	var name string
	err := s.store.Run(ctx, func(ctx context.Context, r storage.Repositories) error {
		var err error
		name, err = r.Profiles.FirstName(ctx, i.ID)
		return err
	})
	if err != nil {
		if !errors.Is(err, profile.ErrNotFound) {
			s.logger.Warn("failed to load first name", "user_id", i.ID, "error", err.Error())
		}
		return defaultFirstName
	}
	if name == "" {
		return defaultFirstName
	}
	return name
}

func validateRegistration(in RegisterInput) error {
	if err := validateEmail(in.Email); err != nil {
		return err
	}

	switch in.Role {
	case identity.RolePatient, identity.RoleDoctor:
	case identity.RoleAdmin:
		return fmt.Errorf("%w: admin accounts cannot self-register", ErrValidation)
	default:
		return fmt.Errorf("%w: role is required", ErrValidation)
	}

	if in.Profile == nil {
		return fmt.Errorf("%w: profile details are required", ErrValidation)
	}
	if in.Profile.Role() != in.Role {
		return fmt.Errorf("%w: profile does not match role %s", ErrValidation, in.Role)
	}
	if err := in.Profile.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	return nil
}

// validateEmail accepts a bare address only; display-name forms such as
// "Alice <a@x.com>" are rejected
func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if len(email) > 254 {
		return fmt.Errorf("%w: invalid email format", ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email format", ErrValidation)
	}
	return nil
}
