package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/healthapp/identity-service/internal/identity"
	"github.com/healthapp/identity-service/internal/logging"
	"github.com/healthapp/identity-service/internal/profile"
	"github.com/healthapp/identity-service/internal/storage"
)

type sentEmail struct {
	kind      string
	email     string
	token     string
	role      identity.Role
	firstName string
}

// recordingNotifier captures outgoing emails instead of sending them
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (n *recordingNotifier) SendVerificationEmail(_ context.Context, email, token string, role identity.Role) {
	n.record(sentEmail{kind: "verification", email: email, token: token, role: role})
}

func (n *recordingNotifier) SendPasswordResetEmail(_ context.Context, email, token string, role identity.Role) {
	n.record(sentEmail{kind: "reset", email: email, token: token, role: role})
}

func (n *recordingNotifier) SendWelcomeEmail(_ context.Context, email, firstName string) {
	n.record(sentEmail{kind: "welcome", email: email, firstName: firstName})
}

func (n *recordingNotifier) record(e sentEmail) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, e)
}

func (n *recordingNotifier) last(t *testing.T, kind string) sentEmail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind {
			return n.sent[i]
		}
	}
	t.Fatalf("no %s email sent", kind)
	return sentEmail{}
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type testEnv struct {
	service  *Service
	store    *storage.MemoryStore
	notifier *recordingNotifier
	tokens   *TokenManager
	sessions *JWTService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logging.NewDiscardLogger()
	store := storage.NewMemoryStore()
	notifier := &recordingNotifier{}
	tokens := NewTokenManager()
	sessions := newTestJWTService(t, testSecret)

	return &testEnv{
		service:  NewService(store, NewBcryptHasher(bcrypt.MinCost), tokens, sessions, notifier, logger),
		store:    store,
		notifier: notifier,
		tokens:   tokens,
		sessions: sessions,
	}
}

func patientInput(email string) RegisterInput {
	return RegisterInput{
		Email:    email,
		Password: "Password1",
		Role:     identity.RolePatient,
		Profile: &profile.PatientRegistration{
			FirstName: "Alice",
			LastName:  "Smith",
			Phone:     "555-0100",
			Gender:    "F",
			DOB:       time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func doctorInput(email, license string) RegisterInput {
	return RegisterInput{
		Email:    email,
		Password: "Password1",
		Role:     identity.RoleDoctor,
		Profile: &profile.DoctorRegistration{
			FirstName:      "Greg",
			LastName:       "House",
			Phone:          "555-0101",
			Gender:         "M",
			LicenseNumber:  license,
			Specialization: "Diagnostics",
		},
	}
}

func TestService_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	created, err := env.service.Register(ctx, patientInput("alice@x.com"))
	require.NoError(t, err)
	assert.False(t, created.Verified)

	verification := env.notifier.last(t, "verification")
	assert.Equal(t, "alice@x.com", verification.email)
	assert.Equal(t, identity.RolePatient, verification.role)

	_, err = env.service.Login(ctx, "alice@x.com", "Password1")
	assert.ErrorIs(t, err, ErrEmailNotVerified)

	require.NoError(t, env.service.VerifyEmail(ctx, verification.token))
	welcome := env.notifier.last(t, "welcome")
	assert.Equal(t, "Alice", welcome.firstName)

	err = env.service.VerifyEmail(ctx, verification.token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	result, err := env.service.Login(ctx, "alice@x.com", "Password1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", result.TokenType)
	assert.Equal(t, created.ID.String(), result.UserID)
	assert.Equal(t, identity.RolePatient, result.Role)
	assert.True(t, env.sessions.Validate(result.Token))

	current, err := env.service.Authenticate(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, current.ID)

	require.NoError(t, env.service.ForgotPassword(ctx, "alice@x.com"))
	superseded := env.notifier.last(t, "reset")
	require.NoError(t, env.service.ForgotPassword(ctx, "alice@x.com"))
	reset := env.notifier.last(t, "reset")
	require.NotEqual(t, superseded.token, reset.token)

	// only the latest reset token is honoured
	err = env.service.ResetPassword(ctx, superseded.token, "NewPassword2")
	assert.ErrorIs(t, err, ErrInvalidToken)

	require.NoError(t, env.service.ResetPassword(ctx, reset.token, "NewPassword2"))

	_, err = env.service.Login(ctx, "alice@x.com", "Password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.service.Login(ctx, "alice@x.com", "NewPassword2")
	assert.NoError(t, err)

	err = env.service.ResetPassword(ctx, reset.token, "Another3Pass")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// an issued session survives the reset until it expires
	assert.True(t, env.sessions.Validate(result.Token))
}

func TestService_RegisterDuplicate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.service.Register(ctx, patientInput("alice@x.com"))
	require.NoError(t, err)

	_, err = env.service.Register(ctx, doctorInput("alice@x.com", "LIC-1"))
	assert.ErrorIs(t, err, ErrDuplicateIdentity)
	assert.Equal(t, 1, env.store.Identities().Len())
	assert.Equal(t, 1, env.notifier.count())
}

func TestService_RegisterValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		input func() RegisterInput
	}{
		{"doctor without license", func() RegisterInput { return doctorInput("greg@x.com", "") }},
		{"patient without dob", func() RegisterInput {
			in := patientInput("p@x.com")
			in.Profile.(*profile.PatientRegistration).DOB = time.Time{}
			return in
		}},
		{"admin self-registration", func() RegisterInput {
			in := patientInput("root@x.com")
			in.Role = identity.RoleAdmin
			return in
		}},
		{"profile does not match role", func() RegisterInput {
			in := doctorInput("d@x.com", "LIC-9")
			in.Role = identity.RolePatient
			return in
		}},
		{"missing profile", func() RegisterInput {
			in := patientInput("n@x.com")
			in.Profile = nil
			return in
		}},
		{"typed nil profile", func() RegisterInput {
			in := patientInput("t@x.com")
			in.Profile = (*profile.PatientRegistration)(nil)
			return in
		}},
		{"invalid email", func() RegisterInput { return patientInput("not-an-email") }},
		{"display name email", func() RegisterInput { return patientInput("Alice <alice@x.com>") }},
		{"empty password", func() RegisterInput {
			in := patientInput("e@x.com")
			in.Password = ""
			return in
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.service.Register(ctx, tt.input())
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, 0, env.store.Identities().Len())
			assert.Equal(t, 0, env.notifier.count())
		})
	}
}

func TestService_RegisterDoctorDuplicateLicenseRollsBack(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.service.Register(ctx, doctorInput("greg@x.com", "LIC-1"))
	require.NoError(t, err)

	_, err = env.service.Register(ctx, doctorInput("james@x.com", "LIC-1"))
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, profile.ErrDuplicateLicense)

	exists, err := env.store.Identities().ExistsByEmail(ctx, "james@x.com")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, 1, env.store.Profiles().Len())
}

func TestService_RegisterDoctorAwaitsApproval(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	created, err := env.service.Register(ctx, doctorInput("greg@x.com", "LIC-1"))
	require.NoError(t, err)

	d, ok := env.store.Profiles().Doctor(created.ID)
	require.True(t, ok)
	assert.False(t, d.Approved)
	assert.Equal(t, identity.RoleDoctor, env.notifier.last(t, "verification").role)
}

func TestService_RegisterStoresQuestionnaire(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	in := patientInput("alice@x.com")
	in.Profile.(*profile.PatientRegistration).MedicalQuestionnaire = map[string]any{"smoker": false}

	_, err := env.service.Register(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 1, env.store.Profiles().HistoryCount())
}

func TestService_VerifyExpiredToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.service.Register(ctx, patientInput("alice@x.com"))
	require.NoError(t, err)
	token := env.notifier.last(t, "verification").token

	env.tokens.now = func() time.Time { return time.Now().Add(SingleUseTokenTTL + time.Minute) }
	err = env.service.VerifyEmail(ctx, token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	stored, err := env.store.Identities().GetByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.False(t, stored.Verified)
}

func TestService_LoginErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.service.Register(ctx, patientInput("alice@x.com"))
	require.NoError(t, err)

	_, unknownErr := env.service.Login(ctx, "ghost@x.com", "Password1")
	_, wrongErr := env.service.Login(ctx, "alice@x.com", "WrongPass1")
	assert.ErrorIs(t, unknownErr, ErrInvalidCredentials)
	assert.ErrorIs(t, wrongErr, ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())

	// credentials are checked before verification status
	_, err = env.service.Login(ctx, "alice@x.com", "Password1")
	assert.ErrorIs(t, err, ErrEmailNotVerified)

	_, err = env.service.Login(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_ForgotPasswordUnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	err := env.service.ForgotPassword(context.Background(), "ghost@x.com")
	assert.ErrorIs(t, err, ErrResourceNotFound)
	assert.Equal(t, 0, env.notifier.count())
}

func TestService_ResetTokenDoesNotVerify(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.service.Register(ctx, patientInput("alice@x.com"))
	require.NoError(t, err)
	verification := env.notifier.last(t, "verification")

	require.NoError(t, env.service.ForgotPassword(ctx, "alice@x.com"))
	reset := env.notifier.last(t, "reset")

	assert.ErrorIs(t, env.service.VerifyEmail(ctx, reset.token), ErrInvalidToken)
	assert.ErrorIs(t, env.service.ResetPassword(ctx, verification.token, "NewPassword2"), ErrInvalidToken)

	// both tokens remain usable for their own purpose
	require.NoError(t, env.service.VerifyEmail(ctx, verification.token))
	require.NoError(t, env.service.ResetPassword(ctx, reset.token, "NewPassword2"))
}

func TestService_ConcurrentVerifyConsumesOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.service.Register(ctx, patientInput("alice@x.com"))
	require.NoError(t, err)
	token := env.notifier.last(t, "verification").token

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := env.service.VerifyEmail(ctx, token); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestService_AuthenticateRejects(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.service.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// valid signature but the identity no longer resolves
	token, err := env.sessions.Issue(identity.New("ghost@x.com", "h", identity.RolePatient, time.Now()))
	require.NoError(t, err)
	_, err = env.service.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_WelcomeFallsBackToUser(t *testing.T) {
	env := newTestEnv(t)
	name := env.service.firstName(context.Background(), identity.New("x@x.com", "h", identity.RolePatient, time.Now()))
	assert.Equal(t, "User", name)
}

func TestService_CreateAdmin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	admin, err := env.service.CreateAdmin(ctx, "root@x.com", "Password1")
	require.NoError(t, err)
	assert.Equal(t, identity.RoleAdmin, admin.Role)
	assert.True(t, admin.Verified)
	assert.Equal(t, 0, env.store.Profiles().Len())
	assert.Equal(t, 0, env.notifier.count())

	result, err := env.service.Login(ctx, "root@x.com", "Password1")
	require.NoError(t, err)
	assert.Equal(t, identity.RoleAdmin, result.Role)

	_, err = env.service.CreateAdmin(ctx, "root@x.com", "Password1")
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	_, err = env.service.CreateAdmin(ctx, "other@x.com", "weak")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.service.CreateAdmin(ctx, "Root <root2@x.com>", "Password1")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 1, env.store.Identities().Len())
}

func TestService_ApproveDoctor(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	doctor, err := env.service.Register(ctx, doctorInput("greg@x.com", "LIC-1"))
	require.NoError(t, err)
	patient, err := env.service.Register(ctx, patientInput("alice@x.com"))
	require.NoError(t, err)

	require.NoError(t, env.service.ApproveDoctor(ctx, doctor.ID))
	d, ok := env.store.Profiles().Doctor(doctor.ID)
	require.True(t, ok)
	assert.True(t, d.Approved)

	assert.ErrorIs(t, env.service.ApproveDoctor(ctx, patient.ID), ErrDoctorNotFound)
}
