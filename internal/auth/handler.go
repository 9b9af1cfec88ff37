package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/healthapp/identity-service/internal/httputil"
	"github.com/healthapp/identity-service/internal/identity"
	"github.com/healthapp/identity-service/internal/logging"
	"github.com/healthapp/identity-service/internal/profile"
)

const dateLayout = "2006-01-02"

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: newValidator(),
		logger:   logger,
	}
}

// RegisterRequest is the sign-up body for both patients and doctors.
// dob is required for patients; licenseNumber and specialization for doctors.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,password"`
	Role     string `json:"role" validate:"required,oneof=PATIENT DOCTOR ADMIN"`

	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Phone     string `json:"phone" validate:"required"`
	Gender    string `json:"gender" validate:"required"`

	DOB                  string         `json:"dob,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Address              string         `json:"address,omitempty"`
	ProfilePhotoBase64   string         `json:"profilePhotoBase64,omitempty"`
	InsuranceInfo        string         `json:"insuranceInfo,omitempty"`
	MedicalQuestionnaire map[string]any `json:"medicalQuestionnaire,omitempty"`

	LicenseNumber  string   `json:"licenseNumber,omitempty"`
	Specialization string   `json:"specialization,omitempty"`
	Experience     *int     `json:"experience,omitempty"`
	Education      string   `json:"education,omitempty"`
	Bio            string   `json:"bio,omitempty" validate:"max=500"`
	Languages      []string `json:"languages,omitempty"`
	ClinicAddress  string   `json:"clinicAddress,omitempty"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ResetPasswordRequest is accepted as a JSON body when the query parameters are absent
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,password"`
}

// LoginResponse is returned on successful login
type LoginResponse struct {
	Token   string        `json:"token"`
	Type    string        `json:"type"`
	UserID  string        `json:"userId"`
	Email   string        `json:"email"`
	Role    identity.Role `json:"role"`
	Message string        `json:"message"`
}

// MeResponse describes the authenticated caller
type MeResponse struct {
	UserID string        `json:"userId"`
	Email  string        `json:"email"`
	Role   identity.Role `json:"role"`
}

// Register handles patient and doctor sign-up
// @Summary      Register new user
// @Description  Register as Patient or Doctor. A verification email is sent.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Registration details"
// @Success      201 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request or validation error"
// @Failure      409 {object} httputil.ErrorResponse "Email already exists"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /api/auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email, "role": req.Role})

	if err := h.validate.Struct(req); err != nil {
		logger.Warn("registration failed: validation error", "error", err.Error())
		httputil.RespondErrorWithCode(w, validationMessage(err), httputil.CodeValidationError, http.StatusBadRequest)
		return
	}

	input, err := req.toInput()
	if err != nil {
		logger.Warn("registration failed: validation error", "error", err.Error())
		httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeValidationError, http.StatusBadRequest)
		return
	}

	created, err := h.service.Register(r.Context(), input)
	if err != nil {
		respondServiceError(w, logger, "registration", err)
		return
	}

	logger.Info("user registered successfully", "user_id", created.ID)

	httputil.RespondMessage(w, "Registration successful! Please check your email to verify your account.", http.StatusCreated)
}

// VerifyEmail handles email verification
// @Summary      Verify email
// @Description  Verify email with the token from the verification email
// @Tags         auth
// @Produce      json
// @Param        token query string true "Verification token"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid or expired token"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /api/auth/verify-email [post]
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.RespondErrorWithCode(w, "token is required", httputil.CodeTokenRequired, http.StatusBadRequest)
		return
	}

	if err := h.service.VerifyEmail(r.Context(), token); err != nil {
		respondServiceError(w, logger, "email verification", err)
		return
	}

	logger.Info("email verified successfully")

	httputil.RespondMessage(w, "Email verified successfully! You can now login.", http.StatusOK)
}

// Login handles user login
// @Summary      Login
// @Description  Login with email and password and receive a bearer session token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} LoginResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body"
// @Failure      401 {object} httputil.ErrorResponse "Invalid credentials"
// @Failure      403 {object} httputil.ErrorResponse "Email not verified"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /api/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	if err := h.validate.Struct(req); err != nil {
		logger.Warn("login failed: validation error", "error", err.Error())
		httputil.RespondErrorWithCode(w, validationMessage(err), httputil.CodeValidationError, http.StatusBadRequest)
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, logger, "login", err)
		return
	}

	logger.Info("user logged in successfully", "user_id", result.UserID)

	httputil.RespondJSON(w, LoginResponse{
		Token:   result.Token,
		Type:    result.TokenType,
		UserID:  result.UserID,
		Email:   result.Email,
		Role:    result.Role,
		Message: "Login successful",
	}, http.StatusOK)
}

// ForgotPassword handles password reset requests
// @Summary      Forgot password
// @Description  Request a password reset link by email
// @Tags         auth
// @Produce      json
// @Param        email query string true "Account email"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Missing email"
// @Failure      404 {object} httputil.ErrorResponse "Unknown email"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /api/auth/forgot-password [post]
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	email := r.URL.Query().Get("email")
	if email == "" {
		httputil.RespondErrorWithCode(w, "email is required", httputil.CodeValidationError, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": email})

	if err := h.service.ForgotPassword(r.Context(), email); err != nil {
		respondServiceError(w, logger, "forgot password", err)
		return
	}

	logger.Info("password reset requested")

	httputil.RespondMessage(w, "Password reset link sent to your email", http.StatusOK)
}

// ResetPassword handles password reset confirmation
// @Summary      Reset password
// @Description  Reset the password with the token from the reset email. Query parameters or a JSON body are accepted.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        token query string false "Reset token"
// @Param        newPassword query string false "New password"
// @Param        request body ResetPasswordRequest false "Reset token and new password"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid or expired token, or weak password"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /api/auth/reset-password [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	req := ResetPasswordRequest{
		Token:       r.URL.Query().Get("token"),
		NewPassword: r.URL.Query().Get("newPassword"),
	}
	if req.Token == "" && req.NewPassword == "" && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Warn("invalid reset password request body", "error", err.Error())
			httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
			return
		}
	}

	if req.Token == "" {
		httputil.RespondErrorWithCode(w, "token is required", httputil.CodeTokenRequired, http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		logger.Warn("reset password failed: validation error", "error", err.Error())
		httputil.RespondErrorWithCode(w, validationMessage(err), httputil.CodeValidationError, http.StatusBadRequest)
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		respondServiceError(w, logger, "reset password", err)
		return
	}

	logger.Info("password reset successfully")

	httputil.RespondMessage(w, "Password reset successful! You can now login.", http.StatusOK)
}

// Logout acknowledges a logout
// @Summary      Logout
// @Description  Acknowledge logout. The client discards its session token.
// @Tags         auth
// @Produce      json
// @Success      200 {object} httputil.MessageResponse
// @Router       /api/auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	_ = h.service.Logout(r.Context())
	httputil.RespondMessage(w, "Logout successful", http.StatusOK)
}

// Health reports that the auth service is up
// @Summary      Health check
// @Tags         auth
// @Produce      json
// @Success      200 {object} httputil.MessageResponse
// @Router       /api/auth/health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.RespondMessage(w, "Auth service is running", http.StatusOK)
}

// Me returns the authenticated caller
// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} MeResponse
// @Failure      401 {object} httputil.ErrorResponse "Missing or invalid token"
// @Router       /api/auth/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "unauthorized", httputil.CodeUnauthorized, http.StatusUnauthorized)
		return
	}
	email, _ := GetUserEmailFromContext(r.Context())
	role, _ := GetUserRoleFromContext(r.Context())

	httputil.RespondJSON(w, MeResponse{UserID: userID.String(), Email: email, Role: role}, http.StatusOK)
}

// ApproveDoctor approves a doctor's profile
// @Summary      Approve doctor
// @Description  Mark a doctor as approved to practice. Admin only.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Doctor identity ID"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid ID"
// @Failure      401 {object} httputil.ErrorResponse "Missing or invalid token"
// @Failure      403 {object} httputil.ErrorResponse "Not an admin"
// @Failure      404 {object} httputil.ErrorResponse "Doctor not found"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /api/admin/doctors/{id}/approve [post]
func (h *Handler) ApproveDoctor(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	identityID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondErrorWithCode(w, "id must be a valid UUID", httputil.CodeValidationError, http.StatusBadRequest)
		return
	}

	if err := h.service.ApproveDoctor(r.Context(), identityID); err != nil {
		respondServiceError(w, logger, "approve doctor", err)
		return
	}

	httputil.RespondMessage(w, "Doctor approved", http.StatusOK)
}

// respondServiceError maps service errors to status codes and machine codes
func respondServiceError(w http.ResponseWriter, logger *logging.Logger, op string, err error) {
	switch {
	case errors.Is(err, ErrDuplicateIdentity):
		logger.Warn(op+" failed: email already exists")
		httputil.RespondErrorWithCode(w, "Email already registered", httputil.CodeEmailAlreadyExists, http.StatusConflict)
	case errors.Is(err, ErrValidation):
		logger.Warn(op+" failed: validation error", "error", err.Error())
		httputil.RespondErrorWithCode(w, validationDetail(err), httputil.CodeValidationError, http.StatusBadRequest)
	case errors.Is(err, ErrInvalidToken):
		logger.Warn(op + " failed: invalid token")
		httputil.RespondErrorWithCode(w, "Invalid token", httputil.CodeInvalidToken, http.StatusBadRequest)
	case errors.Is(err, ErrTokenExpired):
		logger.Warn(op + " failed: token expired")
		httputil.RespondErrorWithCode(w, "Token has expired", httputil.CodeTokenExpired, http.StatusBadRequest)
	case errors.Is(err, ErrInvalidCredentials):
		logger.Warn(op + " failed: invalid credentials")
		httputil.RespondErrorWithCode(w, "Invalid credentials", httputil.CodeInvalidCredentials, http.StatusUnauthorized)
	case errors.Is(err, ErrEmailNotVerified):
		logger.Warn(op + " failed: email not verified")
		httputil.RespondErrorWithCode(w, "Please verify your email before logging in", httputil.CodeEmailNotVerified, http.StatusForbidden)
	case errors.Is(err, ErrDoctorNotFound):
		logger.Warn(op + " failed: doctor not found")
		httputil.RespondErrorWithCode(w, "Doctor not found", httputil.CodeResourceNotFound, http.StatusNotFound)
	case errors.Is(err, ErrResourceNotFound):
		logger.Warn(op + " failed: resource not found")
		httputil.RespondErrorWithCode(w, "User not found with this email", httputil.CodeResourceNotFound, http.StatusNotFound)
	default:
		logger.Error(op+" failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "An unexpected error occurred", httputil.CodeInternalError, http.StatusInternalServerError)
	}
}

// validationDetail strips the sentinel prefix so clients see only the detail
func validationDetail(err error) string {
	msg := strings.TrimPrefix(err.Error(), ErrValidation.Error()+": ")
	msg = strings.TrimPrefix(msg, profile.ErrIncomplete.Error()+": ")
	return msg
}

func (req RegisterRequest) toInput() (RegisterInput, error) {
	role, err := identity.ParseRole(req.Role)
	if err != nil {
		return RegisterInput{}, err
	}

	in := RegisterInput{Email: req.Email, Password: req.Password, Role: role}

	switch role {
	case identity.RoleDoctor:
		in.Profile = &profile.DoctorRegistration{
			FirstName:          req.FirstName,
			LastName:           req.LastName,
			Phone:              req.Phone,
			Gender:             req.Gender,
			ProfilePhotoBase64: req.ProfilePhotoBase64,
			LicenseNumber:      req.LicenseNumber,
			Specialization:     req.Specialization,
			Experience:         req.Experience,
			Education:          req.Education,
			Bio:                req.Bio,
			Languages:          req.Languages,
			ClinicAddress:      req.ClinicAddress,
		}
	default:
		// ADMIN carries a patient-shaped profile; the service rejects it by role
		p := &profile.PatientRegistration{
			FirstName:            req.FirstName,
			LastName:             req.LastName,
			Phone:                req.Phone,
			Gender:               req.Gender,
			Address:              req.Address,
			ProfilePhotoBase64:   req.ProfilePhotoBase64,
			InsuranceInfo:        req.InsuranceInfo,
			MedicalQuestionnaire: req.MedicalQuestionnaire,
		}
		if req.DOB != "" {
			dob, err := time.Parse(dateLayout, req.DOB)
			if err != nil {
				return RegisterInput{}, err
			}
			p.DOB = dob
		}
		in.Profile = p
	}

	return in, nil
}
