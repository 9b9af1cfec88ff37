package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/healthapp/identity-service/internal/config"
	"github.com/healthapp/identity-service/internal/identity"
	"github.com/healthapp/identity-service/internal/logging"
)

// tokenLifetime is stated in email copy and matches the single-use token TTL
const tokenLifetime = "24 hours"

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service renders account emails and delivers them over SMTP. With no SMTP
// host configured it logs the message instead of sending it.
type Service struct {
	smtpHost           string
	smtpPort           string
	smtpUser           string
	smtpPassword       string
	fromEmail          string
	patientFrontendURL string
	doctorFrontendURL  string
	logger             *logging.Logger
	sendMail           sendMailFunc
}

func NewService(cfg config.EmailConfig, logger *logging.Logger) *Service {
	return &Service{
		smtpHost:           cfg.SMTPHost,
		smtpPort:           cfg.SMTPPort,
		smtpUser:           cfg.SMTPUser,
		smtpPassword:       cfg.SMTPPassword,
		fromEmail:          cfg.From,
		patientFrontendURL: cfg.PatientFrontendURL,
		doctorFrontendURL:  cfg.DoctorFrontendURL,
		logger:             logger,
		sendMail:           smtp.SendMail,
	}
}

// SendVerificationEmail sends an email verification link to the user
func (s *Service) SendVerificationEmail(ctx context.Context, toEmail, token string, role identity.Role) error {
	verificationLink := fmt.Sprintf("%s/verify-email?token=%s", s.frontendURL(role), token)

	body, err := render(verificationTemplate, linkData{Link: verificationLink, Token: token, Lifetime: tokenLifetime})
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}

	if err := s.send(toEmail, "Email Verification - HealthApp", body); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	s.logger.Info("verification email sent", "email", toEmail)
	return nil
}

// SendPasswordResetEmail sends a password reset link to the user
func (s *Service) SendPasswordResetEmail(ctx context.Context, toEmail, token string, role identity.Role) error {
	resetLink := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL(role), token)

	body, err := render(passwordResetTemplate, linkData{Link: resetLink, Token: token, Lifetime: tokenLifetime})
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}

	if err := s.send(toEmail, "Password Reset - HealthApp", body); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	s.logger.Info("password reset email sent", "email", toEmail)
	return nil
}

// SendWelcomeEmail greets a user whose email was just verified
func (s *Service) SendWelcomeEmail(ctx context.Context, toEmail, firstName string) error {
	body, err := render(welcomeTemplate, struct{ FirstName string }{FirstName: firstName})
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}

	if err := s.send(toEmail, "Welcome to HealthApp!", body); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	s.logger.Info("welcome email sent", "email", toEmail)
	return nil
}

// frontendURL picks the app the link should open. Only patients use the
// patient app; every other role lands on the doctor app.
func (s *Service) frontendURL(role identity.Role) string {
	if role == identity.RolePatient {
		return s.patientFrontendURL
	}
	return s.doctorFrontendURL
}

func (s *Service) send(to, subject, body string) error {
	if s.smtpHost == "" {
		s.logger.Info("smtp not configured, email not delivered", "to", to, "subject", subject, "body", body)
		return nil
	}

	auth := smtp.PlainAuth("", s.smtpUser, s.smtpPassword, s.smtpHost)

	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		s.fromEmail, to, subject, body,
	))

	addr := fmt.Sprintf("%s:%s", s.smtpHost, s.smtpPort)
	return s.sendMail(addr, auth, s.fromEmail, []string{to}, msg)
}

type linkData struct {
	Link     string
	Token    string
	Lifetime string
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}
