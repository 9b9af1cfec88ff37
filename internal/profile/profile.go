// Package profile stores the role-specific data captured at registration.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/healthapp/identity-service/internal/identity"
)

// ErrIncomplete is wrapped by Validate when a required field is missing
var ErrIncomplete = errors.New("incomplete registration")

// Registration is the role-specific part of a sign-up request.
// Only *PatientRegistration and *DoctorRegistration implement it.
type Registration interface {
	Role() identity.Role
	Validate() error
	registration()
}

type PatientRegistration struct {
	FirstName            string
	LastName             string
	Phone                string
	Gender               string
	DOB                  time.Time
	Address              string
	ProfilePhotoBase64   string
	InsuranceInfo        string
	MedicalQuestionnaire map[string]any
}

func (*PatientRegistration) Role() identity.Role { return identity.RolePatient }
func (*PatientRegistration) registration()       {}

func (p *PatientRegistration) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: patient details are required", ErrIncomplete)
	}
	if p.DOB.IsZero() {
		return fmt.Errorf("%w: date of birth is required for patient registration", ErrIncomplete)
	}
	return nil
}

type DoctorRegistration struct {
	FirstName          string
	LastName           string
	Phone              string
	Gender             string
	ProfilePhotoBase64 string
	LicenseNumber      string
	Specialization     string
	Experience         *int
	Education          string
	Bio                string
	Languages          []string
	ClinicAddress      string
}

func (*DoctorRegistration) Role() identity.Role { return identity.RoleDoctor }
func (*DoctorRegistration) registration()       {}

func (d *DoctorRegistration) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: doctor details are required", ErrIncomplete)
	}
	if strings.TrimSpace(d.LicenseNumber) == "" {
		return fmt.Errorf("%w: license number is required for doctor registration", ErrIncomplete)
	}
	if strings.TrimSpace(d.Specialization) == "" {
		return fmt.Errorf("%w: specialization is required for doctor registration", ErrIncomplete)
	}
	return nil
}

// Patient is the stored patient profile, one per PATIENT identity
type Patient struct {
	ID                 uuid.UUID `json:"id"`
	IdentityID         uuid.UUID `json:"identity_id"`
	FirstName          string    `json:"first_name"`
	LastName           string    `json:"last_name"`
	DOB                time.Time `json:"dob"`
	Phone              string    `json:"phone"`
	Gender             string    `json:"gender"`
	Address            string    `json:"address,omitempty"`
	ProfilePhotoBase64 string    `json:"profile_photo_base64,omitempty"`
	InsuranceInfo      string    `json:"insurance_info,omitempty"`
}

// NewPatient builds the profile row for identityID from reg
func NewPatient(identityID uuid.UUID, reg *PatientRegistration) *Patient {
	return &Patient{
		ID:                 uuid.New(),
		IdentityID:         identityID,
		FirstName:          reg.FirstName,
		LastName:           reg.LastName,
		DOB:                reg.DOB,
		Phone:              reg.Phone,
		Gender:             reg.Gender,
		Address:            reg.Address,
		ProfilePhotoBase64: reg.ProfilePhotoBase64,
		InsuranceInfo:      reg.InsuranceInfo,
	}
}

// Doctor is the stored doctor profile. New doctors await admin approval.
type Doctor struct {
	ID                 uuid.UUID `json:"id"`
	IdentityID         uuid.UUID `json:"identity_id"`
	FirstName          string    `json:"first_name"`
	LastName           string    `json:"last_name"`
	Phone              string    `json:"phone"`
	Gender             string    `json:"gender"`
	ProfilePhotoBase64 string    `json:"profile_photo_base64,omitempty"`
	LicenseNumber      string    `json:"license_number"`
	Specialization     string    `json:"specialization"`
	Experience         *int      `json:"experience,omitempty"`
	Education          string    `json:"education,omitempty"`
	Bio                string    `json:"bio,omitempty"`
	Languages          []string  `json:"languages,omitempty"`
	ClinicAddress      string    `json:"clinic_address,omitempty"`
	Approved           bool      `json:"approved"`
}

func NewDoctor(identityID uuid.UUID, reg *DoctorRegistration) *Doctor {
	return &Doctor{
		ID:                 uuid.New(),
		IdentityID:         identityID,
		FirstName:          reg.FirstName,
		LastName:           reg.LastName,
		Phone:              reg.Phone,
		Gender:             reg.Gender,
		ProfilePhotoBase64: reg.ProfilePhotoBase64,
		LicenseNumber:      reg.LicenseNumber,
		Specialization:     reg.Specialization,
		Experience:         reg.Experience,
		Education:          reg.Education,
		Bio:                reg.Bio,
		Languages:          reg.Languages,
		ClinicAddress:      reg.ClinicAddress,
	}
}

// MedicalHistory holds the optional questionnaire a patient submits at sign-up
type MedicalHistory struct {
	ID            uuid.UUID      `json:"id"`
	PatientID     uuid.UUID      `json:"patient_id"`
	Questionnaire map[string]any `json:"questionnaire"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func NewMedicalHistory(patientID uuid.UUID, questionnaire map[string]any, now time.Time) *MedicalHistory {
	return &MedicalHistory{
		ID:            uuid.New(),
		PatientID:     patientID,
		Questionnaire: questionnaire,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
