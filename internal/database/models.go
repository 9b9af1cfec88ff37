package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Constraint names referenced by repositories when mapping unique violations
const (
	ConstraintIdentityEmail         = "identities_email_key"
	ConstraintDoctorLicense         = "doctors_license_number_key"
	ConstraintPatientIdentity       = "patients_identity_id_key"
	ConstraintDoctorIdentity        = "doctors_identity_id_key"
	ConstraintMedicalHistoryPatient = "medical_history_patient_id_key"
)

// Identity is the authentication record. Token columns hold SHA-256 digests.
type Identity struct {
	bun.BaseModel `bun:"table:identities,alias:i"`

	ID                    uuid.UUID  `bun:"id,pk,type:uuid"`
	Email                 string     `bun:"email,notnull"`
	PasswordHash          string     `bun:"password_hash,notnull"`
	Role                  string     `bun:"role,notnull"`
	Verified              bool       `bun:"verified,notnull"`
	VerificationTokenHash *string    `bun:"verification_token_hash"`
	VerificationExpiresAt *time.Time `bun:"verification_expires_at"`
	ResetTokenHash        *string    `bun:"reset_token_hash"`
	ResetExpiresAt        *time.Time `bun:"reset_expires_at"`
	CreatedAt             time.Time  `bun:"created_at,notnull"`
	UpdatedAt             time.Time  `bun:"updated_at,notnull"`
}

type Patient struct {
	bun.BaseModel `bun:"table:patients,alias:p"`

	ID                 uuid.UUID `bun:"id,pk,type:uuid"`
	IdentityID         uuid.UUID `bun:"identity_id,type:uuid,notnull"`
	FirstName          string    `bun:"first_name,notnull"`
	LastName           string    `bun:"last_name,notnull"`
	DOB                time.Time `bun:"dob,type:date,notnull"`
	Phone              string    `bun:"phone,notnull"`
	Gender             string    `bun:"gender,notnull"`
	Address            string    `bun:"address"`
	ProfilePhotoBase64 string    `bun:"profile_photo_base64"`
	InsuranceInfo      string    `bun:"insurance_info"`
}

type Doctor struct {
	bun.BaseModel `bun:"table:doctors,alias:d"`

	ID                 uuid.UUID `bun:"id,pk,type:uuid"`
	IdentityID         uuid.UUID `bun:"identity_id,type:uuid,notnull"`
	FirstName          string    `bun:"first_name,notnull"`
	LastName           string    `bun:"last_name,notnull"`
	Phone              string    `bun:"phone,notnull"`
	Gender             string    `bun:"gender,notnull"`
	ProfilePhotoBase64 string    `bun:"profile_photo_base64"`
	LicenseNumber      string    `bun:"license_number,notnull"`
	Specialization     string    `bun:"specialization,notnull"`
	Experience         *int      `bun:"experience"`
	Education          string    `bun:"education"`
	Bio                string    `bun:"bio"`
	Languages          []string  `bun:"languages,type:jsonb"`
	ClinicAddress      string    `bun:"clinic_address"`
	Approved           bool      `bun:"approved,notnull"`
}

type MedicalHistory struct {
	bun.BaseModel `bun:"table:medical_history,alias:mh"`

	ID            uuid.UUID      `bun:"id,pk,type:uuid"`
	PatientID     uuid.UUID      `bun:"patient_id,type:uuid,notnull"`
	Questionnaire map[string]any `bun:"questionnaire_json,type:jsonb"`
	CreatedAt     time.Time      `bun:"created_at,notnull"`
	UpdatedAt     time.Time      `bun:"updated_at,notnull"`
}
