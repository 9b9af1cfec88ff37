package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/healthapp/identity-service/internal/database"
)

var (
	ErrNotFound         = errors.New("profile not found")
	ErrDuplicateLicense = errors.New("license number already registered")
	ErrDuplicateProfile = errors.New("identity already has a profile")
)

type Repository interface {
	CreatePatient(ctx context.Context, patient *Patient) error
	CreateDoctor(ctx context.Context, doctor *Doctor) error
	CreateMedicalHistory(ctx context.Context, history *MedicalHistory) error
	// FirstName returns the first name on whichever profile identityID owns
	FirstName(ctx context.Context, identityID uuid.UUID) (string, error)
	// ApproveDoctor marks the doctor profile owned by identityID approved
	ApproveDoctor(ctx context.Context, identityID uuid.UUID) error
}

type PostgresRepository struct {
	db bun.IDB
}

func NewPostgresRepository(db bun.IDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreatePatient(ctx context.Context, patient *Patient) error {
	_, err := r.db.NewInsert().
		Model(&database.Patient{
			ID:                 patient.ID,
			IdentityID:         patient.IdentityID,
			FirstName:          patient.FirstName,
			LastName:           patient.LastName,
			DOB:                patient.DOB,
			Phone:              patient.Phone,
			Gender:             patient.Gender,
			Address:            patient.Address,
			ProfilePhotoBase64: patient.ProfilePhotoBase64,
			InsuranceInfo:      patient.InsuranceInfo,
		}).
		Exec(ctx)
	if err != nil {
		return mapInsertError("patient", err)
	}

	return nil
}

func (r *PostgresRepository) CreateDoctor(ctx context.Context, doctor *Doctor) error {
	_, err := r.db.NewInsert().
		Model(&database.Doctor{
			ID:                 doctor.ID,
			IdentityID:         doctor.IdentityID,
			FirstName:          doctor.FirstName,
			LastName:           doctor.LastName,
			Phone:              doctor.Phone,
			Gender:             doctor.Gender,
			ProfilePhotoBase64: doctor.ProfilePhotoBase64,
			LicenseNumber:      doctor.LicenseNumber,
			Specialization:     doctor.Specialization,
			Experience:         doctor.Experience,
			Education:          doctor.Education,
			Bio:                doctor.Bio,
			Languages:          doctor.Languages,
			ClinicAddress:      doctor.ClinicAddress,
			Approved:           doctor.Approved,
		}).
		Exec(ctx)
	if err != nil {
		return mapInsertError("doctor", err)
	}

	return nil
}

func (r *PostgresRepository) CreateMedicalHistory(ctx context.Context, history *MedicalHistory) error {
	_, err := r.db.NewInsert().
		Model(&database.MedicalHistory{
			ID:            history.ID,
			PatientID:     history.PatientID,
			Questionnaire: history.Questionnaire,
			CreatedAt:     history.CreatedAt,
			UpdatedAt:     history.UpdatedAt,
		}).
		Exec(ctx)
	if err != nil {
		return mapInsertError("medical history", err)
	}

	return nil
}

func (r *PostgresRepository) FirstName(ctx context.Context, identityID uuid.UUID) (string, error) {
	for _, model := range []any{(*database.Patient)(nil), (*database.Doctor)(nil)} {
		var name string
		err := r.db.NewSelect().
			Model(model).
			Column("first_name").
			Where("identity_id = ?", identityID).
			Limit(1).
			Scan(ctx, &name)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("failed to get first name: %w", err)
		}
	}

	return "", ErrNotFound
}

func (r *PostgresRepository) ApproveDoctor(ctx context.Context, identityID uuid.UUID) error {
	result, err := r.db.NewUpdate().
		Model((*database.Doctor)(nil)).
		Set("approved = TRUE").
		Where("identity_id = ?", identityID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to approve doctor: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to approve doctor: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func mapInsertError(kind string, err error) error {
	if constraint, ok := database.UniqueViolation(err); ok {
		switch constraint {
		case database.ConstraintDoctorLicense:
			return ErrDuplicateLicense
		case database.ConstraintPatientIdentity, database.ConstraintDoctorIdentity, database.ConstraintMedicalHistoryPatient:
			return ErrDuplicateProfile
		}
	}
	return fmt.Errorf("failed to create %s: %w", kind, err)
}
