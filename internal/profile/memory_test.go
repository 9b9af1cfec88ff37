package profile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	patientID := uuid.New()
	patient := NewPatient(patientID, &PatientRegistration{FirstName: "Alice", DOB: time.Now()})
	require.NoError(t, repo.CreatePatient(ctx, patient))
	require.NoError(t, repo.CreateMedicalHistory(ctx, NewMedicalHistory(patient.ID, map[string]any{"allergies": "none"}, time.Now())))

	doctorID := uuid.New()
	require.NoError(t, repo.CreateDoctor(ctx, NewDoctor(doctorID, &DoctorRegistration{FirstName: "Greg", LicenseNumber: "LIC-1", Specialization: "ENT"})))

	t.Run("first name from either profile", func(t *testing.T) {
		name, err := repo.FirstName(ctx, patientID)
		require.NoError(t, err)
		assert.Equal(t, "Alice", name)

		name, err = repo.FirstName(ctx, doctorID)
		require.NoError(t, err)
		assert.Equal(t, "Greg", name)

		_, err = repo.FirstName(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("license numbers are unique", func(t *testing.T) {
		err := repo.CreateDoctor(ctx, NewDoctor(uuid.New(), &DoctorRegistration{LicenseNumber: "LIC-1", Specialization: "ENT"}))
		assert.ErrorIs(t, err, ErrDuplicateLicense)
	})

	t.Run("one profile per identity", func(t *testing.T) {
		err := repo.CreateDoctor(ctx, NewDoctor(patientID, &DoctorRegistration{LicenseNumber: "LIC-2", Specialization: "ENT"}))
		assert.ErrorIs(t, err, ErrDuplicateProfile)
	})

	t.Run("approve doctor", func(t *testing.T) {
		snap := repo.Snapshot()
		require.NoError(t, repo.ApproveDoctor(ctx, doctorID))

		d, ok := repo.Doctor(doctorID)
		require.True(t, ok)
		assert.True(t, d.Approved)

		assert.ErrorIs(t, repo.ApproveDoctor(ctx, patientID), ErrNotFound)

		repo.Restore(snap)
		d, _ = repo.Doctor(doctorID)
		assert.False(t, d.Approved)
	})

	t.Run("snapshot and restore", func(t *testing.T) {
		snap := repo.Snapshot()
		require.NoError(t, repo.CreatePatient(ctx, NewPatient(uuid.New(), &PatientRegistration{DOB: time.Now()})))
		assert.Equal(t, 3, repo.Len())

		repo.Restore(snap)
		assert.Equal(t, 2, repo.Len())
		assert.Equal(t, 1, repo.HistoryCount())
	})
}
