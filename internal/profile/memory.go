package profile

import (
	"context"
	"maps"

	"github.com/google/uuid"
)

// MemoryRepository keeps profiles in maps. It does no locking of its own;
// storage.MemoryStore serializes access.
type MemoryRepository struct {
	patients  map[uuid.UUID]Patient
	doctors   map[uuid.UUID]Doctor
	licenses  map[string]uuid.UUID
	histories map[uuid.UUID]MedicalHistory
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:  make(map[uuid.UUID]Patient),
		doctors:   make(map[uuid.UUID]Doctor),
		licenses:  make(map[string]uuid.UUID),
		histories: make(map[uuid.UUID]MedicalHistory),
	}
}

func (r *MemoryRepository) CreatePatient(_ context.Context, patient *Patient) error {
	if r.hasProfile(patient.IdentityID) {
		return ErrDuplicateProfile
	}
	r.patients[patient.IdentityID] = *patient
	return nil
}

func (r *MemoryRepository) CreateDoctor(_ context.Context, doctor *Doctor) error {
	if r.hasProfile(doctor.IdentityID) {
		return ErrDuplicateProfile
	}
	if _, taken := r.licenses[doctor.LicenseNumber]; taken {
		return ErrDuplicateLicense
	}
	r.doctors[doctor.IdentityID] = *doctor
	r.licenses[doctor.LicenseNumber] = doctor.IdentityID
	return nil
}

func (r *MemoryRepository) CreateMedicalHistory(_ context.Context, history *MedicalHistory) error {
	if _, exists := r.histories[history.PatientID]; exists {
		return ErrDuplicateProfile
	}
	r.histories[history.PatientID] = *history
	return nil
}

func (r *MemoryRepository) FirstName(_ context.Context, identityID uuid.UUID) (string, error) {
	if p, ok := r.patients[identityID]; ok {
		return p.FirstName, nil
	}
	if d, ok := r.doctors[identityID]; ok {
		return d.FirstName, nil
	}
	return "", ErrNotFound
}

func (r *MemoryRepository) ApproveDoctor(_ context.Context, identityID uuid.UUID) error {
	d, ok := r.doctors[identityID]
	if !ok {
		return ErrNotFound
	}
	d.Approved = true
	r.doctors[identityID] = d
	return nil
}

// Doctor returns the stored doctor profile for identityID
func (r *MemoryRepository) Doctor(identityID uuid.UUID) (Doctor, bool) {
	d, ok := r.doctors[identityID]
	return d, ok
}

// HistoryCount returns the number of stored questionnaires
func (r *MemoryRepository) HistoryCount() int {
	return len(r.histories)
}

// Len returns the number of stored patient and doctor profiles
func (r *MemoryRepository) Len() int {
	return len(r.patients) + len(r.doctors)
}

// Snapshot copies the repository state. Stored values are never mutated in
// place, so a shallow copy of each map is enough.
func (r *MemoryRepository) Snapshot() *MemoryRepository {
	return &MemoryRepository{
		patients:  maps.Clone(r.patients),
		doctors:   maps.Clone(r.doctors),
		licenses:  maps.Clone(r.licenses),
		histories: maps.Clone(r.histories),
	}
}

// Restore replaces the repository state with s
func (r *MemoryRepository) Restore(s *MemoryRepository) {
	r.patients = s.patients
	r.doctors = s.doctors
	r.licenses = s.licenses
	r.histories = s.histories
}

func (r *MemoryRepository) hasProfile(identityID uuid.UUID) bool {
	_, p := r.patients[identityID]
	_, d := r.doctors[identityID]
	return p || d
}
