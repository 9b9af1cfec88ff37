package identity

import (
	"context"
	"maps"
)

// MemoryRepository keeps identities in process memory. It does no locking
// of its own; storage.MemoryStore serializes access.
type MemoryRepository struct {
	byID    map[string]*Identity
	byEmail map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*Identity),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryRepository) Create(_ context.Context, identity *Identity) error {
	if _, ok := r.byEmail[identity.Email]; ok {
		return ErrDuplicateEmail
	}
	id := identity.ID.String()
	r.byID[id] = identity.clone()
	r.byEmail[identity.Email] = id
	return nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*Identity, error) {
	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return r.byID[id].clone(), nil
}

func (r *MemoryRepository) ExistsByEmail(_ context.Context, email string) (bool, error) {
	_, ok := r.byEmail[email]
	return ok, nil
}

func (r *MemoryRepository) GetByVerificationToken(_ context.Context, digest string) (*Identity, error) {
	return r.findByToken(PurposeVerification, digest)
}

func (r *MemoryRepository) GetByResetToken(_ context.Context, digest string) (*Identity, error) {
	return r.findByToken(PurposeReset, digest)
}

// Save replaces the mutable fields of an existing identity
func (r *MemoryRepository) Save(_ context.Context, identity *Identity) error {
	stored, ok := r.byID[identity.ID.String()]
	if !ok {
		return ErrNotFound
	}
	updated := identity.clone()
	updated.Email = stored.Email
	updated.Role = stored.Role
	updated.CreatedAt = stored.CreatedAt
	r.byID[identity.ID.String()] = updated
	return nil
}

// Snapshot returns an independent copy used for transaction rollback
func (r *MemoryRepository) Snapshot() *MemoryRepository {
	c := &MemoryRepository{
		byID:    make(map[string]*Identity, len(r.byID)),
		byEmail: maps.Clone(r.byEmail),
	}
	for k, v := range r.byID {
		c.byID[k] = v.clone()
	}
	return c
}

// Restore replaces the repository contents with a snapshot
func (r *MemoryRepository) Restore(s *MemoryRepository) {
	r.byID = s.byID
	r.byEmail = s.byEmail
}

// Len returns the number of stored identities
func (r *MemoryRepository) Len() int {
	return len(r.byID)
}

func (r *MemoryRepository) findByToken(purpose Purpose, digest string) (*Identity, error) {
	for _, identity := range r.byID {
		if stored, _ := identity.Token(purpose); stored != nil && *stored == digest {
			return identity.clone(), nil
		}
	}
	return nil, ErrNotFound
}
