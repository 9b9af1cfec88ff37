// Package storage groups the repositories behind a transaction boundary.
package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/uptrace/bun"

	"github.com/healthapp/identity-service/internal/identity"
	"github.com/healthapp/identity-service/internal/profile"
)

// Repositories is the set of repositories bound to one unit of work
type Repositories struct {
	Identities identity.Repository
	Profiles   profile.Repository
}

// Store hands out repositories. Run executes fn without a transaction;
// RunInTx commits when fn returns nil and rolls back otherwise.
type Store interface {
	Run(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
	RunInTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
}

type PostgresStore struct {
	db *bun.DB
}

func NewPostgresStore(db *bun.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Run(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	return fn(ctx, postgresRepositories(s.db))
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, postgresRepositories(tx))
	})
}

func postgresRepositories(db bun.IDB) Repositories {
	return Repositories{
		Identities: identity.NewPostgresRepository(db),
		Profiles:   profile.NewPostgresRepository(db),
	}
}

// MemoryStore keeps everything in process memory. A single mutex
// serializes all units of work, so transactions never interleave.
type MemoryStore struct {
	mu         sync.Mutex
	identities *identity.MemoryRepository
	profiles   *profile.MemoryRepository
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: identity.NewMemoryRepository(),
		profiles:   profile.NewMemoryRepository(),
	}
}

func (s *MemoryStore) Run(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(ctx, s.repositories())
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identities := s.identities.Snapshot()
	profiles := s.profiles.Snapshot()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("transaction panicked: %v", p)
		}
		if err != nil {
			s.identities.Restore(identities)
			s.profiles.Restore(profiles)
		}
	}()

	return fn(ctx, s.repositories())
}

// Identities exposes the identity repository for inspection in tests
func (s *MemoryStore) Identities() *identity.MemoryRepository {
	return s.identities
}

// Profiles exposes the profile repository for inspection in tests
func (s *MemoryStore) Profiles() *profile.MemoryRepository {
	return s.profiles
}

func (s *MemoryStore) repositories() Repositories {
	return Repositories{Identities: s.identities, Profiles: s.profiles}
}
