package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthapp/identity-service/internal/database"
	"github.com/healthapp/identity-service/internal/identity"
	"github.com/healthapp/identity-service/internal/profile"
)

func TestMemoryStore_RunInTxCommits(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.RunInTx(ctx, func(ctx context.Context, r Repositories) error {
		return r.Identities.Create(ctx, identity.New("alice@x.com", "h", identity.RolePatient, time.Now()))
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Identities().Len())
}

func TestMemoryStore_RunInTxRollsBackEveryRepository(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.RunInTx(ctx, func(ctx context.Context, r Repositories) error {
		i := identity.New("bob@x.com", "h", identity.RoleDoctor, time.Now())
		if err := r.Identities.Create(ctx, i); err != nil {
			return err
		}
		if err := r.Profiles.CreateDoctor(ctx, profile.NewDoctor(i.ID, &profile.DoctorRegistration{LicenseNumber: "L", Specialization: "S"})); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Identities().Len())
	assert.Equal(t, 0, store.Profiles().Len())
}

func TestMemoryStore_RunInTxRecoversPanic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.RunInTx(ctx, func(ctx context.Context, r Repositories) error {
		_ = r.Identities.Create(ctx, identity.New("c@x.com", "h", identity.RolePatient, time.Now()))
		panic("bad")
	})
	require.Error(t, err)
	assert.Equal(t, 0, store.Identities().Len())
}

func TestPostgresStore_RunInTx(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	store := NewPostgresStore(database.NewBunDB(sqlDB))

	t.Run("rollback on error", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .* FROM "identities" AS "i" WHERE \("verification_token_hash" = 'd'\) FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		err := store.RunInTx(context.Background(), func(ctx context.Context, r Repositories) error {
			_, err := r.Identities.GetByVerificationToken(ctx, "d")
			return err
		})
		assert.ErrorIs(t, err, identity.ErrNotFound)
	})

	t.Run("commit on success", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectCommit()

		err := store.RunInTx(context.Background(), func(ctx context.Context, r Repositories) error {
			_, err := r.Identities.ExistsByEmail(ctx, "x@x.com")
			return err
		})
		assert.NoError(t, err)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
