package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/healthapp/identity-service/internal/database"
)

var (
	ErrNotFound       = errors.New("identity not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// Repository persists identities. Implementations must enforce email
// uniqueness themselves; callers treat ErrDuplicateEmail as authoritative.
type Repository interface {
	Create(ctx context.Context, identity *Identity) error
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// GetByVerificationToken and GetByResetToken look up by token digest.
	// Inside a transaction the returned row stays locked until commit.
	GetByVerificationToken(ctx context.Context, digest string) (*Identity, error)
	GetByResetToken(ctx context.Context, digest string) (*Identity, error)
	Save(ctx context.Context, identity *Identity) error
}

// PostgresRepository is the Bun-backed Repository. db may be a *bun.DB or a bun.Tx.
type PostgresRepository struct {
	db bun.IDB
}

func NewPostgresRepository(db bun.IDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new identity
func (r *PostgresRepository) Create(ctx context.Context, identity *Identity) error {
	_, err := r.db.NewInsert().
		Model(toDB(identity)).
		Exec(ctx)
	if err != nil {
		if constraint, ok := database.UniqueViolation(err); ok && constraint == database.ConstraintIdentityEmail {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create identity: %w", err)
	}

	return nil
}

// GetByEmail retrieves an identity by its exact email
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*Identity, error) {
	return r.getOne(ctx, "email", email, false)
}

// ExistsByEmail reports whether an identity with email exists
func (r *PostgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*database.Identity)(nil)).
		Where("email = ?", email).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check identity existence: %w", err)
	}

	return exists, nil
}

// GetByVerificationToken retrieves the identity holding the verification token digest
func (r *PostgresRepository) GetByVerificationToken(ctx context.Context, digest string) (*Identity, error) {
	return r.getOne(ctx, "verification_token_hash", digest, true)
}

// GetByResetToken retrieves the identity holding the reset token digest
func (r *PostgresRepository) GetByResetToken(ctx context.Context, digest string) (*Identity, error) {
	return r.getOne(ctx, "reset_token_hash", digest, true)
}

// Save writes the mutable columns of an existing identity
func (r *PostgresRepository) Save(ctx context.Context, identity *Identity) error {
	result, err := r.db.NewUpdate().
		Model(toDB(identity)).
		ExcludeColumn("id", "email", "role", "created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, column, value string, forUpdate bool) (*Identity, error) {
	dbIdentity := new(database.Identity)
	q := r.db.NewSelect().
		Model(dbIdentity).
		Where("? = ?", bun.Ident(column), value)
	if forUpdate {
		q = q.For("UPDATE")
	}

	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get identity by %s: %w", column, err)
	}

	return fromDB(dbIdentity), nil
}

func toDB(i *Identity) *database.Identity {
	return &database.Identity{
		ID:                    i.ID,
		Email:                 i.Email,
		PasswordHash:          i.PasswordHash,
		Role:                  string(i.Role),
		Verified:              i.Verified,
		VerificationTokenHash: i.VerificationTokenHash,
		VerificationExpiresAt: i.VerificationExpiresAt,
		ResetTokenHash:        i.ResetTokenHash,
		ResetExpiresAt:        i.ResetExpiresAt,
		CreatedAt:             i.CreatedAt,
		UpdatedAt:             i.UpdatedAt,
	}
}

func fromDB(d *database.Identity) *Identity {
	return &Identity{
		ID:                    d.ID,
		Email:                 d.Email,
		PasswordHash:          d.PasswordHash,
		Role:                  Role(d.Role),
		Verified:              d.Verified,
		VerificationTokenHash: d.VerificationTokenHash,
		VerificationExpiresAt: d.VerificationExpiresAt,
		ResetTokenHash:        d.ResetTokenHash,
		ResetExpiresAt:        d.ResetExpiresAt,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
}
