package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/steeldesk/internal/database"
	"github.com/BradenHooton/steeldesk/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, password_hash, name, role, is_active, failed_attempt_count, lock_until, created_at, updated_at`

// UserRepository reads accounts and their lockout state from PostgreSQL
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

// rowScanner interface for scanning user rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUserRow populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var lockUntil *time.Time

	err := scanner.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name,
		&user.Role, &user.IsActive, &user.FailedAttemptCount, &lockUntil,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if user.FailedAttemptCount < 0 {
		return nil, fmt.Errorf("user %s: %w: negative attempt count", user.ID, models.ErrMalformedState)
	}
	user.LockUntil = lockUntil

	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Role == "" {
		user.Role = "staff"
	}

	query := `
		INSERT INTO users (id, email, password_hash, name, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Name,
		user.Role, user.IsActive, user.CreatedAt, user.UpdatedAt,
	))
}

// LoadLockState returns the persisted lockout fields for an account
func (r *UserRepository) LoadLockState(ctx context.Context, id string) (models.LockState, error) {
	query := `SELECT failed_attempt_count, lock_until FROM users WHERE id = $1`

	var state models.LockState
	if err := r.pool.QueryRow(ctx, query, id).Scan(&state.FailedAttemptCount, &state.LockUntil); err != nil {
		return models.LockState{}, database.MapPostgresError(err)
	}
	if state.FailedAttemptCount < 0 {
		return models.LockState{}, fmt.Errorf("user %s: %w: negative attempt count", id, models.ErrMalformedState)
	}

	return state, nil
}

// SaveLockState writes next only if the row still holds prev.
// Returns models.ErrLockStateConflict when another writer changed the state first.
func (r *UserRepository) SaveLockState(ctx context.Context, id string, prev, next models.LockState) error {
	query := `
		UPDATE users
		SET failed_attempt_count = $1, lock_until = $2, updated_at = NOW()
		WHERE id = $3
		  AND failed_attempt_count = $4
		  AND lock_until IS NOT DISTINCT FROM $5
	`

	result, err := r.pool.Exec(ctx, query,
		next.FailedAttemptCount, storedTime(next.LockUntil), id,
		prev.FailedAttemptCount, storedTime(prev.LockUntil),
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return r.classifyMissedUpdate(ctx, id)
	}

	return nil
}

// ResetLockState clears the counter and lock unconditionally
func (r *UserRepository) ResetLockState(ctx context.Context, id string) error {
	query := `UPDATE users SET failed_attempt_count = 0, lock_until = NULL, updated_at = NOW() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// classifyMissedUpdate tells a lost race apart from a deleted account
func (r *UserRepository) classifyMissedUpdate(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return database.MapPostgresError(err)
	}
	if !exists {
		return models.ErrNotFound
	}
	return models.ErrLockStateConflict
}

// storedTime drops sub-microsecond precision so the value read back compares equal
func storedTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	truncated := t.UTC().Truncate(time.Microsecond)
	return &truncated
}
