package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sitegauge/sitegauge/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailExists  = errors.New("email already exists")
)

// CreateUser inserts a new user into the database.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (
			id, email, password_hash, plan, audit_count, period_start,
			api_key_hash, api_key_prefix, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Plan,
		user.AuditCount,
		user.PeriodStart,
		user.APIKeyHash,
		user.APIKeyPrefix,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := userSelect + ` WHERE id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

// GetUserByEmail retrieves a user by their email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := userSelect + ` WHERE email = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// GetUsersByAPIKeyPrefix retrieves all users whose key carries the given
// prefix. Authentication verifies the full key hash against each
// candidate; prefixes are not unique.
func (r *Repository) GetUsersByAPIKeyPrefix(ctx context.Context, prefix string) ([]*model.User, error) {
	query := userSelect + ` WHERE api_key_prefix = $1`

	rows, err := r.pool.Query(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to get users by key prefix: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// UpdateAPIKey replaces a user's key hash and prefix after rotation.
// The old key stops verifying immediately.
func (r *Repository) UpdateAPIKey(ctx context.Context, userID, keyHash, keyPrefix string) error {
	query := `
		UPDATE users
		SET api_key_hash = $2, api_key_prefix = $3, updated_at = $4
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, userID, keyHash, keyPrefix, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update API key: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// IncrementAuditCount adds exactly one to the user's monthly counter.
// The increment is a single statement so concurrent completions cannot
// lose counts.
func (r *Repository) IncrementAuditCount(ctx context.Context, userID string) error {
	query := `
		UPDATE users
		SET audit_count = audit_count + 1, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to increment audit count: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// ResetAuditCountsBefore zeroes the counters of users whose billing
// period started before the boundary and re-anchors their period at it.
// Called by the external billing tick; safe to re-run.
func (r *Repository) ResetAuditCountsBefore(ctx context.Context, boundary time.Time) (int64, error) {
	query := `
		UPDATE users
		SET audit_count = 0, period_start = $1, updated_at = NOW()
		WHERE period_start < $1
	`

	result, err := r.pool.Exec(ctx, query, boundary)
	if err != nil {
		return 0, fmt.Errorf("failed to reset audit counts: %w", err)
	}

	return result.RowsAffected(), nil
}

const userSelect = `
	SELECT id, email, password_hash, plan, audit_count, period_start,
		   api_key_hash, api_key_prefix, created_at, updated_at
	FROM users`

// scanUser scans a single row into a User model.
func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Plan,
		&user.AuditCount,
		&user.PeriodStart,
		&user.APIKeyHash,
		&user.APIKeyPrefix,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
