// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

// Package postgres implements auth.UserRepository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/wordapp/wordapp/internal/auth"
)

// Querier is the subset of *pgxpool.Pool the repository uses. pgxmock pools
// satisfy it too.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool Querier
}

var _ auth.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool Querier) *UserRepository {
	return &UserRepository{pool: pool}
}

const selectUser = `
	SELECT id, name, email, password_digest, activated, activated_at,
	       activation_digest, remember_digest, reset_digest, reset_sent_at,
	       created_at, updated_at
	FROM users`

// Ping checks that the database answers. The serve command uses it as a
// readiness check.
func (r *UserRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return oops.Code("DB_PING_FAILED").With("operation", "ping").Wrap(err)
	}
	return nil
}

// Create stores a new user. A duplicate email yields auth.ErrEmailTaken.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	if user == nil {
		return oops.Code("USER_CREATE_FAILED").Errorf("user is required")
	}
	email := auth.NormalizeEmail(user.Email)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, name, email, password_digest, activated, activated_at,
			activation_digest, remember_digest, reset_digest, reset_sent_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		user.ID.String(),
		user.Name,
		email,
		user.PasswordDigest,
		user.Activated,
		user.ActivatedAt,
		user.ActivationDigest,
		user.RememberDigest,
		user.ResetDigest,
		user.ResetSentAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("USER_EMAIL_TAKEN").With("email", email).Wrap(auth.ErrEmailTaken)
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, selectUser+` WHERE id = $1`, id.String())
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	email = auth.NormalizeEmail(email)
	row := r.pool.QueryRow(ctx, selectUser+` WHERE LOWER(email) = $1`, email)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by email").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

// UpdateDigest sets or clears the digest column for purpose.
func (r *UserRepository) UpdateDigest(ctx context.Context, id ulid.ULID, purpose auth.Purpose, digest *string, at time.Time) error {
	var (
		sql  string
		args []any
	)
	switch purpose {
	case auth.PurposeRemember:
		sql = `UPDATE users SET remember_digest = $2, updated_at = $3 WHERE id = $1`
		args = []any{id.String(), digest, at}
	case auth.PurposeActivation:
		sql = `UPDATE users SET activation_digest = $2, updated_at = $3 WHERE id = $1`
		args = []any{id.String(), digest, at}
	case auth.PurposeReset:
		var sentAt *time.Time
		if digest != nil {
			sentAt = &at
		}
		sql = `UPDATE users SET reset_digest = $2, reset_sent_at = $3, updated_at = $4 WHERE id = $1`
		args = []any{id.String(), digest, sentAt, at}
	default:
		return oops.Code("USER_UPDATE_FAILED").With("purpose", int(purpose)).Errorf("unknown token purpose")
	}
	return r.exec(ctx, id, "update "+purpose.String()+" digest", sql, args...)
}

// Activate marks the user activated. Only the first of concurrent callers
// updates the row; the others get auth.ErrStale.
func (r *UserRepository) Activate(ctx context.Context, id ulid.ULID, at time.Time) error {
	return r.execConditional(ctx, id, "activate user",
		`UPDATE users SET activated = TRUE, activated_at = $2, updated_at = $2 WHERE id = $1 AND activated = FALSE`,
		id.String(), at)
}

// UpdatePasswordDigest replaces the password digest.
func (r *UserRepository) UpdatePasswordDigest(ctx context.Context, id ulid.ULID, digest string, at time.Time) error {
	return r.exec(ctx, id, "update password digest",
		`UPDATE users SET password_digest = $2, updated_at = $3 WHERE id = $1`,
		id.String(), digest, at)
}

// ResetPassword replaces the password digest and clears reset and remember
// digests. The write only applies while reset_digest still equals
// resetDigest, so a reset token is consumed once.
func (r *UserRepository) ResetPassword(ctx context.Context, id ulid.ULID, resetDigest, digest string, at time.Time) error {
	return r.execConditional(ctx, id, "reset password", `
		UPDATE users
		SET password_digest = $2,
		    reset_digest = NULL,
		    reset_sent_at = NULL,
		    remember_digest = NULL,
		    updated_at = $3
		WHERE id = $1 AND reset_digest = $4
	`, id.String(), digest, at, resetDigest)
}

func (r *UserRepository) exec(ctx context.Context, id ulid.ULID, operation, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// execConditional is exec for guarded updates. When no row changes it tells
// a missing user (auth.ErrNotFound) from a failed guard (auth.ErrStale).
func (r *UserRepository) execConditional(ctx context.Context, id ulid.ULID, operation, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id.String()).Scan(&exists); err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("id", id.String()).
			Wrap(err)
	}
	if !exists {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return oops.Code("USER_STALE").With("operation", operation).With("id", id.String()).Wrap(auth.ErrStale)
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		user  auth.User
		idStr string
	)
	err := row.Scan(
		&idStr,
		&user.Name,
		&user.Email,
		&user.PasswordDigest,
		&user.Activated,
		&user.ActivatedAt,
		&user.ActivationDigest,
		&user.RememberDigest,
		&user.ResetDigest,
		&user.ResetSentAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("operation", "parse user id").With("id", idStr).Wrap(err)
	}
	user.ID = id
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
