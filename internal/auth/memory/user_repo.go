// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

// Package memory provides an in-process auth.UserRepository for tests and
// local development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/wordapp/wordapp/internal/auth"
)

// UserRepository keeps users in maps guarded by a RWMutex. Every read and
// write copies the user so callers never share state with the store.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.User
	byEmail map[string]ulid.ULID
}

var _ auth.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[ulid.ULID]*auth.User),
		byEmail: make(map[string]ulid.ULID),
	}
}

// Create stores a new user.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	if user == nil {
		return oops.Code("USER_CREATE_FAILED").Errorf("user is required")
	}
	email := auth.NormalizeEmail(user.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[email]; ok {
		return oops.Code("USER_EMAIL_TAKEN").With("email", email).Wrap(auth.ErrEmailTaken)
	}
	if _, ok := r.byID[user.ID]; ok {
		return oops.Code("USER_CREATE_FAILED").With("id", user.ID.String()).Errorf("duplicate user id")
	}

	stored := user.Clone()
	stored.Email = email
	r.byID[stored.ID] = stored
	r.byEmail[email] = stored.ID
	return nil
}

// GetByID returns a copy of the user.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, notFound("id", id.String())
	}
	return user.Clone(), nil
}

// GetByEmail returns a copy of the user with the normalized email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, notFound("email", email)
	}
	return r.byID[id].Clone(), nil
}

// UpdateDigest sets or clears the digest for purpose.
func (r *UserRepository) UpdateDigest(_ context.Context, id ulid.ULID, purpose auth.Purpose, digest *string, at time.Time) error {
	if !purpose.Valid() {
		return oops.Code("USER_UPDATE_FAILED").With("purpose", int(purpose)).Errorf("unknown token purpose")
	}
	return r.update(id, func(u *auth.User) error {
		var d *string
		if digest != nil {
			v := *digest
			d = &v
		}
		u.SetDigest(purpose, d, at)
		return nil
	})
}

// Activate marks the user activated. An active user yields auth.ErrStale.
func (r *UserRepository) Activate(_ context.Context, id ulid.ULID, at time.Time) error {
	return r.update(id, func(u *auth.User) error {
		if u.Activated {
			return stale("activate user", id)
		}
		activatedAt := at
		u.Activated = true
		u.ActivatedAt = &activatedAt
		u.UpdatedAt = at
		return nil
	})
}

// UpdatePasswordDigest replaces the password digest.
func (r *UserRepository) UpdatePasswordDigest(_ context.Context, id ulid.ULID, digest string, at time.Time) error {
	return r.update(id, func(u *auth.User) error {
		u.PasswordDigest = digest
		u.UpdatedAt = at
		return nil
	})
}

// ResetPassword replaces the password digest and clears reset and remember
// digests when the reset digest still equals resetDigest.
func (r *UserRepository) ResetPassword(_ context.Context, id ulid.ULID, resetDigest, digest string, at time.Time) error {
	return r.update(id, func(u *auth.User) error {
		if u.ResetDigest == nil || *u.ResetDigest != resetDigest {
			return stale("reset password", id)
		}
		u.PasswordDigest = digest
		u.SetDigest(auth.PurposeReset, nil, at)
		u.SetDigest(auth.PurposeRemember, nil, at)
		return nil
	})
}

// Len returns the number of stored users.
func (r *UserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// update runs fn on the stored user under the write lock. fn checks and
// mutates in one critical section.
func (r *UserRepository) update(id ulid.ULID, fn func(*auth.User) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return notFound("id", id.String())
	}
	return fn(user)
}

func stale(operation string, id ulid.ULID) error {
	return oops.Code("USER_STALE").With("operation", operation).With("id", id.String()).Wrap(auth.ErrStale)
}

func notFound(key, value string) error {
	return oops.Code("USER_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
}
