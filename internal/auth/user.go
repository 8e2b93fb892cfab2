// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// User is a registered account.
type User struct {
	ID             ulid.ULID
	Name           string
	Email          string
	PasswordDigest string

	Activated   bool
	ActivatedAt *time.Time

	// Digests of live tokens. nil means no live token for that purpose.
	ActivationDigest *string
	RememberDigest   *string
	ResetDigest      *string
	ResetSentAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUser creates an unactivated user with a fresh ID. The email is normalized.
func NewUser(name, email, passwordDigest string, now time.Time) *User {
	return &User{
		ID:             ulid.Make(),
		Name:           name,
		Email:          NormalizeEmail(email),
		PasswordDigest: passwordDigest,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NormalizeEmail returns the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.ActivatedAt = cloneTime(u.ActivatedAt)
	c.ActivationDigest = cloneString(u.ActivationDigest)
	c.RememberDigest = cloneString(u.RememberDigest)
	c.ResetDigest = cloneString(u.ResetDigest)
	c.ResetSentAt = cloneTime(u.ResetSentAt)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// UserRepository persists users. Implementations must be safe for concurrent use.
// Lookups by email expect an already normalized address and return ErrNotFound
// when no row matches. Create returns ErrEmailTaken on a duplicate email.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdateDigest sets or clears (nil) the digest for purpose. For
	// PurposeReset the sent-at time is set to at, or cleared with the digest.
	UpdateDigest(ctx context.Context, id ulid.ULID, purpose Purpose, digest *string, at time.Time) error

	// Activate sets activated and activated_at in a single write. It returns
	// ErrStale when the user is already activated, so only one caller wins.
	Activate(ctx context.Context, id ulid.ULID, at time.Time) error

	// UpdatePasswordDigest replaces the password digest only.
	UpdatePasswordDigest(ctx context.Context, id ulid.ULID, digest string, at time.Time) error

	// ResetPassword replaces the password digest and clears the reset and
	// remember digests in a single write, provided the stored reset digest
	// still equals resetDigest. Otherwise it returns ErrStale.
	ResetPassword(ctx context.Context, id ulid.ULID, resetDigest, digest string, at time.Time) error
}
