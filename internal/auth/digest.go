// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package auth

import (
	"context"
	"time"

	"github.com/samber/oops"
)

// Purpose names the token a digest belongs to.
type Purpose int

// Token purposes. Each maps to exactly one digest column.
const (
	PurposeRemember Purpose = iota + 1
	PurposeActivation
	PurposeReset
)

// String returns the column prefix of the purpose.
func (p Purpose) String() string {
	switch p {
	case PurposeRemember:
		return "remember"
	case PurposeActivation:
		return "activation"
	case PurposeReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p >= PurposeRemember && p <= PurposeReset
}

// Digest returns the stored digest for purpose, or nil.
func (u *User) Digest(p Purpose) *string {
	switch p {
	case PurposeRemember:
		return u.RememberDigest
	case PurposeActivation:
		return u.ActivationDigest
	case PurposeReset:
		return u.ResetDigest
	default:
		return nil
	}
}

// SetDigest replaces the digest for purpose. Clearing the reset digest also
// clears ResetSentAt.
func (u *User) SetDigest(p Purpose, digest *string, at time.Time) {
	switch p {
	case PurposeRemember:
		u.RememberDigest = digest
	case PurposeActivation:
		u.ActivationDigest = digest
	case PurposeReset:
		u.ResetDigest = digest
		if digest == nil {
			u.ResetSentAt = nil
		} else {
			sent := at
			u.ResetSentAt = &sent
		}
	}
	u.UpdatedAt = at
}

// DigestStore hashes tokens into a user's digest fields and verifies them.
type DigestStore struct {
	users  UserRepository
	hasher PasswordHasher
	now    func() time.Time
}

// NewDigestStore creates a DigestStore.
func NewDigestStore(users UserRepository, hasher PasswordHasher) (*DigestStore, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	return &DigestStore{users: users, hasher: hasher, now: time.Now}, nil
}

// StoreDigest hashes token, persists the digest for purpose and mirrors it onto user.
func (d *DigestStore) StoreDigest(ctx context.Context, user *User, purpose Purpose, token string) error {
	if user == nil {
		return oops.Code("AUTH_DIGEST_FAILED").Errorf("user is required")
	}
	if !purpose.Valid() {
		return oops.Code("AUTH_DIGEST_FAILED").With("purpose", int(purpose)).Errorf("unknown token purpose")
	}

	digest, err := d.hasher.Hash(token)
	if err != nil {
		return oops.Code("AUTH_DIGEST_FAILED").
			With("operation", "hash token").
			With("purpose", purpose.String()).
			Wrap(err)
	}

	now := d.now()
	if err := d.users.UpdateDigest(ctx, user.ID, purpose, &digest, now); err != nil {
		return oops.Code("AUTH_DIGEST_FAILED").
			With("operation", "persist digest").
			With("purpose", purpose.String()).
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	user.SetDigest(purpose, &digest, now)
	return nil
}

// ClearDigest nulls the digest for purpose. It is a no-op when already null.
func (d *DigestStore) ClearDigest(ctx context.Context, user *User, purpose Purpose) error {
	if user == nil || user.Digest(purpose) == nil {
		return nil
	}

	now := d.now()
	if err := d.users.UpdateDigest(ctx, user.ID, purpose, nil, now); err != nil {
		return oops.Code("AUTH_DIGEST_FAILED").
			With("operation", "clear digest").
			With("purpose", purpose.String()).
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	user.SetDigest(purpose, nil, now)
	return nil
}

// Verify reports whether token matches the user's digest for purpose.
// A nil user, an absent digest or an empty token never match.
func (d *DigestStore) Verify(user *User, purpose Purpose, token string) bool {
	if user == nil || token == "" {
		return false
	}
	digest := user.Digest(purpose)
	if digest == nil || *digest == "" {
		return false
	}
	return d.hasher.Verify(*digest, token)
}
