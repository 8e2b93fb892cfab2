// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package auth

import (
	"errors"
	"sort"
	"strings"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned by repositories when the normalized email is already registered.
var ErrEmailTaken = errors.New("email has already been taken")

// ErrStale is returned by conditional repository writes when the row no
// longer matches the expected state, for example a second activation of the
// same account.
var ErrStale = errors.New("user changed concurrently")

// Authentication failures. Callers match them with errors.Is; the returned
// errors carry an oops code as well.
var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid email/password combination")

	// ErrNotActivated is returned for valid credentials on an inactive account.
	ErrNotActivated = errors.New("account not activated, check your email for the activation link")

	// ErrInvalidActivationLink covers an unknown email, an already activated
	// account and a token mismatch.
	ErrInvalidActivationLink = errors.New("invalid activation link")

	// ErrInvalidResetLink covers an unknown or inactive account and a token mismatch.
	ErrInvalidResetLink = errors.New("invalid password reset link")

	// ErrResetExpired is returned when a reset token is used after ResetTokenExpiry.
	ErrResetExpired = errors.New("password reset has expired")
)

// ValidationError reports invalid registration or reset input field by field.
type ValidationError struct {
	Fields map[string]string
}

// Error joins the field messages in a stable order.
func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field returns the message for a single field, or "" if the field is valid.
func (e *ValidationError) Field(name string) string {
	if e == nil {
		return ""
	}
	return e.Fields[name]
}
