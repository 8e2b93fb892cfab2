// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package errutil

import (
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustOops(t *testing.T, err error) oops.OopsError {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected a coded error, got %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode asserts the error code of err. For a wrapped chain that is
// the innermost code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	assert.Equal(t, code, mustOops(t, err).Code())
}

// AssertCodedSentinel asserts that err both matches target with errors.Is
// and carries code. Repositories wrap sentinels such as auth.ErrNotFound
// this way, and callers rely on both.
func AssertCodedSentinel(t *testing.T, err, target error, code string) {
	t.Helper()
	assert.True(t, errors.Is(err, target), "expected %v in chain of %v", target, err)
	AssertErrorCode(t, err, code)
}

// AssertErrorContext asserts one key of the error's attached context.
// Values compare with assert.EqualValues, so an int literal matches an int64.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	ctx := mustOops(t, err).Context()
	got, ok := ctx[key]
	if assert.True(t, ok, "error context has no %q (have %v)", key, ctx) {
		assert.EqualValues(t, value, got)
	}
}
