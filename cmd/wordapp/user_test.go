// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordapp/wordapp/internal/auth"
	"github.com/wordapp/wordapp/internal/auth/memory"
)

func TestUserActivate(t *testing.T) {
	isolate(t)
	repo := memory.NewUserRepository()
	user := auth.NewUser("Pending", "pending@example.com", "digest", time.Now())
	require.NoError(t, repo.Create(context.Background(), user))

	out, err := execute(t, memoryDeps(repo), "user", "activate", "PENDING@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Activated pending@example.com")

	got, err := repo.GetByEmail(context.Background(), "pending@example.com")
	require.NoError(t, err)
	assert.True(t, got.Activated)
	assert.NotNil(t, got.ActivatedAt)
}

func TestUserActivate_Unknown(t *testing.T) {
	isolate(t)
	_, err := execute(t, memoryDeps(memory.NewUserRepository()), "user", "activate", "ghost@example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUserActivate_RequiresEmail(t *testing.T) {
	isolate(t)
	_, err := execute(t, nil, "user", "activate")
	assert.Error(t, err)
}
