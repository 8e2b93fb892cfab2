// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/wordapp/wordapp/internal/auth"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockUserRepository is a mock of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

var _ auth.UserRepository = (*MockUserRepository)(nil)

// NewMockUserRepository creates a mock that asserts its expectations on cleanup.
func NewMockUserRepository(t testingT) *MockUserRepository {
	m := &MockUserRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUserRepository) UpdateDigest(ctx context.Context, id ulid.ULID, purpose auth.Purpose, digest *string, at time.Time) error {
	args := m.Called(ctx, id, purpose, digest, at)
	return args.Error(0)
}

func (m *MockUserRepository) Activate(ctx context.Context, id ulid.ULID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockUserRepository) UpdatePasswordDigest(ctx context.Context, id ulid.ULID, digest string, at time.Time) error {
	args := m.Called(ctx, id, digest, at)
	return args.Error(0)
}

func (m *MockUserRepository) ResetPassword(ctx context.Context, id ulid.ULID, resetDigest, digest string, at time.Time) error {
	args := m.Called(ctx, id, resetDigest, digest, at)
	return args.Error(0)
}

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

var _ auth.PasswordHasher = (*MockPasswordHasher)(nil)

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t testingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(secret string) (string, error) {
	args := m.Called(secret)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(digest, secret string) bool {
	args := m.Called(digest, secret)
	return args.Bool(0)
}

func (m *MockPasswordHasher) NeedsRehash(digest string) bool {
	args := m.Called(digest)
	return args.Bool(0)
}

// MockMailer is a mock of auth.Mailer.
type MockMailer struct {
	mock.Mock
}

var _ auth.Mailer = (*MockMailer)(nil)

// NewMockMailer creates a mock that asserts its expectations on cleanup.
func NewMockMailer(t testingT) *MockMailer {
	m := &MockMailer{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockMailer) SendActivation(ctx context.Context, user *auth.User, token string) error {
	args := m.Called(ctx, user, token)
	return args.Error(0)
}

func (m *MockMailer) SendPasswordReset(ctx context.Context, user *auth.User, token string) error {
	args := m.Called(ctx, user, token)
	return args.Error(0)
}

// MockTokenGenerator is a mock of auth.TokenGenerator.
type MockTokenGenerator struct {
	mock.Mock
}

var _ auth.TokenGenerator = (*MockTokenGenerator)(nil)

// NewMockTokenGenerator creates a mock that asserts its expectations on cleanup.
func NewMockTokenGenerator(t testingT) *MockTokenGenerator {
	m := &MockTokenGenerator{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockTokenGenerator) NewToken() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}
