// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wordapp/wordapp/internal/auth"
	"github.com/wordapp/wordapp/internal/auth/mocks"
	"github.com/wordapp/wordapp/pkg/errutil"
)

type serviceMocks struct {
	users  *mocks.MockUserRepository
	hasher *mocks.MockPasswordHasher
	mailer *mocks.MockMailer
	tokens *mocks.MockTokenGenerator
}

func newMockedService(t *testing.T, opts ...auth.Option) (*auth.Service, serviceMocks) {
	t.Helper()
	m := serviceMocks{
		users:  mocks.NewMockUserRepository(t),
		hasher: mocks.NewMockPasswordHasher(t),
		mailer: mocks.NewMockMailer(t),
		tokens: mocks.NewMockTokenGenerator(t),
	}
	opts = append([]auth.Option{auth.WithTokenGenerator(m.tokens)}, opts...)
	svc, err := auth.NewService(m.users, m.hasher, m.mailer, opts...)
	require.NoError(t, err)
	return svc, m
}

func activeUser() *auth.User {
	now := time.Now()
	return &auth.User{
		ID:             ulid.Make(),
		Name:           "Alice",
		Email:          "alice@example.com",
		PasswordDigest: "pw-digest",
		Activated:      true,
		ActivatedAt:    &now,
	}
}

func TestNewService_NilDependencies(t *testing.T) {
	tests := []struct {
		name        string
		users       auth.UserRepository
		hasher      auth.PasswordHasher
		mailer      auth.Mailer
		expectError string
	}{
		{
			name:        "nil user repository",
			hasher:      mocks.NewMockPasswordHasher(t),
			mailer:      mocks.NewMockMailer(t),
			expectError: "user repository is required",
		},
		{
			name:        "nil password hasher",
			users:       mocks.NewMockUserRepository(t),
			mailer:      mocks.NewMockMailer(t),
			expectError: "password hasher is required",
		},
		{
			name:        "nil mailer",
			users:       mocks.NewMockUserRepository(t),
			hasher:      mocks.NewMockPasswordHasher(t),
			expectError: "mailer is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewService(tt.users, tt.hasher, tt.mailer)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestNewService_InvalidOptions(t *testing.T) {
	tests := []struct {
		name        string
		opt         auth.Option
		expectError string
	}{
		{name: "nil logger", opt: auth.WithLogger(nil), expectError: "logger"},
		{name: "nil token generator", opt: auth.WithTokenGenerator(nil), expectError: "token generator"},
		{name: "nil clock", opt: auth.WithClock(nil), expectError: "clock"},
		{name: "zero reset expiry", opt: auth.WithResetExpiry(0), expectError: "reset expiry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewService(mocks.NewMockUserRepository(t), mocks.NewMockPasswordHasher(t),
				mocks.NewMockMailer(t), tt.opt)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()
	input := auth.RegisterInput{Name: "  Alice ", Email: " Alice@Example.COM ", Password: "secret1"}

	t.Run("creates an unactivated user and mails the token", func(t *testing.T) {
		svc, m := newMockedService(t)
		m.hasher.On("Hash", "secret1").Return("pw-digest", nil)
		m.tokens.On("NewToken").Return("activation-token", nil)
		m.hasher.On("Hash", "activation-token").Return("activation-digest", nil)
		m.users.On("Create", ctx, mock.MatchedBy(func(u *auth.User) bool {
			return u.Email == "alice@example.com" && u.Name == "Alice" &&
				u.PasswordDigest == "pw-digest" && !u.Activated &&
				u.ActivationDigest != nil && *u.ActivationDigest == "activation-digest"
		})).Return(nil)
		m.mailer.On("SendActivation", ctx, mock.AnythingOfType("*auth.User"), "activation-token").Return(nil)

		user, err := svc.Register(ctx, input)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.False(t, user.Activated)
		assert.Nil(t, user.ActivatedAt)
		assert.Nil(t, user.RememberDigest)
	})

	t.Run("invalid input touches nothing", func(t *testing.T) {
		svc, _ := newMockedService(t)

		user, err := svc.Register(ctx, auth.RegisterInput{Name: "", Email: "nope", Password: "123"})
		require.Error(t, err)
		assert.Nil(t, user)
		errutil.AssertErrorCode(t, err, "AUTH_VALIDATION_FAILED")

		var ve *auth.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.NotEmpty(t, ve.Field("name"))
		assert.NotEmpty(t, ve.Field("email"))
		assert.NotEmpty(t, ve.Field("password"))
	})

	t.Run("duplicate email becomes a field error", func(t *testing.T) {
		svc, m := newMockedService(t)
		m.hasher.On("Hash", mock.Anything).Return("digest", nil)
		m.tokens.On("NewToken").Return("activation-token", nil)
		m.users.On("Create", ctx, mock.Anything).Return(auth.ErrEmailTaken)

		_, err := svc.Register(ctx, input)
		require.Error(t, err)
		var ve *auth.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "has already been taken", ve.Field("email"))
	})

	t.Run("mail failure is surfaced", func(t *testing.T) {
		svc, m := newMockedService(t)
		m.hasher.On("Hash", mock.Anything).Return("digest", nil)
		m.tokens.On("NewToken").Return("activation-token", nil)
		m.users.On("Create", ctx, mock.Anything).Return(nil)
		m.mailer.On("SendActivation", ctx, mock.Anything, "activation-token").Return(errors.New("smtp down"))

		user, err := svc.Register(ctx, input)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_MAIL_FAILED")
		require.NotNil(t, user, "the account exists even though the mail failed")
	})

	t.Run("repository failure", func(t *testing.T) {
		svc, m := newMockedService(t)
		m.hasher.On("Hash", mock.Anything).Return("digest", nil)
		m.tokens.On("NewToken").Return("activation-token", nil)
		m.users.On("Create", ctx, mock.Anything).Return(errors.New("connection refused"))

		_, err := svc.Register(ctx, input)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_REGISTER_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "create user")
	})
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		svc, m := newMockedService(t)
		user := activeUser()
		m.users.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)
		m.hasher.On("Verify", "pw-digest", "secret1").Return(true)
		m.hasher.On("NeedsRehash", "pw-digest").Return(false)

		got, err := svc.Authenticate(ctx, "  ALICE@example.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("unknown email still verifies against a dummy digest", func(t *testing.T) {
		svc, m := newMockedService(t)
		m.users.On("GetByEmail", ctx, "nobody@example.com").Return(nil, auth.ErrNotFound)
		m.hasher.On("Hash", mock.AnythingOfType("string")).Return("dummy-digest", nil).Once()
		m.hasher.On("Verify", "dummy-digest", "secret1").Return(false)

		_, err := svc.Authenticate(ctx, "nobody@example.com", "secret1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrInvalidCredentials))
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
	})

	t.Run("wrong password is indistinguishable from unknown email", func(t *testing.T) {
		svc, m := newMockedService(t)
		m.users.On("GetByEmail", ctx, "alice@example.com").Return(activeUser(), nil)
		m.hasher.On("Verify", "pw-digest", "wrong").Return(false)

		_, err := svc.Authenticate(ctx, "alice@example.com", "wrong")
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrInvalidCredentials))
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
	})

	t.Run("not activated after correct password", func(t *testing.T) {
		svc, m := newMockedService(t)
		user := activeUser()
		user.Activated = false
		user.ActivatedAt = nil
		m.users.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)
		m.hasher.On("Verify", "pw-digest", "secret1").Return(true)

		got, err := svc.Authenticate(ctx, "alice@example.com", "secret1")
		require.Error(t, err)
		assert.Nil(t, got)
		assert.True(t, errors.Is(err, auth.ErrNotActivated))
		errutil.AssertErrorCode(t, err, "AUTH_NOT_ACTIVATED")
	})

	t.Run("not activated with wrong password reports invalid credentials", func(t *testing.T) {
		svc, m := newMockedService(t)
		user := activeUser()
		user.Activated = false
		m.users.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)
		m.hasher.On("Verify", "pw-digest", "wrong").Return(false)

		_, err := svc.Authenticate(ctx, "alice@example.com", "wrong")
		assert.True(t, errors.Is(err, auth.ErrInvalidCredentials))
	})

	t.Run("lookup failure", func(t *testing.T) {
		svc, m := newMockedService(t)
		m.users.On("GetByEmail", ctx, "alice@example.com").Return(nil, errors.New("timeout"))

		_, err := svc.Authenticate(ctx, "alice@example.com", "secret1")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
		assert.False(t, errors.Is(err, auth.ErrInvalidCredentials))
	})

	t.Run("upgrades a stale digest", func(t *testing.T) {
		svc, m := newMockedService(t)
		user := activeUser()
		m.users.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)
		m.hasher.On("Verify", "pw-digest", "secret1").Return(true)
		m.hasher.On("NeedsRehash", "pw-digest").Return(true)
		m.hasher.On("Hash", "secret1").Return("new-digest", nil)
		m.users.On("UpdatePasswordDigest", ctx, user.ID, "new-digest", mock.Anything).Return(nil)

		got, err := svc.Authenticate(ctx, "alice@example.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, "new-digest", got.PasswordDigest)
	})
}

func TestService_Authenticate_LogsRehashFailure(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	svc, m := newMockedService(t, auth.WithLogger(logger))
	user := activeUser()
	m.users.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)
	m.hasher.On("Verify", "pw-digest", "secret1").Return(true)
	m.hasher.On("NeedsRehash", "pw-digest").Return(true)
	m.hasher.On("Hash", "secret1").Return("new-digest", nil)
	m.users.On("UpdatePasswordDigest", ctx, user.ID, "new-digest", mock.Anything).
		Return(errors.New("database unavailable"))

	got, err := svc.Authenticate(ctx, "alice@example.com", "secret1")
	require.NoError(t, err, "login succeeds even if the rehash fails")
	assert.Equal(t, "pw-digest", got.PasswordDigest)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Contains(t, entry["msg"], "best-effort")
	assert.Equal(t, "rehash_password", entry["operation"])
	assert.Equal(t, user.ID.String(), entry["user_id"])
}

func TestService_Activate(t *testing.T) {
	ctx := context.Background()
	digest := "activation-digest"

	inactive := func() *auth.User {
		u := activeUser()
		u.Activated = false
		u.ActivatedAt = nil
		u.ActivationDigest = &digest
		return u
	}

	t.Run("success sets activated and activated_at together", func(t *testing.T) {
		fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		svc, m := newMockedService(t, auth.WithClock(func() time.Time { return fixed }))
		user := inactive()
		m.users.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)
		m.hasher.On("Verify", digest, "token").Return(true)
		m.users.On("Activate", ctx, user.ID, fixed).Return(nil).Once()

		got, err := svc.Activate(ctx, "alice@example.com", "token")
		require.NoError(t, err)
		assert.True(t, got.Activated)
		require.NotNil(t, got.ActivatedAt)
		assert.Equal(t, fixed, *got.ActivatedAt)
	})

	cases := []struct {
		name  string
		setup func(m serviceMocks)
	}{
		{
			name: "unknown email",
			setup: func(m serviceMocks) {
				m.users.On("GetByEmail", ctx, "alice@example.com").Return(nil, auth.ErrNotFound)
			},
		},
		{
			name: "already activated",
			setup: func(m serviceMocks) {
				u := inactive()
				u.Activated = true
				m.users.On("GetByEmail", ctx, "alice@example.com").Return(u, nil)
			},
		},
		{
			name: "token mismatch",
			setup: func(m serviceMocks) {
				m.users.On("GetByEmail", ctx, "alice@example.com").Return(inactive(), nil)
				m.hasher.On("Verify", digest, "token").Return(false)
			},
		},
		{
			name: "no activation digest",
			setup: func(m serviceMocks) {
				u := inactive()
				u.ActivationDigest = nil
				m.users.On("GetByEmail", ctx, "alice@example.com").Return(u, nil)
			},
		},
		{
			name: "another request activated first",
			setup: func(m serviceMocks) {
				u := inactive()
				m.users.On("GetByEmail", ctx, "alice@example.com").Return(u, nil)
				m.hasher.On("Verify", digest, "token").Return(true)
				m.users.On("Activate", ctx, u.ID, mock.Anything).Return(auth.ErrStale)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, m := newMockedService(t)
			tc.setup(m)

			got, err := svc.Activate(ctx, "alice@example.com", "token")
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, errors.Is(err, auth.ErrInvalidActivationLink))
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_ACTIVATION_LINK")
		})
	}
}

func TestService_RememberAndForget(t *testing.T) {
	ctx := context.Background()

	t.Run("remember stores the digest of the returned token", func(t *testing.T) {
		svc, m := newMockedService(t)
		user := activeUser()
		m.tokens.On("NewToken").Return("remember-token", nil)
		m.hasher.On("Hash", "remember-token").Return("remember-digest", nil)
		m.users.On("UpdateDigest", ctx, user.ID, auth.PurposeRemember,
			mock.MatchedBy(func(d *string) bool { return d != nil && *d == "remember-digest" }),
			mock.Anything).Return(nil)

		token, err := svc.Remember(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, "remember-token", token)
		require.NotNil(t, user.RememberDigest)
		assert.Equal(t, "remember-digest", *user.RememberDigest)
	})

	t.Run("remember nil user", func(t *testing.T) {
		svc, _ := newMockedService(t)
		_, err := svc.Remember(ctx, nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_REMEMBER_FAILED")
	})

	t.Run("forget is a no-op without a digest", func(t *testing.T) {
		svc, _ := newMockedService(t)
		require.NoError(t, svc.Forget(ctx, activeUser()))
		require.NoError(t, svc.Forget(ctx, nil))
	})

	t.Run("forget clears the digest", func(t *testing.T) {
		svc, m := newMockedService(t)
		user := activeUser()
		d := "remember-digest"
		user.RememberDigest = &d
		m.users.On("UpdateDigest", ctx, user.ID, auth.PurposeRemember, (*string)(nil), mock.Anything).Return(nil).Once()

		require.NoError(t, svc.Forget(ctx, user))
		assert.Nil(t, user.RememberDigest)
		require.NoError(t, svc.Forget(ctx, user), "second forget must not touch the repository")
	})

	t.Run("verify remember fails closed", func(t *testing.T) {
		svc, _ := newMockedService(t)
		assert.False(t, svc.VerifyRemember(nil, "token"))
		assert.False(t, svc.VerifyRemember(activeUser(), "token"))
	})
}

func TestService_UserByID(t *testing.T) {
	ctx := context.Background()
	svc, m := newMockedService(t)
	id := ulid.Make()
	m.users.On("GetByID", ctx, id).Return(nil, auth.ErrNotFound)

	_, err := svc.UserByID(ctx, id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrNotFound))
	errutil.AssertErrorContext(t, err, "user_id", id.String())
}
