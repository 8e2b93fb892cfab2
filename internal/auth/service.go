// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ResetTokenExpiry is how long a password reset link stays usable.
const ResetTokenExpiry = 2 * time.Hour

// dummySecret is hashed once per Service so unknown emails pay the same
// verification cost as real accounts.
//
//nolint:gosec // G101: not a credential, only hashed for timing equalization.
const dummySecret = "wordapp-timing-equalizer"

// Service provides registration, authentication, activation, remember-me and
// password reset. It is safe for concurrent use.
type Service struct {
	users       UserRepository
	hasher      PasswordHasher
	mailer      Mailer
	digests     *DigestStore
	tokens      TokenGenerator
	logger      *slog.Logger
	now         func() time.Time
	resetExpiry time.Duration

	dummyOnce   sync.Once
	dummyDigest string
}

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets the logger used for best-effort failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			return oops.Errorf("logger is required")
		}
		s.logger = logger
		return nil
	}
}

// WithTokenGenerator replaces the crypto/rand token generator.
func WithTokenGenerator(tokens TokenGenerator) Option {
	return func(s *Service) error {
		if tokens == nil {
			return oops.Errorf("token generator is required")
		}
		s.tokens = tokens
		return nil
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return oops.Errorf("clock is required")
		}
		s.now = now
		return nil
	}
}

// WithResetExpiry overrides ResetTokenExpiry.
func WithResetExpiry(d time.Duration) Option {
	return func(s *Service) error {
		if d <= 0 {
			return oops.With("expiry", d).Errorf("reset expiry must be positive")
		}
		s.resetExpiry = d
		return nil
	}
}

// NewService creates a Service.
func NewService(users UserRepository, hasher PasswordHasher, mailer Mailer, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if mailer == nil {
		return nil, oops.Errorf("mailer is required")
	}

	s := &Service{
		users:       users,
		hasher:      hasher,
		mailer:      mailer,
		tokens:      NewRandomTokenGenerator(),
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
		resetExpiry: ResetTokenExpiry,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	digests, err := NewDigestStore(users, hasher)
	if err != nil {
		return nil, err
	}
	digests.now = s.now
	s.digests = digests
	return s, nil
}

// Digests exposes the store used for token digests.
func (s *Service) Digests() *DigestStore {
	return s.digests
}

// Register validates input, creates an unactivated user and mails the
// activation token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
	if err := in.Validate(); err != nil {
		RegistrationsTotal.WithLabelValues(ResultValidationFailed).Inc()
		return nil, toValidationError(err)
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		RegistrationsTotal.WithLabelValues(ResultError).Inc()
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}
	user := NewUser(in.Name, in.Email, digest, s.now())

	token, err := s.tokens.NewToken()
	if err != nil {
		RegistrationsTotal.WithLabelValues(ResultError).Inc()
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "generate activation token").Wrap(err)
	}
	activationDigest, err := s.hasher.Hash(token)
	if err != nil {
		RegistrationsTotal.WithLabelValues(ResultError).Inc()
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash activation token").Wrap(err)
	}
	user.ActivationDigest = &activationDigest

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			RegistrationsTotal.WithLabelValues(ResultValidationFailed).Inc()
			return nil, validationFailed(&ValidationError{Fields: map[string]string{
				"email": "has already been taken",
			}})
		}
		RegistrationsTotal.WithLabelValues(ResultError).Inc()
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "create user").Wrap(err)
	}

	if err := s.mailer.SendActivation(ctx, user, token); err != nil {
		RegistrationsTotal.WithLabelValues(ResultError).Inc()
		return user, oops.Code("AUTH_MAIL_FAILED").
			With("operation", "send activation").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	RegistrationsTotal.WithLabelValues(ResultSuccess).Inc()
	return user, nil
}

// Authenticate checks credentials and returns the activated user.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			LoginsTotal.WithLabelValues(ResultError).Inc()
			return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "get user by email").Wrap(err)
		}
		// Keep response time independent of account existence.
		_ = s.hasher.Verify(s.dummy(), password)
		LoginsTotal.WithLabelValues(ResultInvalid).Inc()
		return nil, invalidCredentials()
	}

	if !s.hasher.Verify(user.PasswordDigest, password) {
		LoginsTotal.WithLabelValues(ResultInvalid).Inc()
		return nil, invalidCredentials()
	}

	// Activation is checked after the password so inactive accounts are not
	// revealed to someone without the password.
	if !user.Activated {
		LoginsTotal.WithLabelValues(ResultNotActivated).Inc()
		return nil, oops.Code("AUTH_NOT_ACTIVATED").
			With("user_id", user.ID.String()).
			Wrap(ErrNotActivated)
	}

	if s.hasher.NeedsRehash(user.PasswordDigest) {
		s.rehash(ctx, user, password)
	}

	LoginsTotal.WithLabelValues(ResultSuccess).Inc()
	return user, nil
}

// rehash upgrades the password digest. Failures are logged and ignored.
func (s *Service) rehash(ctx context.Context, user *User, password string) {
	digest, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.UpdatePasswordDigest(ctx, user.ID, digest, s.now())
	}
	if err != nil {
		PasswordRehashesTotal.WithLabelValues(ResultError).Inc()
		s.logger.WarnContext(ctx, "best-effort password rehash failed",
			"operation", "rehash_password",
			"user_id", user.ID.String(),
			"error", err)
		return
	}
	user.PasswordDigest = digest
	PasswordRehashesTotal.WithLabelValues(ResultSuccess).Inc()
}

// Activate consumes an activation link. Unknown emails, already active
// accounts and token mismatches all yield ErrInvalidActivationLink.
func (s *Service) Activate(ctx context.Context, email, token string) (*User, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			ActivationsTotal.WithLabelValues(ResultInvalid).Inc()
			return nil, invalidActivationLink()
		}
		ActivationsTotal.WithLabelValues(ResultError).Inc()
		return nil, oops.Code("AUTH_ACTIVATION_FAILED").With("operation", "get user by email").Wrap(err)
	}

	if user.Activated || !s.digests.Verify(user, PurposeActivation, token) {
		ActivationsTotal.WithLabelValues(ResultInvalid).Inc()
		return nil, invalidActivationLink()
	}

	if err := s.markActivated(ctx, user); err != nil {
		if errors.Is(err, ErrStale) {
			// Another request consumed the link first.
			ActivationsTotal.WithLabelValues(ResultInvalid).Inc()
			return nil, invalidActivationLink()
		}
		ActivationsTotal.WithLabelValues(ResultError).Inc()
		return nil, err
	}
	ActivationsTotal.WithLabelValues(ResultSuccess).Inc()
	return user, nil
}

// ForceActivate activates an account without a token. It is an operator
// override and is idempotent.
func (s *Service) ForceActivate(ctx context.Context, email string) (*User, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, oops.Code("AUTH_ACTIVATION_FAILED").
			With("operation", "get user by email").
			With("email", NormalizeEmail(email)).
			Wrap(err)
	}
	if user.Activated {
		return user, nil
	}
	if err := s.markActivated(ctx, user); err != nil {
		if errors.Is(err, ErrStale) {
			return s.UserByID(ctx, user.ID)
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) markActivated(ctx context.Context, user *User) error {
	now := s.now()
	if err := s.users.Activate(ctx, user.ID, now); err != nil {
		return oops.Code("AUTH_ACTIVATION_FAILED").
			With("operation", "activate user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	user.Activated = true
	user.ActivatedAt = &now
	user.UpdatedAt = now
	return nil
}

// ResendActivation mails a fresh activation token to an account that is not
// activated yet, replacing the previous digest. Unknown and active emails
// return nil so the response does not reveal accounts.
func (s *Service) ResendActivation(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			ActivationResendsTotal.WithLabelValues(ResultIgnored).Inc()
			return nil
		}
		ActivationResendsTotal.WithLabelValues(ResultError).Inc()
		return oops.Code("AUTH_ACTIVATION_FAILED").With("operation", "get user by email").Wrap(err)
	}
	if user.Activated {
		ActivationResendsTotal.WithLabelValues(ResultIgnored).Inc()
		return nil
	}

	token, err := s.tokens.NewToken()
	if err != nil {
		ActivationResendsTotal.WithLabelValues(ResultError).Inc()
		return oops.Code("AUTH_ACTIVATION_FAILED").With("operation", "generate activation token").Wrap(err)
	}
	if err := s.digests.StoreDigest(ctx, user, PurposeActivation, token); err != nil {
		ActivationResendsTotal.WithLabelValues(ResultError).Inc()
		return oops.Code("AUTH_ACTIVATION_FAILED").Wrap(err)
	}
	if err := s.mailer.SendActivation(ctx, user, token); err != nil {
		ActivationResendsTotal.WithLabelValues(ResultError).Inc()
		return oops.Code("AUTH_MAIL_FAILED").
			With("operation", "send activation").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	ActivationResendsTotal.WithLabelValues(ResultSuccess).Inc()
	return nil
}

// Remember issues a remember token, stores its digest and returns the raw token.
func (s *Service) Remember(ctx context.Context, user *User) (string, error) {
	if user == nil {
		return "", oops.Code("AUTH_REMEMBER_FAILED").Errorf("user is required")
	}
	token, err := s.tokens.NewToken()
	if err != nil {
		return "", oops.Code("AUTH_REMEMBER_FAILED").With("operation", "generate token").Wrap(err)
	}
	if err := s.digests.StoreDigest(ctx, user, PurposeRemember, token); err != nil {
		return "", oops.Code("AUTH_REMEMBER_FAILED").Wrap(err)
	}
	return token, nil
}

// Forget clears the remember digest. It is idempotent and a nil user is a no-op.
func (s *Service) Forget(ctx context.Context, user *User) error {
	if err := s.digests.ClearDigest(ctx, user, PurposeRemember); err != nil {
		return oops.Code("AUTH_FORGET_FAILED").Wrap(err)
	}
	return nil
}

// VerifyRemember reports whether token matches the user's remember digest.
func (s *Service) VerifyRemember(user *User, token string) bool {
	return s.digests.Verify(user, PurposeRemember, token)
}

// RequestPasswordReset mails a reset token to an activated account. Unknown
// and inactive emails return nil so the response does not reveal accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			PasswordResetsTotal.WithLabelValues(StageRequest, ResultIgnored).Inc()
			return nil
		}
		PasswordResetsTotal.WithLabelValues(StageRequest, ResultError).Inc()
		return oops.Code("AUTH_RESET_FAILED").With("operation", "get user by email").Wrap(err)
	}
	if !user.Activated {
		PasswordResetsTotal.WithLabelValues(StageRequest, ResultIgnored).Inc()
		return nil
	}

	token, err := s.tokens.NewToken()
	if err != nil {
		PasswordResetsTotal.WithLabelValues(StageRequest, ResultError).Inc()
		return oops.Code("AUTH_RESET_FAILED").With("operation", "generate token").Wrap(err)
	}
	if err := s.digests.StoreDigest(ctx, user, PurposeReset, token); err != nil {
		PasswordResetsTotal.WithLabelValues(StageRequest, ResultError).Inc()
		return oops.Code("AUTH_RESET_FAILED").Wrap(err)
	}
	if err := s.mailer.SendPasswordReset(ctx, user, token); err != nil {
		PasswordResetsTotal.WithLabelValues(StageRequest, ResultError).Inc()
		return oops.Code("AUTH_MAIL_FAILED").
			With("operation", "send password reset").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	PasswordResetsTotal.WithLabelValues(StageRequest, ResultSuccess).Inc()
	return nil
}

// CheckPasswordReset reports whether a reset link is still usable without
// consuming it. It fails like ResetPassword does for a bad or expired link.
func (s *Service) CheckPasswordReset(ctx context.Context, email, token string) (*User, error) {
	user, result, err := s.resetCandidate(ctx, email, token)
	if err != nil {
		PasswordResetsTotal.WithLabelValues(StageCheck, result).Inc()
		return nil, err
	}
	PasswordResetsTotal.WithLabelValues(StageCheck, ResultSuccess).Inc()
	return user, nil
}

// ResetPassword replaces the password using a reset token. On success the
// reset and remember digests are cleared, revoking persistent sessions.
// The token is consumed once even under concurrent use.
func (s *Service) ResetPassword(ctx context.Context, email, token, newPassword string) (*User, error) {
	user, result, err := s.resetCandidate(ctx, email, token)
	if err != nil {
		PasswordResetsTotal.WithLabelValues(StageReset, result).Inc()
		return nil, err
	}

	if err := validatePassword(newPassword); err != nil {
		PasswordResetsTotal.WithLabelValues(StageReset, ResultValidationFailed).Inc()
		return nil, err
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		PasswordResetsTotal.WithLabelValues(StageReset, ResultError).Inc()
		return nil, oops.Code("AUTH_RESET_FAILED").With("operation", "hash password").Wrap(err)
	}
	now := s.now()
	if err := s.users.ResetPassword(ctx, user.ID, *user.ResetDigest, digest, now); err != nil {
		if errors.Is(err, ErrStale) {
			PasswordResetsTotal.WithLabelValues(StageReset, ResultInvalid).Inc()
			return nil, invalidResetLink()
		}
		PasswordResetsTotal.WithLabelValues(StageReset, ResultError).Inc()
		return nil, oops.Code("AUTH_RESET_FAILED").
			With("operation", "reset password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	user.PasswordDigest = digest
	user.SetDigest(PurposeReset, nil, now)
	user.SetDigest(PurposeRemember, nil, now)
	PasswordResetsTotal.WithLabelValues(StageReset, ResultSuccess).Inc()
	return user, nil
}

// resetCandidate loads the account a reset link names and checks its token
// and age. On failure it also returns the metric result label.
func (s *Service) resetCandidate(ctx context.Context, email, token string) (*User, string, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ResultInvalid, invalidResetLink()
		}
		return nil, ResultError, oops.Code("AUTH_RESET_FAILED").With("operation", "get user by email").Wrap(err)
	}

	if !user.Activated || !s.digests.Verify(user, PurposeReset, token) {
		return nil, ResultInvalid, invalidResetLink()
	}

	if user.ResetSentAt == nil || s.now().Sub(*user.ResetSentAt) > s.resetExpiry {
		return nil, ResultExpired, oops.Code("AUTH_RESET_EXPIRED").
			With("user_id", user.ID.String()).
			Wrap(ErrResetExpired)
	}
	return user, "", nil
}

// UserByID loads a user. A missing user yields ErrNotFound.
func (s *Service) UserByID(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, oops.Code("AUTH_USER_LOOKUP_FAILED").With("user_id", id.String()).Wrap(err)
	}
	return user, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash(dummySecret)
		if err != nil {
			s.logger.Warn("failed to compute timing-equalization digest", "error", err)
			return
		}
		s.dummyDigest = digest
	})
	return s.dummyDigest
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
}

func invalidActivationLink() error {
	return oops.Code("AUTH_INVALID_ACTIVATION_LINK").Wrap(ErrInvalidActivationLink)
}

func invalidResetLink() error {
	return oops.Code("AUTH_INVALID_RESET_LINK").Wrap(ErrInvalidResetLink)
}
