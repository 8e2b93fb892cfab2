// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/wordapp/wordapp/internal/auth"
	authpg "github.com/wordapp/wordapp/internal/auth/postgres"
	"github.com/wordapp/wordapp/internal/config"
	"github.com/wordapp/wordapp/internal/mail"
	"github.com/wordapp/wordapp/internal/store"
)

// Migrator is the subset of store.Migrator the CLI drives.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Version() (uint, bool, error)
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

// Deps contains injectable dependencies shared by the subcommands.
// All fields with nil values use their default implementations.
type Deps struct {
	// OpenUsers connects the user repository. The returned func releases it.
	// Default: PostgreSQL via store.Open.
	OpenUsers func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.UserRepository, func(), error)

	// NewMigrator opens a migrator for a database URL.
	// Default: store.NewMigrator
	NewMigrator func(databaseURL string) (Migrator, error)

	// NewMailer builds the outbound mailer.
	// Default: buildMailer
	NewMailer func(cfg *config.Config, logger *slog.Logger) (auth.Mailer, error)
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.OpenUsers == nil {
		out.OpenUsers = openPostgresUsers
	}
	if out.NewMigrator == nil {
		out.NewMigrator = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.NewMailer == nil {
		out.NewMailer = buildMailer
	}
	return &out
}

func requireDatabaseURL(cfg *config.Config) error {
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			With("field", "database.url").
			Errorf("database URL is required: set DATABASE_URL, --database-url or database.url")
	}
	return nil
}

func openPostgresUsers(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.UserRepository, func(), error) {
	if err := requireDatabaseURL(cfg); err != nil {
		return nil, nil, err
	}
	pool, err := store.Open(ctx, cfg.Database.URL, store.OpenOptions{
		MaxConns:        cfg.Database.MaxConns,
		ConnectAttempts: cfg.Database.ConnectAttempts,
		ConnectBackoff:  cfg.Database.ConnectBackoff,
		Logger:          logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return authpg.NewUserRepository(pool), pool.Close, nil
}

// buildMailer selects the mail driver from cfg.
func buildMailer(cfg *config.Config, logger *slog.Logger) (auth.Mailer, error) {
	links := mail.Links{BaseURL: cfg.Server.BaseURL}
	switch cfg.Mail.Driver {
	case config.MailDriverSMTP:
		client, err := mail.NewSMTPClient(cfg.SMTP())
		if err != nil {
			return nil, err
		}
		mailer, err := mail.NewSMTPMailer(client, cfg.Mail.From, links, cfg.Auth.ResetExpiry, logger)
		if err != nil {
			return nil, err
		}
		return mailer, nil
	case config.MailDriverLog, "":
		return mail.NewLogMailer(links, cfg.Auth.ResetExpiry, logger), nil
	default:
		return nil, oops.Code("CONFIG_INVALID").With("field", "mail.driver").Errorf("unknown mail driver %q", cfg.Mail.Driver)
	}
}

// newAuthService wires the account service from cfg.
func newAuthService(cfg *config.Config, users auth.UserRepository, mailer auth.Mailer, logger *slog.Logger) (*auth.Service, error) {
	hasher, err := auth.NewPasswordHasher(cfg.HasherConfig())
	if err != nil {
		return nil, err
	}
	return auth.NewService(users, hasher, mailer,
		auth.WithLogger(logger),
		auth.WithResetExpiry(cfg.Auth.ResetExpiry),
	)
}
