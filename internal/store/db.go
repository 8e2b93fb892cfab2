// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

// Package store owns the PostgreSQL connection pool and the schema migrations
// for the users table.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Default connection retry policy used by Open.
const (
	DefaultConnectAttempts = 5
	DefaultConnectBackoff  = 200 * time.Millisecond
	maxConnectBackoff      = 5 * time.Second
)

// OpenOptions tunes Open.
type OpenOptions struct {
	// MaxConns caps the pool size. Zero keeps the pgxpool default.
	MaxConns int32
	// ConnectAttempts is how many pings are tried before giving up.
	ConnectAttempts uint64
	// ConnectBackoff is the first retry delay; it doubles up to five seconds.
	ConnectBackoff time.Duration
	Logger         *slog.Logger
}

// Open creates a pool for databaseURL and waits until the database answers a
// ping, retrying with exponential backoff while it starts up.
func Open(ctx context.Context, databaseURL string, opts OpenOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := pingWithRetry(ctx, pool.Ping, opts); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func pingWithRetry(ctx context.Context, ping func(context.Context) error, opts OpenOptions) error {
	attempts := opts.ConnectAttempts
	if attempts == 0 {
		attempts = DefaultConnectAttempts
	}
	base := opts.ConnectBackoff
	if base <= 0 {
		base = DefaultConnectBackoff
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backoff := retry.WithMaxRetries(attempts-1, retry.WithCappedDuration(maxConnectBackoff, retry.NewExponential(base)))

	var tries int
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		tries++
		if err := ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not ready", "attempt", tries, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", tries).
			Wrap(err)
	}
	return nil
}
