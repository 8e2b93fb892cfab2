// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/wordapp/wordapp/internal/auth"
	"github.com/wordapp/wordapp/internal/config"
	"github.com/wordapp/wordapp/internal/logging"
	"github.com/wordapp/wordapp/internal/observability"
	"github.com/wordapp/wordapp/internal/web"
	"github.com/wordapp/wordapp/pkg/errutil"
)

// pinger is implemented by repositories backed by a remote database.
type pinger interface {
	Ping(ctx context.Context) error
}

// serveOptions are the serve-only flags.
type serveOptions struct {
	migrate bool
	// started is called with the web and metrics addresses once both
	// accept requests. metricsAddr is empty when metrics are disabled.
	started func(webAddr, metricsAddr string)
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return newServeCmd(nil)
}

func newServeCmd(deps *Deps) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the account HTTP server",
		Long: `Start the JSON HTTP API for signup, activation, login, logout and
password reset, plus the metrics and health endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cmd, cfg, opts, deps)
		},
	}

	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply pending database migrations before serving")

	return cmd
}

// runServe runs the server until ctx ends, SIGINT/SIGTERM arrives or a
// listener fails.
func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts *serveOptions, deps *Deps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.SetDefault(logging.Options{
		Service: "wordapp",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	logger.Info("starting wordapp", "addr", cfg.Server.Addr, "metrics_addr", cfg.Metrics.Addr)

	secret := cfg.Cookies.Secret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return err
		}
		logger.Warn("cookies.secret is not set, using a random secret; sessions will not survive a restart")
	}

	if opts.migrate {
		if err := migrateUp(cfg, deps); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	users, release, err := deps.OpenUsers(ctx, cfg, logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open user repository").Wrap(err)
	}
	defer release()
	logger.Info("connected to database")

	mailer, err := deps.NewMailer(cfg, logger)
	if err != nil {
		return err
	}
	svc, err := newAuthService(cfg, users, mailer, logger)
	if err != nil {
		return err
	}

	var ready atomic.Bool
	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		checks := []observability.Option{
			observability.WithLogger(logger),
			observability.WithCheck("serving", observability.FlagCheck(ready.Load, "web listener not serving")),
		}
		if p, ok := users.(pinger); ok {
			checks = append(checks, observability.WithCheck("database", p.Ping))
		}
		obsServer = observability.NewServer(cfg.Metrics.Addr, checks...)
		auth.RegisterMetrics(obsServer.Registerer())
		metrics = obsServer.Metrics()
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("SERVE_FAILED").With("server", "observability").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
	}

	webServer, err := web.NewServer(svc, web.Options{
		Addr:            cfg.Server.Addr,
		Secret:          secret,
		SecureCookies:   cfg.Cookies.Secure,
		ForwardingAllow: cfg.Forwarding.Allow,
		Metrics:         metrics,
		Logger:          logger,
	})
	if err != nil {
		stopServers(cfg, logger, obsServer, nil)
		return err
	}
	webErrCh, err := webServer.Start()
	if err != nil {
		stopServers(cfg, logger, obsServer, nil)
		return oops.Code("SERVE_FAILED").With("server", "web").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, webErrCh, "web", logger)

	ready.Store(true)
	cmd.Println("WordApp server started on " + webServer.Addr())
	if opts.started != nil {
		metricsAddr := ""
		if obsServer != nil {
			metricsAddr = obsServer.Addr()
		}
		opts.started(webServer.Addr(), metricsAddr)
	}

	<-ctx.Done()
	ready.Store(false)
	logger.Info("shutting down")

	stopServers(cfg, logger, obsServer, webServer)
	logger.Info("shutdown complete")
	return nil
}

func stopServers(cfg *config.Config, logger *slog.Logger, obs *observability.Server, webServer *web.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop taking requests before the health endpoint goes away.
	if webServer != nil {
		if err := webServer.Stop(ctx); err != nil {
			errutil.LogError(logger, "error stopping web server", err)
		}
	}
	if obs != nil {
		if err := obs.Stop(ctx); err != nil {
			errutil.LogError(logger, "error stopping observability server", err)
		}
	}
}

// monitorServerErrors cancels ctx when a server reports a serve error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}

func randomSecret() (string, error) {
	b := make([]byte, web.MinSecretLength)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("SECRET_GENERATION_FAILED").Wrap(err)
	}
	return hex.EncodeToString(b), nil
}
