// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

// Package web serves the account JSON API: signup, login with optional
// "remember me", logout, account activation and password reset.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/wordapp/wordapp/internal/observability"
)

// Options configures a Server.
type Options struct {
	Addr string
	// Secret signs the session and user_id cookies.
	Secret        string
	SecureCookies bool
	// ForwardingAllow lists glob patterns for post-login redirect targets.
	ForwardingAllow []string
	// Metrics is optional.
	Metrics *observability.Metrics
	Logger  *slog.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Server is the account HTTP server.
type Server struct {
	addr       string
	svc        AuthService
	signer     *Signer
	cookies    CookieOptions
	forwarding *ForwardingPolicy
	metrics    *observability.Metrics
	logger     *slog.Logger
	now        func() time.Time

	mux        *http.ServeMux
	handler    http.Handler
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer builds the server and its routes.
func NewServer(svc AuthService, opts Options) (*Server, error) {
	if svc == nil {
		return nil, oops.Code("WEB_CONFIG_INVALID").Errorf("auth service is required")
	}
	signer, err := NewSigner(opts.Secret)
	if err != nil {
		return nil, err
	}
	allow := opts.ForwardingAllow
	if allow == nil {
		allow = []string{"/**"}
	}
	forwarding, err := NewForwardingPolicy(allow)
	if err != nil {
		return nil, err
	}

	s := &Server{
		addr:       opts.Addr,
		svc:        svc,
		signer:     signer,
		cookies:    CookieOptions{Secure: opts.SecureCookies},
		forwarding: forwarding,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		now:        opts.Clock,
		mux:        http.NewServeMux(),
	}
	if s.logger == nil {
		s.logger = discardLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.routes()
	s.handler = requestID(s.recoverPanics(s.accessLog(s.mux)))
	return s, nil
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving. The returned channel receives a serve error, if
// any, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("web server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_web_server").Wrap(err)
		}
	}
	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
