// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

// Package observability serves Prometheus metrics and health endpoints on a
// listener separate from the account API.
package observability

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// DefaultCheckTimeout bounds one readiness request across all checks.
const DefaultCheckTimeout = 2 * time.Second

// Check reports whether one dependency is ready. A nil error means ready.
type Check func(ctx context.Context) error

// FlagCheck adapts a boolean readiness flag, such as "listener is serving".
func FlagCheck(ready func() bool, reason string) Check {
	return func(context.Context) error {
		if ready == nil || ready() {
			return nil
		}
		return oops.Code("NOT_READY").Errorf("%s", reason)
	}
}

// Metrics holds the HTTP transport metrics for the account API.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the HTTP metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordapp_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wordapp_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
	reg.MustRegister(m.RequestsTotal, m.RequestDuration)
	return m
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCheck adds a named readiness check. Adding a name twice replaces it.
func WithCheck(name string, check Check) Option {
	return func(s *Server) {
		if check != nil {
			s.checks[name] = check
		}
	}
}

// WithCheckTimeout overrides DefaultCheckTimeout.
func WithCheckTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.checkTimeout = d
		}
	}
}

// Server exposes /metrics, /healthz/liveness and /healthz/readiness.
type Server struct {
	addr         string
	logger       *slog.Logger
	registry     *prometheus.Registry
	metrics      *Metrics
	checkFailed  *prometheus.CounterVec
	checks       map[string]Check
	checkTimeout time.Duration

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a server for addr ("host:port"; port 0 picks a free one).
// Each server owns a fresh registry carrying the Go and process collectors.
func NewServer(addr string, opts ...Option) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	checkFailed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wordapp_readiness_check_failures_total",
		Help: "Readiness check failures by check name",
	}, []string{"check"})
	registry.MustRegister(checkFailed)

	s := &Server{
		addr:         addr,
		logger:       slog.New(slog.DiscardHandler),
		registry:     registry,
		metrics:      NewMetrics(registry),
		checkFailed:  checkFailed,
		checks:       map[string]Check{},
		checkTimeout: DefaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics returns the HTTP metrics for the web transport to record into.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Registerer lets other packages add collectors to /metrics.
func (s *Server) Registerer() prometheus.Registerer {
	return s.registry
}

// Start listens and serves in the background. The returned channel receives
// a serve failure, and is closed once the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OBSERVABILITY_RUNNING").Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("GET /healthz/liveness", s.handleLiveness)
	mux.HandleFunc("GET /healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = httpSrv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the server down gracefully. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.mu.Lock()
	httpSrv := s.httpServer
	s.mu.Unlock()

	if httpSrv != nil {
		if err := httpSrv.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before the first Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // client may have gone away
	w.Write([]byte("ok\n"))
}

type readinessReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleReadiness runs every check concurrently under one timeout and
// answers 503 when any of them fails.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.checkTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.checks[name](ctx)
		}()
	}
	wg.Wait()

	report := readinessReport{Status: "ok", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for i, name := range names {
		if err := results[i]; err != nil {
			report.Status = "unavailable"
			report.Checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			s.checkFailed.WithLabelValues(name).Inc()
			s.logger.WarnContext(r.Context(), "readiness check failed", "check", name, "error", err)
			continue
		}
		report.Checks[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(report)
}
