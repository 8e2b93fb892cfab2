// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package observability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wordapp/wordapp/pkg/errutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", opts...)
	_, err := server.Start()
	require.NoError(t, err, "failed to start server")
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	require.NotEmpty(t, server.Addr(), "server address is empty")
	return server
}

func get(t *testing.T, server *Server, path string) (int, string) {
	t.Helper()
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + server.Addr() + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server := startServer(t)

	status, body := get(t, server, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "go_", "expected go_* metrics")
	assert.Contains(t, body, "process_", "expected process_* metrics")

	server.Metrics().RequestsTotal.WithLabelValues("POST", "/login", "200").Inc()
	server.Metrics().RequestDuration.WithLabelValues("POST", "/login").Observe(0.01)

	_, body = get(t, server, "/metrics")
	assert.Contains(t, body, `wordapp_http_requests_total{method="POST",route="/login",status="200"} 1`)
	assert.Contains(t, body, "wordapp_http_request_duration_seconds_bucket")
}

func TestServer_RegistererExposesExtraCollectors(t *testing.T) {
	server := startServer(t)

	extra := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wordapp_test_extra_total",
		Help: "test counter",
	})
	require.NoError(t, server.Registerer().Register(extra))
	extra.Add(3)

	_, body := get(t, server, "/metrics")
	assert.Contains(t, body, "wordapp_test_extra_total 3")
}

func TestServer_Liveness(t *testing.T) {
	server := startServer(t, WithCheck("database", func(context.Context) error {
		return errors.New("down")
	}))

	// Liveness ignores readiness checks.
	status, body := get(t, server, "/healthz/liveness")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", strings.TrimSpace(body))
}

func TestServer_Readiness(t *testing.T) {
	serving := func(ok bool) Option {
		return WithCheck("serving", FlagCheck(func() bool { return ok }, "not serving"))
	}
	dbDown := WithCheck("database", func(context.Context) error { return errors.New("connection refused") })
	dbUp := WithCheck("database", func(context.Context) error { return nil })

	tests := []struct {
		name       string
		opts       []Option
		wantStatus int
		wantReport readinessReport
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantReport: readinessReport{Status: "ok"},
		},
		{
			name:       "all ready",
			opts:       []Option{serving(true), dbUp},
			wantStatus: http.StatusOK,
			wantReport: readinessReport{Status: "ok", Checks: map[string]string{"serving": "ok", "database": "ok"}},
		},
		{
			name:       "not serving",
			opts:       []Option{serving(false), dbUp},
			wantStatus: http.StatusServiceUnavailable,
			wantReport: readinessReport{Status: "unavailable", Checks: map[string]string{"serving": "not serving", "database": "ok"}},
		},
		{
			name:       "database down",
			opts:       []Option{serving(true), dbDown},
			wantStatus: http.StatusServiceUnavailable,
			wantReport: readinessReport{Status: "unavailable", Checks: map[string]string{"serving": "ok", "database": "connection refused"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := startServer(t, tt.opts...)
			status, body := get(t, server, "/healthz/readiness")
			assert.Equal(t, tt.wantStatus, status)

			var got readinessReport
			require.NoError(t, json.Unmarshal([]byte(body), &got))
			assert.Equal(t, tt.wantReport, got)
		})
	}
}

func TestServer_ReadinessCountsFailures(t *testing.T) {
	server := startServer(t, WithCheck("database", func(context.Context) error { return errors.New("down") }))

	get(t, server, "/healthz/readiness")
	get(t, server, "/healthz/readiness")

	assert.InDelta(t, 2, testutil.ToFloat64(server.checkFailed.WithLabelValues("database")), 0)
}

func TestServer_ReadinessTimeout(t *testing.T) {
	server := startServer(t,
		WithCheckTimeout(50*time.Millisecond),
		WithCheck("database", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	)

	status, body := get(t, server, "/healthz/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body, "deadline exceeded")
}

func TestFlagCheck(t *testing.T) {
	assert.NoError(t, FlagCheck(nil, "x")(context.Background()))
	assert.NoError(t, FlagCheck(func() bool { return true }, "x")(context.Background()))

	err := FlagCheck(func() bool { return false }, "warming up")(context.Background())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "NOT_READY")
	assert.Contains(t, err.Error(), "warming up")
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startServer(t)
	_, err := server.Start()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_RUNNING")
}

func TestServer_ListenFailure(t *testing.T) {
	server := NewServer("256.0.0.1:http")
	_, err := server.Start()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_LISTEN_FAILED")
	assert.Empty(t, server.Addr())
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, server.Stop(ctx), "stop without start should not error")
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	server := NewServer("127.0.0.1:0")
	errCh, err := server.Start()
	require.NoError(t, err)

	// Closing the listener underneath Serve makes it fail.
	server.mu.Lock()
	_ = server.listener.Close()
	server.mu.Unlock()

	select {
	case serveErr := <-errCh:
		assert.Error(t, serveErr)
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error on error channel")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Stop(ctx)
}

func TestServer_ErrorChannelClosesOnNormalShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0")
	errCh, err := server.Start()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))

	select {
	case err, ok := <-errCh:
		if ok {
			assert.NoError(t, err)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error channel to close")
	}
}
