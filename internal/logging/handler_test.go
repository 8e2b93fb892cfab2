// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/wordapp/wordapp/pkg/errutil"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "Failed to parse JSON: %s", buf.String())
	return entry
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Options{Service: "wordapp", Version: "1.0.0", Format: "json", Writer: &buf})
	require.NoError(t, err)

	logger.Info("test message")

	entry := decode(t, &buf)
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "wordapp", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Contains(t, entry, "time", "time field missing")
	assert.Contains(t, entry, "level", "level field missing")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Options{Service: "wordapp", Format: "text", Writer: &buf})
	require.NoError(t, err)

	logger.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "test message", "Output missing message")
	assert.Contains(t, output, "service=wordapp", "Output missing service")
}

func TestSetup_DefaultFormatIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Options{Writer: &buf})
	require.NoError(t, err)

	logger.Info("test message")
	decode(t, &buf)
}

func TestSetup_InvalidFormat(t *testing.T) {
	_, err := Setup(Options{Format: "xml"})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "LOG_FORMAT_INVALID")
}

func TestSetup_Level(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Options{Level: "warn", Writer: &buf})
	require.NoError(t, err)

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Equal(t, "kept", decode(t, &buf)["msg"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for name, want := range tests {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "LOG_LEVEL_INVALID")
}

func TestHandler_RequestID(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Options{Writer: &buf})
	require.NoError(t, err)

	ctx := WithRequestID(context.Background(), "01JREQUEST")
	assert.Equal(t, "01JREQUEST", RequestID(ctx))

	logger.InfoContext(ctx, "request message")
	assert.Equal(t, "01JREQUEST", decode(t, &buf)["request_id"])
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Options{Writer: &buf})
	require.NoError(t, err)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.InfoContext(ctx, "traced message")

	entry := decode(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestHandler_NoContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Options{Writer: &buf})
	require.NoError(t, err)

	logger.Info("plain message")

	entry := decode(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
	assert.NotContains(t, entry, "request_id")
}

func TestHandler_WithAttrsKeepsContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Options{Service: "wordapp", Writer: &buf})
	require.NoError(t, err)

	logger.With("component", "web").WithGroup("http").
		InfoContext(WithRequestID(context.Background(), "r1"), "grouped", "status", 200)

	entry := decode(t, &buf)
	assert.Equal(t, "web", entry["component"])
	assert.Contains(t, entry, "http")
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	logger, err := SetDefault(Options{Service: "test-service", Version: "2.0.0"})
	require.NoError(t, err)
	assert.Equal(t, logger, slog.Default())
}
