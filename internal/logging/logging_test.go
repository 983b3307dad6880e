package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNew_JSONAddsRequestID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, "info", "json")

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-123")
	logger.InfoContext(ctx, "submission received", "provider", "smtp")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "submission received", rec["msg"])
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "smtp", rec["provider"])
	assert.Equal(t, "req-123", rec["request_id"])
}

func TestNew_NoRequestIDWithoutMiddleware(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, "info", "json")
	logger.InfoContext(context.Background(), "startup")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.NotContains(t, rec, "request_id")
}

func TestNew_LevelFilters(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, "warn", "json")
	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNew_TextFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, "debug", "text")

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-9")
	logger.DebugContext(ctx, "provider call finished", "provider", "resend")

	out := buf.String()
	assert.Contains(t, out, "provider call finished")
	assert.Contains(t, out, "resend")
	assert.Contains(t, out, "req-9")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())), "text format must not emit JSON")
}

func TestWithContext_PreservesAttrsAndGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	handler := WithContext(slog.NewJSONHandler(&buf, nil), RequestID, nil)
	logger := slog.New(handler).With("component", "server").WithGroup("req")

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "abc")
	logger.InfoContext(ctx, "handled", "status", 200)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "server", rec["component"])
	group, ok := rec["req"].(map[string]any)
	require.True(t, ok, "group attrs: %v", rec)
	assert.EqualValues(t, 200, group["status"])
	assert.Equal(t, "abc", group["request_id"])
}
