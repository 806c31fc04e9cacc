package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbi-manager/activity-sync/common/middleware"
)

func TestNewWithWriter_Formats(t *testing.T) {
	var buf bytes.Buffer

	NewWithWriter(&buf, slog.LevelInfo, "json").Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	NewWithWriter(&buf, slog.LevelInfo, "text").Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestWithContext_RequestAndRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo, "json")

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	ctx = ContextWithRunID(ctx, "synctask-1")

	logger.InfoContext(ctx, "sync started")

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.Contains(t, out, `"run_id":"synctask-1"`)
}

func TestWithContext_Empty(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo, "json")

	logger.WarnContext(context.Background(), "no ids")

	out := buf.String()
	assert.NotContains(t, out, "request_id")
	assert.NotContains(t, out, "run_id")
	assert.Contains(t, out, "WARN")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelWarn, "json")

	logger.InfoContext(context.Background(), "dropped")
	logger.DebugContext(context.Background(), "dropped too")
	assert.Empty(t, buf.String())

	logger.ErrorContext(context.Background(), "kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	logger := New(slog.LevelInfo, "json")
	SetDefault(logger)
	require.Same(t, logger.Logger, slog.Default())
}
