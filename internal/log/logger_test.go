package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLoggerAddsComponentAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Component: ComponentHTTP, Output: &buf})

	ctx := WithRequestID(context.Background(), "req_42")
	logger.InfoContext(ctx, "hello", FieldOwnerID, "u1")

	out := buf.String()
	assert.Contains(t, out, "component=http")
	assert.Contains(t, out, "request_id=req_42")
	assert.Contains(t, out, "owner_id=u1")
	assert.Equal(t, ComponentHTTP, logger.Component())
}

func TestLoggerWithoutRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Output: &buf}).WithComponent(ComponentWorker)

	logger.Debug("hidden")
	logger.With("k", "v").Info("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "component=worker")
	assert.Contains(t, out, "k=v")
	assert.NotContains(t, out, "request_id")
	assert.Empty(t, RequestID(context.Background()))
}
