package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitework/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestJSONLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.Logging{Level: "warn", Format: "json"})
	logger.Info("dropped")
	logger.Warn("notification failed", "id", 7)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "notification failed", rec["msg"])
	assert.Equal(t, float64(7), rec["id"])
}

func TestSetupWithoutOTLPUsesConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, shutdown, err := Setup(context.Background(), &buf, config.Logging{Level: "info", Format: "text"})
	require.NoError(t, err)
	logger.Info("ready")
	assert.Contains(t, buf.String(), "msg=ready")
	assert.NoError(t, shutdown(context.Background()))
}
