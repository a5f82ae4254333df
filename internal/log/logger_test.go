package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})

	WithSandbox(WithComponent(logger, "bundler"), "sb-1").Info("build started", EntryKey, "/index.ts")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "build started", record["msg"])
	assert.Equal(t, "bundler", record["component"])
	assert.Equal(t, "sb-1", record[SandboxIDKey])
	assert.Equal(t, "/index.ts", record[EntryKey])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SANDLOT_DEBUG", "1")
	cfg := FromEnv()
	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.AddSource)

	t.Setenv("SANDLOT_DEBUG", "")
	t.Setenv("SANDLOT_LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "text")
	cfg = FromEnv()
	assert.Equal(t, "error", cfg.Level)
	assert.Equal(t, FormatText, cfg.Format)
}
