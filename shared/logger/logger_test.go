package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, config *Config) (*Logger, *bytes.Buffer) {
	t.Helper()

	output := &bytes.Buffer{}
	config.writer = output

	logger, err := New(config)
	require.NoError(t, err)
	require.NotNil(t, logger)
	return logger, output
}

func TestNew_JSONFormat(t *testing.T) {
	logger, output := newTestLogger(t, &Config{Level: "debug", Format: "json"})

	logger.Debug("queue bind", slog.String("queue", "video.jobs"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(output.Bytes(), &entry))
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "queue bind", entry["msg"])
	assert.Equal(t, "video.jobs", entry["queue"])
	assert.Contains(t, entry, "time")
}

func TestNew_LevelFiltersLowerRecords(t *testing.T) {
	logger, output := newTestLogger(t, &Config{Level: "warn", Format: "json"})

	logger.Info("dropped")
	logger.Warn("kept", slog.String("reason", "timeout"))

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "kept", entry["msg"])
}

func TestNew_ConsoleFormat(t *testing.T) {
	logger, output := newTestLogger(t, &Config{
		Level:      "info",
		Format:     "console",
		TimeFormat: time.RFC3339,
	})

	logger.Info("console test")

	// tint renders the level as "INF".
	assert.Contains(t, output.String(), "INF")
	assert.Contains(t, output.String(), "console test")
}

func TestNew_SourceLocation(t *testing.T) {
	logger, output := newTestLogger(t, &Config{
		Level:        "info",
		Format:       "json",
		EnableSource: true,
	})

	logger.Info("message with source")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(output.Bytes(), &entry))
	require.Contains(t, entry, "source")
	source := entry["source"].(map[string]interface{})
	assert.Contains(t, source, "file")
	assert.Contains(t, source, "line")
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{level: "debug", expected: slog.LevelDebug},
		{level: "info", expected: slog.LevelInfo},
		{level: "warn", expected: slog.LevelWarn},
		{level: "warning", expected: slog.LevelWarn},
		{level: "error", expected: slog.LevelError},
		{level: "DEBUG", expected: slog.LevelDebug},
		{level: "invalid", expected: slog.LevelInfo},
		{level: "", expected: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run("level "+tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}
