package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jilio/shapes/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseVerbosity(t *testing.T) {
	cases := map[string]zapcore.Level{
		"silent":       zapcore.FatalLevel,
		"exception":    zapcore.ErrorLevel,
		"WARNING":      zapcore.WarnLevel,
		"status_local": zapcore.InfoLevel,
		"status_all":   zapcore.DebugLevel,
		"0":            zapcore.FatalLevel,
		"5":            zapcore.DebugLevel,
		"debug":        zapcore.DebugLevel,
		" error ":      zapcore.ErrorLevel,
	}
	for input, want := range cases {
		got, err := ParseVerbosity(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseVerbosity("6")
	assert.ErrorContains(t, err, "out of range")

	_, err = ParseVerbosity("chatty")
	assert.ErrorContains(t, err, "unknown verbosity")
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shapes.log")

	logger, err := New(config.LoggingConfig{Level: "info", Format: "json", File: path})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("Writing a RED square", zap.Int("x", -14))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Writing a RED square", entry["msg"])
	assert.EqualValues(t, -14, entry["x"])
}

func TestNewConsoleFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")

	logger, err := New(config.LoggingConfig{Level: "status_all", File: path})
	require.NoError(t, err)

	logger.Debug("polling store")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DEBUG")
	assert.Contains(t, string(data), "polling store")
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestForScreen(t *testing.T) {
	logger, err := ForScreen(config.LoggingConfig{Level: "debug"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel), "screen logger without file must be a no-op")

	path := filepath.Join(t.TempDir(), "sub.log")
	logger, err = ForScreen(config.LoggingConfig{Level: "debug", File: path})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}
