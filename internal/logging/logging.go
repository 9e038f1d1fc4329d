// Package logging builds the zap loggers used by the shapes commands.
package logging

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jilio/shapes/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity names accepted by --verbosity, quietest first.
var verbosities = []struct {
	name  string
	level zapcore.Level
}{
	{"silent", zapcore.FatalLevel},
	{"exception", zapcore.ErrorLevel},
	{"warning", zapcore.WarnLevel},
	{"status_local", zapcore.InfoLevel},
	{"status_remote", zapcore.InfoLevel},
	{"status_all", zapcore.DebugLevel},
}

// ParseVerbosity maps a --verbosity value to a zap level. It accepts the
// names above, their index (0-5) and plain zap level names.
func ParseVerbosity(s string) (zapcore.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	for _, v := range verbosities {
		if s == v.name {
			return v.level, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n >= len(verbosities) {
			return 0, fmt.Errorf("verbosity %d out of range 0-%d", n, len(verbosities)-1)
		}
		return verbosities[n].level, nil
	}

	level, err := zapcore.ParseLevel(s)
	if err != nil {
		return 0, fmt.Errorf("unknown verbosity %q", s)
	}
	return level, nil
}

// New builds a logger from the logging config. An empty file logs to stderr.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		var err error
		if level, err = ParseVerbosity(cfg.Level); err != nil {
			return nil, err
		}
	}

	zc := zap.NewProductionConfig()
	if cfg.Format != "json" {
		zc = zap.NewDevelopmentConfig()
		zc.Development = false
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = true
	zc.Sampling = nil
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	sink := "stderr"
	if cfg.File != "" {
		sink = cfg.File
	}
	zc.OutputPaths = []string{sink}
	zc.ErrorOutputPaths = []string{sink}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// ForScreen builds a logger for a process that owns the terminal. Without
// a log file nothing is logged, so the display is never overwritten.
func ForScreen(cfg config.LoggingConfig) (*zap.Logger, error) {
	if cfg.File == "" {
		return zap.NewNop(), nil
	}
	return New(cfg)
}
