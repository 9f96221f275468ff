// Package logging provides structured logging for ytmp3.
// Call sites use the standard library log/slog API; records are written by a
// zap core through the zapslog bridge.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a structured logger with the specified level writing to
// w, or to stderr when w is nil. Supported levels: debug, info, warn, error.
// The production environment writes JSON, anything else writes
// human-readable console output.
func NewLogger(level, environment string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	var enc zapcore.Encoder
	if environment == "production" {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), zap.NewAtomicLevelAt(parseLevel(level)))
	return FromCore(core)
}

// FromCore wraps a zap core as a *slog.Logger.
func FromCore(core zapcore.Core) *slog.Logger {
	return slog.New(zapslog.NewHandler(core))
}

// Discard returns a logger that drops everything. Used by tests and the CLI
// when output must stay clean.
func Discard() *slog.Logger {
	return FromCore(zapcore.NewNopCore())
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// WithRequestID returns a logger with request_id attribute
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With("request_id", requestID)
}

// WithComponent returns a logger with component attribute
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// SanitizePath replaces the home directory prefix with ~.
func SanitizePath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
