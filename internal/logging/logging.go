// Package logging configures the application's slog loggers: a default
// text logger on stderr for interactive use and optional per-service
// JSON file loggers with rotation.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

var defaultLevelVar = new(slog.LevelVar)

// Init initializes the default logger writing human-readable output to
// stderr. The level can be changed later with SetLevel.
func Init() {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: defaultLevelVar,
	})
	slog.SetDefault(slog.New(handler))
}

// SetLevel sets the minimum level for the default logger.
func SetLevel(level slog.Level) {
	defaultLevelVar.Set(level)
}

// ParseLevel converts a string log level to slog.Level. Invalid or
// empty values default to Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ForService returns a child of the default logger carrying a service
// attribute, for packages that do not need their own log file.
func ForService(service string) *slog.Logger {
	return slog.Default().With("service", service)
}

// NewFileLogger creates a slog.Logger writing JSON logs to filePath,
// rotated by lumberjack. All records carry a 'service' attribute.
// It returns the logger, a close function for the underlying writer,
// and an error if the log directory cannot be created.
func NewFileLogger(filePath, service string, level slog.Leveler) (*slog.Logger, func() error, error) {
	// lumberjack does not create directories
	logDir := filepath.Dir(filePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	logWriter := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    100, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}

	handler := slog.NewJSONHandler(logWriter, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With("service", service)

	return logger, logWriter.Close, nil
}
