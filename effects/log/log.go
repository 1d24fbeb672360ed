// Package log builds the zap loggers used across the engine and stores.
package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel defines the severity level for log messages.
type LogLevel string

const (
	// LogInfo is used for general informational messages.
	LogInfo LogLevel = "info"

	// LogWarn is used for potentially harmful situations.
	LogWarn LogLevel = "warn"

	// LogError is used for error events that might still allow the application to continue running.
	LogError LogLevel = "error"

	// LogDebug is used for debugging messages with detailed internal information.
	LogDebug LogLevel = "debug"
)

// ParseLevel maps a LogLevel onto a zap level. The empty level means info.
func ParseLevel(level LogLevel) (zapcore.Level, error) {
	switch LogLevel(strings.ToLower(string(level))) {
	case LogDebug:
		return zap.DebugLevel, nil
	case LogInfo, "":
		return zap.InfoLevel, nil
	case LogWarn:
		return zap.WarnLevel, nil
	case LogError:
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// New builds a production (JSON) logger, or a console logger for development.
func New(level LogLevel, development bool) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	if development {
		return NewConsole(lvl), nil
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
