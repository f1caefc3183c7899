package watch

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel defines the verbosity of logging.
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

var logLevelNames = []string{"error", "warn", "info", "debug"}

func (l LogLevel) String() string {
	if l < 0 || int(l) >= len(logLevelNames) {
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
	return logLevelNames[l]
}

// ParseLogLevel parses a level name such as "warn" or "DEBUG".
func ParseLogLevel(s string) (LogLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	for i, name := range logLevelNames {
		if name == s {
			return LogLevel(i), nil
		}
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q: %w", s, ErrInvalidArgument)
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelError:
		return zap.ErrorLevel
	case LogLevelWarn:
		return zap.WarnLevel
	case LogLevelDebug:
		return zap.DebugLevel
	}
	return zap.InfoLevel
}

// NewLogger creates a zap logger with the specified log level. Debug uses the
// development encoder with colored levels and caller info; every other level
// logs JSON. A logger that cannot be built degrades to a no-op logger.
func NewLogger(level LogLevel) *zap.Logger {
	config := zap.NewProductionConfig()
	if level == LogLevelDebug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.Level = zap.NewAtomicLevelAt(level.zapLevel())

	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
