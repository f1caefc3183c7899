package watch

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestParseLogLevel(t *testing.T) {
	testCases := []struct {
		input string
		want  LogLevel
	}{
		{"error", LogLevelError},
		{"WARN", LogLevelWarn},
		{"warning", LogLevelWarn},
		{" info ", LogLevelInfo},
		{"debug", LogLevelDebug},
	}
	for _, tc := range testCases {
		got, err := ParseLogLevel(tc.input)
		if err != nil {
			t.Errorf("ParseLogLevel(%q): %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %s, expected %s", tc.input, got, tc.want)
		}
	}
	if _, err := ParseLogLevel("loud"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	testCases := []struct {
		level   LogLevel
		enabled zap.AtomicLevel
	}{
		{LogLevelError, zap.NewAtomicLevelAt(zap.ErrorLevel)},
		{LogLevelWarn, zap.NewAtomicLevelAt(zap.WarnLevel)},
		{LogLevelInfo, zap.NewAtomicLevelAt(zap.InfoLevel)},
		{LogLevelDebug, zap.NewAtomicLevelAt(zap.DebugLevel)},
	}
	for _, tc := range testCases {
		logger := NewLogger(tc.level)
		if logger == nil {
			t.Fatalf("NewLogger(%s) returned nil", tc.level)
		}
		if got := logger.Level(); got != tc.enabled.Level() {
			t.Errorf("NewLogger(%s) level = %s, expected %s", tc.level, got, tc.enabled.Level())
		}
	}
}
