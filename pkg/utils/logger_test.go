package utils

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
		level zapcore.Level
	}{
		{"debug", true, zapcore.DebugLevel},
		{"production", false, zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.debug)
			if err != nil {
				t.Fatalf("NewLogger(%v) error: %v", tt.debug, err)
			}
			if !logger.Core().Enabled(tt.level) {
				t.Errorf("level %s should be enabled", tt.level)
			}
			if !tt.debug && logger.Core().Enabled(zapcore.DebugLevel) {
				t.Error("production logger should not log debug")
			}
			_ = logger.Sync()
		})
	}
}

func TestNewLoggerOrNop(t *testing.T) {
	if NewLoggerOrNop(false) == nil {
		t.Fatal("NewLoggerOrNop returned nil")
	}
}
