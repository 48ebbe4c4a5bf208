package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a zap logger writing to stderr so command output on stdout stays parseable.
// debug selects the development encoder at debug level; otherwise JSON at info level.
func NewLogger(debug bool) (*zap.Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// NewLoggerOrNop is NewLogger falling back to a no-op logger when construction fails.
func NewLoggerOrNop(debug bool) *zap.Logger {
	logger, err := NewLogger(debug)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
