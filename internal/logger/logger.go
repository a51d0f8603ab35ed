// Package logger builds the zap loggers used across the application.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the log level and output.
type Config struct {
	Level  string
	Pretty bool
	App    string
	// File redirects output away from stdout/stderr, which the terminal UI owns.
	File string
}

// New builds a logger. Unknown levels fall back to info.
func New(c Config) (*zap.Logger, error) {
	var cfg zap.Config
	if c.Pretty {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	level := new(zapcore.Level)
	if err := level.Set(c.Level); err != nil {
		*level = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(*level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if c.File != "" {
		cfg.OutputPaths = []string{c.File}
		cfg.ErrorOutputPaths = []string{c.File}
	}

	var opts []zap.Option
	if c.App != "" {
		opts = append(opts, zap.Fields(zap.String("service", c.App)))
	}
	return cfg.Build(opts...)
}

// Sync flushes l, ignoring the errors some platforms report for terminals.
func Sync(l *zap.Logger) {
	if l != nil {
		_ = l.Sync()
	}
}
