// Package logger provides a global, sugared zap logger. It emits JSON to
// stdout and, when a file is configured, tees the same entries into a
// lumberjack rotating file. Until Init is called every call is a no-op, so
// library packages and tests can log freely.
package logger

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger   = zap.NewNop().Sugar()
	initOnce sync.Once
)

type config struct {
	level      string
	file       string
	maxSizeMB  int
	maxAgeDays int
}

// Option configures the logger before initialization.
type Option func(*config)

// WithLevel sets the minimum log level ("debug", "info", "warn", "error").
func WithLevel(l string) Option {
	return func(c *config) {
		c.level = l
	}
}

// WithFile additionally writes log entries to a rotating file at path.
func WithFile(path string) Option {
	return func(c *config) {
		c.file = path
	}
}

// WithRotation overrides the rotation thresholds used together with WithFile.
func WithRotation(maxSizeMB, maxAgeDays int) Option {
	return func(c *config) {
		c.maxSizeMB = maxSizeMB
		c.maxAgeDays = maxAgeDays
	}
}

// Init configures the global logger. Only the first successful call has an
// effect. It returns an error if the level cannot be parsed.
func Init(opts ...Option) error {
	cfg := config{level: "info", maxSizeMB: 100, maxAgeDays: 7}
	for _, opt := range opts {
		opt(&cfg)
	}

	level, err := zapcore.ParseLevel(cfg.level)
	if err != nil {
		return err
	}

	initOnce.Do(func() {
		encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores := []zapcore.Core{
			zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level),
		}

		if cfg.file != "" {
			rotating := &lumberjack.Logger{
				Filename: cfg.file,
				MaxSize:  cfg.maxSizeMB,
				MaxAge:   cfg.maxAgeDays,
			}
			cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotating), level))
		}

		logger = zap.New(zapcore.NewTee(cores...)).Sugar()
	})

	return nil
}

// Sync flushes buffered entries. Call it on shutdown.
func Sync() error {
	return logger.Sync()
}

// With returns a child logger carrying the given key/value pairs on every entry.
func With(keysAndValues ...any) *zap.SugaredLogger {
	return logger.With(keysAndValues...)
}

// Debug logs a debug-level message with optional key/value context.
func Debug(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Debugw(msg, keysAndValues...)
}

// Info logs an info-level message with optional key/value context.
func Info(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Infow(msg, keysAndValues...)
}

// Warn logs a warn-level message with optional key/value context.
func Warn(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Warnw(msg, keysAndValues...)
}

// Error logs an error-level message with optional key/value context.
func Error(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Errorw(msg, keysAndValues...)
}
