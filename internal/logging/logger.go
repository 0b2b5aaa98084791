// Package logging wraps zap for structured, component-tagged logging across
// the runtime.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.Logger with a component tag carried through WithFields.
type Logger struct {
	z *zap.Logger
}

// Config controls the process-wide logger.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string `mapstructure:"level"`
	// Format is "console" or "json". Defaults to "console".
	Format string `mapstructure:"format"`
}

var (
	defaultOnce sync.Once
	defaultLog  *Logger
)

// New builds a Logger from cfg.
func New(cfg Config) *Logger {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		_ = level.Set(cfg.Level)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	return &Logger{z: zap.New(core)}
}

// Default returns the process-wide Logger, creating an info/console one on
// first use.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLog = New(Config{Level: "info", Format: "console"})
	})
	return defaultLog
}

// SetDefault replaces the process-wide Logger.
func SetDefault(l *Logger) {
	defaultOnce.Do(func() {})
	defaultLog = l
}

// WithFields returns a child Logger carrying the given structured fields on
// every subsequent entry.
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

// Component is shorthand for WithFields(zap.String("component", name)).
func (l *Logger) Component(name string) *Logger {
	return l.WithFields(zap.String("component", name))
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.z.Sync() }
