// Package logging is a thin facade over go.uber.org/zap: a leveled,
// per-component logger (WithComponent, leveled methods) backed by a
// real structured logging sink rather than an ad hoc JSON writer.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel is this facade's level vocabulary, mapped onto zap's.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case INFO:
		return zapcore.InfoLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger is a component-scoped structured logger.
type Logger struct {
	z         *zap.Logger
	component string
}

// New builds a root Logger writing level and above as JSON to stdout
// when json is true, or a human-readable console encoding otherwise.
func New(level LogLevel, json bool) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	if !json {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{z: z}, nil
}

// NewNop returns a Logger that discards everything, for tests that
// exercise code paths requiring a non-nil logger but don't care about
// its output.
func NewNop() *Logger {
	return &Logger{z: zap.NewNop()}
}

// WithComponent returns a child Logger tagging every entry with
// component, e.g. "subscription", "storage", "wire".
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{z: l.z.With(zap.String("component", component)), component: component}
}

// Sync flushes any buffered log entries. Callers should defer it from
// main after constructing the root Logger.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...zap.Field) { l.z.Fatal(msg, fields...) }
