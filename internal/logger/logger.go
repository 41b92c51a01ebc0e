// Package logger holds the process-wide structured logger.
package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log = zap.NewNop()
)

// Init builds the process logger. format is "json" or "console".
func Init(level, format string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	set(l)
	return nil
}

// SetForTest replaces the process logger and restores the previous one on cleanup.
func SetForTest(t interface{ Cleanup(func()) }, l *zap.Logger) {
	mu.RLock()
	prev := log
	mu.RUnlock()
	set(l)
	t.Cleanup(func() { set(prev) })
}

func set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

// L returns the current logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Sync flushes buffered entries.
func Sync() {
	_ = L().Sync()
}

// Debug logs debug level messages.
func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

// Info logs info level messages.
func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

// Warning logs warning messages.
func Warning(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

// Error logs error messages.
// Pass the error itself as zap.Error(err).
func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}
