// Package logger provides structured logging using Zap.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	sugar *zap.SugaredLogger
	once  sync.Once
)

// New builds a sugared logger for the given environment. "production" uses
// the JSON encoder at info level; anything else uses the console encoder
// with debug output.
func New(env string) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return base.Sugar(), nil
}

// Init initializes the global logger for the given environment.
func Init(env string) {
	once.Do(func() {
		l, err := New(env)
		if err != nil {
			l = zap.NewNop().Sugar()
		}
		Replace(l)
	})
}

// Replace swaps the global logger. Tests use it with zaptest/observer.
func Replace(l *zap.SugaredLogger) {
	mu.Lock()
	defer mu.Unlock()
	sugar = l
}

// Get returns the global sugared logger.
// If Init has not been called, it initializes a development logger.
func Get() *zap.SugaredLogger {
	mu.RLock()
	l := sugar
	mu.RUnlock()
	if l == nil {
		Init("development")
		mu.RLock()
		l = sugar
		mu.RUnlock()
	}
	return l
}

// Job returns a logger tagged with the job name, used by scheduled steps.
func Job(name string) *zap.SugaredLogger {
	return Get().With("job", name)
}

// Sync flushes any buffered log entries. Call this before application exit.
func Sync() {
	if l := Get(); l != nil {
		_ = l.Sync()
	}
}
