// Package logging provides config-driven, categorized structured logging
// built on zap. Every subsystem (broker, registry, store, attention,
// eventbus, syncindex) pulls a child logger scoped to its own category so
// log lines can be filtered per component without touching call sites.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names the subsystem emitting a log line.
type Category string

const (
	CategoryBroker     Category = "broker"
	CategoryRegistry   Category = "registry"
	CategoryStore      Category = "store"
	CategoryAttention  Category = "attention"
	CategoryEventBus   Category = "eventbus"
	CategorySyncIndex  Category = "syncindex"
	CategoryCLI        Category = "cli"
	CategoryHTTP       Category = "http"
	CategoryScheduler  Category = "scheduler"
)

var (
	mu      sync.RWMutex
	base    *zap.Logger
	loggers = make(map[Category]*zap.SugaredLogger)
)

// Init installs the base zap logger used to derive all category loggers.
// debug selects development-style console encoding with debug level;
// otherwise a production JSON encoder at info level is used.
func Init(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build zap logger: %w", err)
	}

	mu.Lock()
	base = l
	loggers = make(map[Category]*zap.SugaredLogger)
	mu.Unlock()
	return nil
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

// Get returns the sugared logger for a category, lazily deriving it from
// the base logger. If Init was never called, a no-op discard logger is
// used so callers never need a nil check.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	b := base
	mu.RUnlock()

	if b == nil {
		b = zap.NewNop()
	}

	sugared := b.With(zap.String("category", string(category))).Sugar()

	mu.Lock()
	loggers[category] = sugared
	mu.Unlock()
	return sugared
}
