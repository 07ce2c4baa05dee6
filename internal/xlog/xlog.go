// Package xlog provides structured logging for the entity core using
// log/slog. There is no single entrypoint guaranteed to run before the
// first log call (any package may log before main does), so the default
// is a text handler writing to stderr at Info level, and Init only
// adjusts level/output rather than bringing the logger into existence.
package xlog

import (
	"log/slog"
	"os"
	"sync"
)

var (
	logger *slog.Logger
	mu     sync.RWMutex
)

func init() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// Init reconfigures the global logger's level and destination. Safe to
// call multiple times (e.g. once after config load); never required
// before the first log call.
func Init(level slog.Level, w *os.File) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, args ...any) { current().Debug(msg, args...) }
func Info(msg string, args ...any)  { current().Info(msg, args...) }
func Warn(msg string, args ...any)  { current().Warn(msg, args...) }
func Error(msg string, args ...any) { current().Error(msg, args...) }

// With returns a logger scoped with the given attributes, e.g.
// xlog.With("entity", e.Qualified.String()).
func With(args ...any) *slog.Logger { return current().With(args...) }

// Logger returns the shared *slog.Logger instance.
func Logger() *slog.Logger { return current() }
