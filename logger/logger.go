// Package logger provides a leveled logger on top of log/slog with support for
// "no flood" messages, which are emitted at most once per key until the key is
// removed again.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type floodGuard struct {
	sync.Mutex
	seen map[string]struct{}
}

// first reports whether key has not been seen before and marks it as seen.
func (g *floodGuard) first(key string) bool {
	g.Lock()
	defer g.Unlock()
	if _, ok := g.seen[key]; ok {
		return false
	}
	g.seen[key] = struct{}{}
	return true
}

type Logger struct {
	base  *slog.Logger
	guard *floodGuard
}

// New wraps base. A nil base uses slog.Default().
func New(base *slog.Logger) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{
		base:  base,
		guard: &floodGuard{seen: make(map[string]struct{})},
	}
}

var (
	defaultOnce   sync.Once
	defaultLogger *Logger
)

// Default returns a process wide logger writing through slog.Default().
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLogger = New(nil)
	})
	return defaultLogger
}

// NewText builds a logger writing text records to stderr at the given level
// ("debug", "info", "warn" or "error").
func NewText(level string) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: ParseLevel(level)})
	return New(slog.New(handler))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a logger carrying the extra attributes. The no flood keys are
// shared with the parent.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		base:  l.base.With(args...),
		guard: l.guard,
	}
}

func (l *Logger) Slog() *slog.Logger {
	return l.base
}

func (l *Logger) Enabled(level slog.Level) bool {
	return l.base.Enabled(context.Background(), level)
}

func (l *Logger) Error(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err)
	}
	l.base.Error(msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.base.Warn(msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.base.Info(msg, args...)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.base.Debug(msg, args...)
}

// NoFloodError logs the error only if nothing has been logged with key before.
// An empty key uses the message itself as the key.
func (l *Logger) NoFloodError(key, msg string, err error, args ...any) {
	if l.guard.first(floodKey(key, msg)) {
		l.Error(msg, err, args...)
	}
}

func (l *Logger) NoFloodWarn(key, msg string, args ...any) {
	if l.guard.first(floodKey(key, msg)) {
		l.Warn(msg, args...)
	}
}

func (l *Logger) NoFloodInfo(key, msg string, args ...any) {
	if l.guard.first(floodKey(key, msg)) {
		l.Info(msg, args...)
	}
}

func (l *Logger) NoFloodDebug(key, msg string, args ...any) {
	if l.guard.first(floodKey(key, msg)) {
		l.Debug(msg, args...)
	}
}

// ClearNoFlood forgets every key, allowing all no flood messages to be logged again.
func (l *Logger) ClearNoFlood() {
	l.guard.Lock()
	defer l.guard.Unlock()
	l.guard.seen = make(map[string]struct{})
}

func (l *Logger) RemoveNoFloodKey(key string) {
	l.guard.Lock()
	defer l.guard.Unlock()
	delete(l.guard.seen, key)
}

func floodKey(key, msg string) string {
	if key == "" {
		return msg
	}
	return key
}
