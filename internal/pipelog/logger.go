// Package pipelog is the pipeline's own logging policy: a thin gate in
// front of a shared slog.Logger. ERROR and WARN always emit; INFO is gated
// on the verbose switch and DEBUG on the debug switch, independently of
// each other — turning on debug logging doesn't silently turn on every INFO
// line too, and vice versa.
package pipelog

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps a *slog.Logger with the pipeline's four-level gate. The
// underlying handler still does its own level filtering (set permissively,
// since pipelog does the real gating here) — this type exists so call
// sites never have to think about verbose/debug themselves.
type Logger struct {
	base    *slog.Logger
	verbose bool
	debug   bool
}

// New builds a Logger over base (or a default JSON handler on os.Stdout if
// base is nil).
func New(base *slog.Logger, verbose, debug bool) *Logger {
	if base == nil {
		base = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	return &Logger{base: base, verbose: verbose, debug: debug}
}

// Error always emits, regardless of the verbose/debug switches.
func (l *Logger) Error(msg string, args ...any) {
	l.base.Error(msg, args...)
}

// Warn always emits, regardless of the verbose/debug switches.
func (l *Logger) Warn(msg string, args ...any) {
	l.base.Warn(msg, args...)
}

// Info emits only when verbose is enabled.
func (l *Logger) Info(msg string, args ...any) {
	if !l.verbose {
		return
	}

	l.base.Info(msg, args...)
}

// Debug emits only when debug is enabled.
func (l *Logger) Debug(msg string, args ...any) {
	if !l.debug {
		return
	}

	l.base.Debug(msg, args...)
}

// With returns a Logger that carries the same gate but prefixes every
// record with the given attributes, mirroring slog.Logger.With.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{base: l.base.With(args...), verbose: l.verbose, debug: l.debug}
}

// Slog exposes the underlying *slog.Logger for components that take a
// *slog.Logger directly (internal/orchestrator, internal/reprocessing,
// internal/rules) rather than a *pipelog.Logger — those components log at
// WARN/ERROR almost exclusively, so the ungated logger is equivalent for
// them, and it avoids forcing every package in the module onto this type.
func (l *Logger) Slog() *slog.Logger {
	return l.base
}

// ErrorContext and friends exist for call sites already holding a ctx,
// matching slog's own ...Context method set.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.base.ErrorContext(ctx, msg, args...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.base.WarnContext(ctx, msg, args...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	if !l.verbose {
		return
	}

	l.base.InfoContext(ctx, msg, args...)
}

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	if !l.debug {
		return
	}

	l.base.DebugContext(ctx, msg, args...)
}
