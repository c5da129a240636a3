// Package logging provides the structured logger used throughout the
// control plane. Every call site names the emitting subsystem first,
// mirroring the convention used across this codebase's engines
// (orchestrator, audit, sync) so log lines can be grepped by component.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Level mirrors slog's levels but gives the rest of the module a small,
// stable vocabulary instead of importing log/slog everywhere.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// Init configures the package-level logger. Called once at daemon startup.
func Init(level Level, output io.Writer) {
	if output == nil {
		output = os.Stderr
	}
	defaultLogger = slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: level.slogLevel(),
	}))
}

// Debug logs a debug-level message attributed to component.
func Debug(component, format string, args ...any) {
	defaultLogger.Debug(sprintf(format, args...), "component", component)
}

// Info logs an info-level message attributed to component.
func Info(component, format string, args ...any) {
	defaultLogger.Info(sprintf(format, args...), "component", component)
}

// Warn logs a warn-level message attributed to component.
func Warn(component, format string, args ...any) {
	defaultLogger.Warn(sprintf(format, args...), "component", component)
}

// Error logs an error-level message attributed to component, carrying err
// as a structured attribute rather than interpolating it into the message.
func Error(component string, err error, format string, args ...any) {
	msg := sprintf(format, args...)
	if err != nil {
		defaultLogger.Error(msg, "component", component, "error", err)
		return
	}
	defaultLogger.Error(msg, "component", component)
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
