// Package logging provides capgate's component-scoped logger: a thin
// wrapper around the standard library's log.Logger that prefixes every
// line with the emitting component's name and gates debug output behind a
// package-level flag, set once at startup from configuration.
package logging

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

var debugEnabled atomic.Bool

// SetDebug turns debug-level logging on or off for every Logger created via
// Component, including ones already handed out.
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

// Logger logs on behalf of a single named component (e.g. "shellexec",
// "eviltwin", "capture").
type Logger struct {
	name   string
	stdlog *log.Logger
}

// Component returns a Logger prefixed with name.
func Component(name string) *Logger {
	return &Logger{
		name:   name,
		stdlog: log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (l *Logger) printf(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.stdlog.Printf("[%s] %s: %s", level, l.name, msg)
}

// Debug logs only when debug logging has been enabled via SetDebug. It's
// where argv-level shell invocation logging lives, so a default run isn't
// noisy with every ip/iw/iptables call.
func (l *Logger) Debug(format string, args ...any) {
	if debugEnabled.Load() {
		l.printf("DEBUG", format, args...)
	}
}

// Info logs unconditionally at informational level.
func (l *Logger) Info(format string, args ...any) {
	l.printf("INFO", format, args...)
}

// Warn logs unconditionally at warning level.
func (l *Logger) Warn(format string, args ...any) {
	l.printf("WARN", format, args...)
}

// Error logs unconditionally at error level.
func (l *Logger) Error(format string, args ...any) {
	l.printf("ERROR", format, args...)
}
