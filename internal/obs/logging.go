// Package obs holds the small cross-cutting concerns shared by every
// internal package: the leveled logger interface, its implementations
// and the package-level default logger. Kept separate from the root
// gvthread package so internal/sched, internal/timer and
// internal/reactor can log without importing the public API package
// that in turn imports them.
package obs

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Logger is a small leveled logging interface, grounded in
// joeycumines-go-utilpkg/eventloop's package-level Logger pattern but
// trimmed to printf-style methods since this module has no structured
// field/category model to carry.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NoopLogger discards everything; it is the default so a Runtime
// built without SetLogger never pays for formatting disabled messages.
type NoopLogger struct{}

func (NoopLogger) Debugf(string, ...any) {}
func (NoopLogger) Infof(string, ...any)  {}
func (NoopLogger) Warnf(string, ...any)  {}
func (NoopLogger) Errorf(string, ...any) {}

// StdLogger is a minimal Logger writing to whatever Printf-shaped sink
// is given it (typically log.Default()); DebugEnabled gates Debugf so
// hot-path preemption/scheduling traces don't format unless asked for.
type StdLogger struct {
	Printf       func(format string, args ...any)
	DebugEnabled bool
}

func (l *StdLogger) Debugf(format string, args ...any) {
	if l.DebugEnabled {
		l.Printf("DEBUG "+format, args...)
	}
}
func (l *StdLogger) Infof(format string, args ...any)  { l.Printf("INFO "+format, args...) }
func (l *StdLogger) Warnf(format string, args ...any)  { l.Printf("WARN "+format, args...) }
func (l *StdLogger) Errorf(format string, args ...any) { l.Printf("ERROR "+format, args...) }

var global struct {
	sync.RWMutex
	logger Logger
}
var globalSet atomic.Bool

// SetLogger installs the package-level logger used by any internal
// component that isn't handed an explicit Logger (e.g. the timer
// goroutine's own diagnostics).
func SetLogger(l Logger) {
	global.Lock()
	defer global.Unlock()
	global.logger = l
	globalSet.Store(l != nil)
}

// Global returns the installed logger, or NoopLogger if none was set.
func Global() Logger {
	if !globalSet.Load() {
		return NoopLogger{}
	}
	global.RLock()
	defer global.RUnlock()
	return global.logger
}

// Fallback wraps fmt.Sprintf for components that want a one-off string
// without routing through a Logger (e.g. building an error message).
func Fallback(format string, args ...any) string { return fmt.Sprintf(format, args...) }
