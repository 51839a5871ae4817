package gvthread

import "github.com/kestrelrun/gvthread/internal/obs"

// Logger is re-exported from internal/obs so callers configuring a
// Runtime never need to import an internal package directly.
type Logger = obs.Logger

// StdLogger is re-exported from internal/obs.
type StdLogger = obs.StdLogger

// NoopLogger is re-exported from internal/obs.
type NoopLogger = obs.NoopLogger

// SetLogger installs the process-wide default logger used by any
// Runtime constructed without an explicit Config.Logger.
func SetLogger(l Logger) { obs.SetLogger(l) }
