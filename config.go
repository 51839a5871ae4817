package gvthread

import (
	"github.com/kestrelrun/gvthread/internal/obs"
	"github.com/kestrelrun/gvthread/internal/sched"
)

// Config is the flat settings struct Runtime.New consumes. It embeds
// sched.Config directly rather than re-declaring its fields, and adds
// the reactor's SQEntries and a Logger. The defaults are the ones
// sched.DefaultConfig sets (for example NumLowPriorityWorkers 0,
// MaxVThreads 65536, GracePeriod 5ms, IdleSpins 100, ParkTimeout
// 10ms); there is no stack-size field, and DebugLogging and MaxSlots
// have no counterpart in §6's option table.
type Config struct {
	sched.Config

	// SQEntries is the per-worker io_uring submission queue depth (§6's
	// sq_entries, default 1024); the kernel rounds it up to the next
	// power of two when the ring is set up.
	SQEntries uint32

	// Logger receives diagnostics from every internal component. A nil
	// Logger is replaced by obs.NoopLogger.
	Logger obs.Logger
}

// DefaultConfig returns the compile-time defaults from every layer:
// internal/sched.DefaultConfig plus the reactor's sq_entries default.
func DefaultConfig() Config {
	return Config{
		Config:    sched.DefaultConfig(),
		SQEntries: 1024,
	}
}

// FromEnv overlays DefaultConfig with GVT_* environment variables,
// matching §6's "environment variables with a fixed prefix may override
// each option at process startup".
func FromEnv() Config {
	c := DefaultConfig()
	c.Config = sched.FromEnv()
	return c
}

// Validate reports a descriptive error for any out-of-range field.
func (c Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if c.SQEntries == 0 {
		return newError(KindState, nil, "SQEntries must be > 0")
	}
	return nil
}

func (c Config) logger() obs.Logger {
	if c.Logger == nil {
		return obs.NoopLogger{}
	}
	return c.Logger
}
