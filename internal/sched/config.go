package sched

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

// Config mirrors original_source's SchedulerConfig: compile-time
// (Go: hard-coded) defaults overlaid by GVT_* environment variables,
// with no functional options: Go code calling this package constructs
// Config as a plain struct literal. No constructor in this module takes
// functional options (reactor.New and Runtime.Bind take positional
// arguments).
type Config struct {
	NumWorkers            int
	NumLowPriorityWorkers int
	MaxVThreads           int
	TimeSlice             time.Duration
	GracePeriod           time.Duration
	TimerInterval         time.Duration
	EnableForcedPreempt   bool
	DebugLogging          bool
	LocalQueueCapacity    int
	GlobalQueueCapacity   int
	IdleSpins             uint32
	ParkTimeout           time.Duration
	MaxSlots              int
}

// DefaultConfig returns the compile-time defaults, no environment
// overlay applied.
func DefaultConfig() Config {
	return Config{
		NumWorkers:            runtime.NumCPU(),
		NumLowPriorityWorkers: 0,
		MaxVThreads:           65536,
		TimeSlice:             10 * time.Millisecond,
		GracePeriod:           5 * time.Millisecond,
		TimerInterval:         1 * time.Millisecond,
		EnableForcedPreempt:   true,
		DebugLogging:          false,
		LocalQueueCapacity:    localCapacity,
		GlobalQueueCapacity:   65536,
		IdleSpins:             100,
		ParkTimeout:           10 * time.Millisecond,
		MaxSlots:              65536,
	}
}

// FromEnv returns DefaultConfig overlaid with any GVT_* environment
// variables present, in the priority order original_source's
// config/mod.rs documents: env > library defaults.
func FromEnv() Config {
	c := DefaultConfig()
	c.NumWorkers = envInt("GVT_NUM_WORKERS", c.NumWorkers)
	c.NumLowPriorityWorkers = envInt("GVT_NUM_LOW_PRIORITY_WORKERS", c.NumLowPriorityWorkers)
	c.MaxVThreads = envInt("GVT_MAX_GVTHREADS", c.MaxVThreads)
	c.TimeSlice = envDurationMS("GVT_TIME_SLICE_MS", c.TimeSlice)
	c.GracePeriod = envDurationMS("GVT_GRACE_PERIOD_MS", c.GracePeriod)
	c.TimerInterval = envDurationMS("GVT_TIMER_INTERVAL_MS", c.TimerInterval)
	c.EnableForcedPreempt = envBool("GVT_ENABLE_FORCED_PREEMPT", c.EnableForcedPreempt)
	c.DebugLogging = envBool("GVT_DEBUG", c.DebugLogging)
	c.LocalQueueCapacity = envInt("GVT_LOCAL_QUEUE_CAPACITY", c.LocalQueueCapacity)
	c.GlobalQueueCapacity = envInt("GVT_GLOBAL_QUEUE_CAPACITY", c.GlobalQueueCapacity)
	c.IdleSpins = uint32(envInt("GVT_IDLE_SPINS", int(c.IdleSpins)))
	c.ParkTimeout = envDurationMS("GVT_PARK_TIMEOUT_MS", c.ParkTimeout)
	c.MaxSlots = envInt("GVT_MAX_SLOTS", c.MaxSlots)
	return c
}

func envInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n != 0
}

func envDurationMS(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(n) * time.Millisecond
}

// Validate reports a descriptive error for any out-of-range field,
// matching original_source's validate()'s bounds.
func (c Config) Validate() error {
	if c.NumWorkers <= 0 {
		return fmt.Errorf("sched: NumWorkers must be > 0")
	}
	if c.NumWorkers > 256 {
		return fmt.Errorf("sched: NumWorkers must be <= 256")
	}
	if c.NumLowPriorityWorkers >= c.NumWorkers {
		return fmt.Errorf("sched: NumLowPriorityWorkers must be < NumWorkers")
	}
	if c.MaxVThreads <= 0 {
		return fmt.Errorf("sched: MaxVThreads must be > 0")
	}
	if c.LocalQueueCapacity <= 0 {
		return fmt.Errorf("sched: LocalQueueCapacity must be > 0")
	}
	if c.GlobalQueueCapacity <= 0 {
		return fmt.Errorf("sched: GlobalQueueCapacity must be > 0")
	}
	if c.MaxSlots <= 0 {
		return fmt.Errorf("sched: MaxSlots must be > 0")
	}
	return nil
}
