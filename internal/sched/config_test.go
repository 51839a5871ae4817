package sched

import (
	"os"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig() should validate, got %v", err)
	}
}

func TestValidateRejectsOutOfRangeFields(t *testing.T) {
	base := DefaultConfig()

	cases := []struct {
		name   string
		mutate func(c Config) Config
	}{
		{"zero workers", func(c Config) Config { c.NumWorkers = 0; return c }},
		{"too many workers", func(c Config) Config { c.NumWorkers = 257; return c }},
		{"low priority workers >= total", func(c Config) Config { c.NumLowPriorityWorkers = c.NumWorkers; return c }},
		{"zero max vthreads", func(c Config) Config { c.MaxVThreads = 0; return c }},
		{"zero local capacity", func(c Config) Config { c.LocalQueueCapacity = 0; return c }},
		{"zero global capacity", func(c Config) Config { c.GlobalQueueCapacity = 0; return c }},
		{"zero max slots", func(c Config) Config { c.MaxSlots = 0; return c }},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.mutate(base).Validate(); err == nil {
				t.Fatalf("expected Validate() error for %s", tt.name)
			}
		})
	}
}

func TestFromEnvOverlaysDefaults(t *testing.T) {
	t.Setenv("GVT_NUM_WORKERS", "3")
	t.Setenv("GVT_TIME_SLICE_MS", "25")
	t.Setenv("GVT_ENABLE_FORCED_PREEMPT", "0")
	os.Unsetenv("GVT_MAX_GVTHREADS")

	c := FromEnv()
	if c.NumWorkers != 3 {
		t.Errorf("NumWorkers = %d, want 3", c.NumWorkers)
	}
	if c.TimeSlice != 25*time.Millisecond {
		t.Errorf("TimeSlice = %v, want 25ms", c.TimeSlice)
	}
	if c.EnableForcedPreempt {
		t.Error("EnableForcedPreempt = true, want false")
	}
	if c.MaxVThreads != DefaultConfig().MaxVThreads {
		t.Errorf("MaxVThreads = %d, want default %d", c.MaxVThreads, DefaultConfig().MaxVThreads)
	}
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("GVT_NUM_WORKERS", "not-a-number")
	c := FromEnv()
	if c.NumWorkers != DefaultConfig().NumWorkers {
		t.Errorf("NumWorkers = %d, want default %d on malformed env", c.NumWorkers, DefaultConfig().NumWorkers)
	}
}
