package scheduler

import (
	"time"

	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	// DriftGrace is how long past period end a paid profile may go without
	// a webhook before the sweep asks the billing provider directly.
	DriftGrace time.Duration
	JobTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 5 * time.Minute,
		BatchSize:   50,
		DriftGrace:  24 * time.Hour,
		JobTimeout:  2 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Scheduler.RunInterval,
		BatchSize:   cfg.Scheduler.BatchSize,
		DriftGrace:  cfg.Scheduler.DriftGrace,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.DriftGrace <= 0 {
		c.DriftGrace = defaults.DriftGrace
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
