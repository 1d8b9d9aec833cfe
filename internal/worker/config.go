package worker

import (
	"fmt"
	"time"
)

// Config holds the configuration for the comparison recalculation worker.
type Config struct {
	// Interval is how often the worker scans for stale comparisons.
	// Default: 1 hour
	Interval time.Duration

	// BatchSize is the maximum number of comparisons recalculated per scan.
	// Default: 50
	BatchSize int

	// JobTimeout is the maximum time one recalculation is allowed to run.
	// Default: 2 minutes
	JobTimeout time.Duration

	// ShutdownTimeout is how long to wait for a running scan to finish
	// during graceful shutdown.
	// Default: 30 seconds
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Interval:        time.Hour,
		BatchSize:       50,
		JobTimeout:      2 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Interval < time.Second {
		return fmt.Errorf("interval must be at least 1 second, got %v", c.Interval)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.BatchSize)
	}
	if c.BatchSize > 1000 {
		return fmt.Errorf("batch size too high (max 1000), got %d", c.BatchSize)
	}
	if c.JobTimeout < time.Second {
		return fmt.Errorf("job timeout must be at least 1 second, got %v", c.JobTimeout)
	}
	if c.ShutdownTimeout < time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	}
	return nil
}
