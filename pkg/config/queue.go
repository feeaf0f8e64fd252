package config

import "time"

// QueueConfig controls the tuning of Cortex's background loops (the Poller
// and the Scheduler) and of shutdown. Matched runs are executed inline by
// the Matcher; there is no run worker pool. Named QueueConfig (not PollerConfig) to keep the
// teacher's single umbrella-tuning-struct shape even though Cortex has no
// session queue of its own.
type QueueConfig struct {
	// PollerInterval is the base tick interval for the Poller's per-provider
	// pull loop (spec.md §4.3).
	PollerInterval time.Duration `yaml:"poller_interval"`

	// SchedulerInterval is the tick interval the Scheduler uses to scan the
	// wait queue for due resumes (spec.md §4.8).
	SchedulerInterval time.Duration `yaml:"scheduler_interval"`

	// WorkerCount is a run worker-count setting, validated to lie in
	// 1..50. No component reads it: matched runs execute on the caller's
	// goroutine.
	WorkerCount int `yaml:"worker_count"`

	// GracefulShutdownTimeout bounds how long the HTTP server's Shutdown
	// waits for in-flight requests. Poller.Stop and Scheduler.Stop, called
	// afterwards, wait for their in-flight tick without a time limit.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultQueueConfig returns the built-in queue/loop tuning defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		PollerInterval:          60 * time.Second,
		SchedulerInterval:       60 * time.Second,
		WorkerCount:             4,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}
