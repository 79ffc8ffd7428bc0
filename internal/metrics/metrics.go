// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Task metrics
	IncTaskCreated()
	IncTaskUpdated()
	IncTaskDeleted()
	IncTaskListed()
	ObserveTaskListDuration(duration time.Duration)

	// User metrics
	IncUserCreated()
	IncUserListed()

	// Access metrics
	IncAuthFailure()
	IncRateLimited()
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
