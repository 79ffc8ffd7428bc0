package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	TasksCreated            uint64
	TasksUpdated            uint64
	TasksDeleted            uint64
	TaskListRequests        uint64
	TaskListDurationCount   uint64
	TaskListDurationTotalNs int64
	UsersCreated            uint64
	UserListRequests        uint64
	AuthFailures            uint64
	RateLimited             uint64
}

// InMemoryRecorder stores metrics in memory.
type InMemoryRecorder struct {
	tasksCreated            atomic.Uint64
	tasksUpdated            atomic.Uint64
	tasksDeleted            atomic.Uint64
	taskListRequests        atomic.Uint64
	taskListDurationCount   atomic.Uint64
	taskListDurationTotalNs atomic.Int64
	usersCreated            atomic.Uint64
	userListRequests        atomic.Uint64
	authFailures            atomic.Uint64
	rateLimited             atomic.Uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		TasksCreated:            m.tasksCreated.Load(),
		TasksUpdated:            m.tasksUpdated.Load(),
		TasksDeleted:            m.tasksDeleted.Load(),
		TaskListRequests:        m.taskListRequests.Load(),
		TaskListDurationCount:   m.taskListDurationCount.Load(),
		TaskListDurationTotalNs: m.taskListDurationTotalNs.Load(),
		UsersCreated:            m.usersCreated.Load(),
		UserListRequests:        m.userListRequests.Load(),
		AuthFailures:            m.authFailures.Load(),
		RateLimited:             m.rateLimited.Load(),
	}
}

// IncTaskCreated increments the task created counter.
func (m *InMemoryRecorder) IncTaskCreated() { m.tasksCreated.Add(1) }

// IncTaskUpdated increments the task updated counter.
func (m *InMemoryRecorder) IncTaskUpdated() { m.tasksUpdated.Add(1) }

// IncTaskDeleted increments the task deleted counter.
func (m *InMemoryRecorder) IncTaskDeleted() { m.tasksDeleted.Add(1) }

// IncTaskListed increments the task list counter.
func (m *InMemoryRecorder) IncTaskListed() { m.taskListRequests.Add(1) }

// ObserveTaskListDuration records how long a task list query took.
func (m *InMemoryRecorder) ObserveTaskListDuration(duration time.Duration) {
	m.taskListDurationCount.Add(1)
	m.taskListDurationTotalNs.Add(duration.Nanoseconds())
}

// IncUserCreated increments the user created counter.
func (m *InMemoryRecorder) IncUserCreated() { m.usersCreated.Add(1) }

// IncUserListed increments the user list counter.
func (m *InMemoryRecorder) IncUserListed() { m.userListRequests.Add(1) }

// IncAuthFailure increments the rejected credential counter.
func (m *InMemoryRecorder) IncAuthFailure() { m.authFailures.Add(1) }

// IncRateLimited increments the throttled request counter.
func (m *InMemoryRecorder) IncRateLimited() { m.rateLimited.Add(1) }
