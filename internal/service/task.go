package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/taskboard/taskboard/internal/metrics"
	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/policy"
	"github.com/taskboard/taskboard/internal/repository"
)

// TaskService handles task business logic.
type TaskService struct {
	store   TaskStore
	metrics metrics.Recorder
	now     func() time.Time
}

// TaskOption configures a TaskService.
type TaskOption func(*TaskService)

// WithClock overrides the clock used to pick the default filter date.
func WithClock(now func() time.Time) TaskOption {
	return func(s *TaskService) {
		s.now = now
	}
}

// NewTaskService creates a new TaskService.
func NewTaskService(store TaskStore, recorder metrics.Recorder, opts ...TaskOption) *TaskService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	s := &TaskService{
		store:   store,
		metrics: recorder,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TaskFilter selects tasks for the list operation.
type TaskFilter struct {
	// Date is the raw query value. It is only consulted when HasDate is set.
	Date    string
	HasDate bool
}

// Today returns the current calendar date in server local time.
func (s *TaskService) Today() civil.Date {
	return civil.DateOf(s.now())
}

// ListTasks returns every task due on the filter date in storage order.
// Without a date the filter is today, evaluated per call.
func (s *TaskService) ListTasks(ctx context.Context, filter TaskFilter) ([]*model.Task, error) {
	date := s.Today()
	if filter.HasDate {
		parsed, err := ParseFilterDate(filter.Date)
		if err != nil {
			return nil, err
		}
		date = parsed
	}

	start := time.Now()
	tasks, err := s.store.ListTasksDueOn(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	s.metrics.IncTaskListed()
	s.metrics.ObserveTaskListDuration(time.Since(start))

	return tasks, nil
}

// ParseFilterDate parses an ISO-8601 calendar date (YYYY-MM-DD).
// Failures are returned as *DateError.
func ParseFilterDate(raw string) (civil.Date, error) {
	date, err := civil.ParseDate(raw)
	if err != nil {
		return civil.Date{}, &DateError{Reason: err.Error()}
	}
	return date, nil
}

// GetTask returns a task by id. Reads are open to every caller.
func (s *TaskService) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	task, err := s.store.GetTaskByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// CreateTask creates a task owned by caller. Anonymous callers are refused
// before the payload is decoded.
func (s *TaskService) CreateTask(ctx context.Context, caller *model.AuthContext, decode TaskDecoder) (*model.Task, error) {
	if !policy.MayCreate(caller) {
		return nil, ErrForbidden
	}

	changes, err := decode()
	if err != nil {
		return nil, err
	}

	task := model.NewTask(caller.UserID)
	changes.ApplyTo(task)

	if err := s.store.CreateTask(ctx, task); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// the caller's user row vanished after authentication
			return nil, ErrForbidden
		}
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.metrics.IncTaskCreated()
	return task, nil
}

// ReplaceTask applies the client's fields to an existing task. Omitted
// fields keep their current values and the owner never changes.
func (s *TaskService) ReplaceTask(ctx context.Context, caller *model.AuthContext, id int64, decode TaskDecoder) (*model.Task, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	if !policy.MayModifyTask(caller, task) {
		return nil, ErrForbidden
	}

	changes, err := decode()
	if err != nil {
		return nil, err
	}
	changes.ApplyTo(task)

	if err := s.store.UpdateTask(ctx, task); err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	s.metrics.IncTaskUpdated()
	return task, nil
}

// DeleteTask removes a task owned by caller.
func (s *TaskService) DeleteTask(ctx context.Context, caller *model.AuthContext, id int64) (*model.Task, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	if !policy.MayModifyTask(caller, task) {
		return nil, ErrForbidden
	}

	if err := s.store.DeleteTask(ctx, id); err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to delete task: %w", err)
	}

	s.metrics.IncTaskDeleted()
	return task, nil
}
