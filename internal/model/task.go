// Package model defines domain entities for the application.
package model

import (
	"time"

	"cloud.google.com/go/civil"
)

// Field limits and defaults for tasks.
const (
	TaskTitleMaxLength = 100
	TaskBodyMaxLength  = 4096
	DefaultTaskTitle   = "Unnamed task"
)

// Task is a unit of work owned by exactly one user.
type Task struct {
	ID            int64
	Due           *civil.Date
	Title         string
	Body          string
	Completed     bool
	OwnerID       int64
	OwnerUsername string // populated by joins, never written
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewTask returns a task carrying the schema defaults.
func NewTask(ownerID int64) *Task {
	return &Task{
		Title:   DefaultTaskTitle,
		OwnerID: ownerID,
	}
}

// String returns the display form used in logs and admin output.
func (t *Task) String() string {
	return t.Title + " task"
}

// IsDueOn reports whether the task is due on the given date.
// Tasks without a due date are never due.
func (t *Task) IsDueOn(d civil.Date) bool {
	return t.Due != nil && *t.Due == d
}

// TaskChanges carries the fields a client supplied for a create or replace.
// Nil pointers are fields the client omitted; omitted fields keep the
// task's current (or default) value.
type TaskChanges struct {
	Due       *civil.Date
	DueSet    bool // true when "due" was present, including an explicit null
	Title     *string
	Body      *string
	Completed *bool
}

// ApplyTo writes the supplied fields onto task.
func (c TaskChanges) ApplyTo(task *Task) {
	if c.DueSet {
		task.Due = c.Due
	}
	if c.Title != nil {
		task.Title = *c.Title
	}
	if c.Body != nil {
		task.Body = *c.Body
	}
	if c.Completed != nil {
		task.Completed = *c.Completed
	}
}
