// Package service provides business logic for the application.
//
// Every mutation follows the same order: look the record up (not found),
// check the caller against policy (forbidden), then decode and validate
// the payload (bad request). Nothing is written until all three pass.
package service

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"

	"github.com/taskboard/taskboard/internal/model"
)

// Service errors.
var (
	ErrForbidden    = errors.New("you do not have permission to perform this action")
	ErrTaskNotFound = errors.New("task not found")
	ErrUserNotFound = errors.New("user not found")
	ErrKeyNotFound  = errors.New("API key not found")
	ErrInvalidDate  = errors.New("invalid date")
	ErrInvalidPage  = errors.New("invalid page")
	ErrTokensOff    = errors.New("token issuance is not configured")
)

// DateError reports an unusable filter date. Its message is shown to clients.
type DateError struct {
	Reason string
}

func (e *DateError) Error() string {
	if e.Reason == "" {
		return "Invalid date"
	}
	return "Invalid date: " + e.Reason
}

// Unwrap lets callers match ErrInvalidDate.
func (e *DateError) Unwrap() error {
	return ErrInvalidDate
}

// TaskDecoder yields the client's task fields. It is only called once the
// caller has been authorized, so malformed input from a caller who may not
// write is reported as forbidden rather than invalid.
type TaskDecoder func() (model.TaskChanges, error)

// UserDecoder yields the username of a user to create.
type UserDecoder func() (string, error)

// TaskStore is the persistence needed by TaskService.
type TaskStore interface {
	ListTasksDueOn(ctx context.Context, date civil.Date) ([]*model.Task, error)
	GetTaskByID(ctx context.Context, id int64) (*model.Task, error)
	CreateTask(ctx context.Context, task *model.Task) error
	UpdateTask(ctx context.Context, task *model.Task) error
	DeleteTask(ctx context.Context, id int64) error
}

// UserStore is the persistence needed by UserService.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	CountUsers(ctx context.Context) (int64, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*model.User, error)
}

// KeyStore is the persistence needed by KeyService.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	ListAPIKeysByUserID(ctx context.Context, userID int64) ([]*model.APIKey, error)
	RevokeAPIKey(ctx context.Context, id string, userID int64) error
}
