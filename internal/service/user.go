package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/taskboard/taskboard/internal/metrics"
	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/policy"
	"github.com/taskboard/taskboard/internal/repository"
	"github.com/taskboard/taskboard/internal/validate"
)

const (
	// DefaultPageSize is used when no page size is configured.
	DefaultPageSize = 100

	// LastPage may be passed instead of a page number.
	LastPage = "last"

	msgUsernameTaken = "A user with that username already exists."
)

// UserService handles user business logic.
type UserService struct {
	store    UserStore
	metrics  metrics.Recorder
	pageSize int
}

// NewUserService creates a new UserService.
func NewUserService(store UserStore, pageSize int, recorder metrics.Recorder) *UserService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &UserService{
		store:    store,
		metrics:  recorder,
		pageSize: pageSize,
	}
}

// UserPage is one page of the user list.
type UserPage struct {
	Users    []*model.User
	Count    int64
	Page     int
	NumPages int
}

// HasNext reports whether a later page exists.
func (p *UserPage) HasNext() bool {
	return p.Page < p.NumPages
}

// HasPrevious reports whether an earlier page exists.
func (p *UserPage) HasPrevious() bool {
	return p.Page > 1
}

// ListUsers returns the requested page of users ordered by id. An empty
// raw page means the first page. The first page always exists, even
// when there are no users.
func (s *UserService) ListUsers(ctx context.Context, rawPage string) (*UserPage, error) {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	numPages := int((count + int64(s.pageSize) - 1) / int64(s.pageSize))
	if numPages == 0 {
		numPages = 1
	}

	page, err := parsePage(rawPage, numPages)
	if err != nil {
		return nil, err
	}

	users, err := s.store.ListUsers(ctx, s.pageSize, (page-1)*s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	s.metrics.IncUserListed()
	return &UserPage{
		Users:    users,
		Count:    count,
		Page:     page,
		NumPages: numPages,
	}, nil
}

func parsePage(raw string, numPages int) (int, error) {
	switch raw {
	case "":
		return 1, nil
	case LastPage:
		return numPages, nil
	}

	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 || page > numPages {
		return 0, ErrInvalidPage
	}
	return page, nil
}

// GetUser returns a user and the ids of its tasks.
func (s *UserService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// CreateUser registers a new username. Any caller allowed to create
// records may create users; anonymous callers are refused before the
// payload is decoded.
func (s *UserService) CreateUser(ctx context.Context, caller *model.AuthContext, decode UserDecoder) (*model.User, error) {
	if !policy.MayCreate(caller) {
		return nil, ErrForbidden
	}

	username, err := decode()
	if err != nil {
		return nil, err
	}

	user := &model.User{Username: username}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameExists) {
			return nil, validate.Errors{"username": {msgUsernameTaken}}
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.metrics.IncUserCreated()
	return user, nil
}
