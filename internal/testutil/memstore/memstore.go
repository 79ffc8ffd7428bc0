// Package memstore is an in-memory stand-in for the Postgres repository,
// used by service and handler tests. It reproduces the repository's
// sentinel errors, orderings, and owner-username joins.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/repository"
)

// Store holds users, tasks, and API keys in memory. It is safe for
// concurrent use.
type Store struct {
	mu         sync.RWMutex
	users      map[int64]*model.User
	tasks      map[int64]*model.Task
	keys       map[string]*model.APIKey
	nextUserID int64
	nextTaskID int64

	// Err, when set, is returned by every method.
	Err error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users: make(map[int64]*model.User),
		tasks: make(map[int64]*model.Task),
		keys:  make(map[string]*model.APIKey),
	}
}

// AddUser creates a user and returns it. It panics on a duplicate name.
func (s *Store) AddUser(username string) *model.User {
	user := &model.User{Username: username}
	if err := s.CreateUser(context.Background(), user); err != nil {
		panic(err)
	}
	return user
}

// AddTask stores task as-is and returns it with its id filled in.
func (s *Store) AddTask(task *model.Task) *model.Task {
	if err := s.CreateTask(context.Background(), task); err != nil {
		panic(err)
	}
	return task
}

// TaskCount returns the number of stored tasks.
func (s *Store) TaskCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// DeleteUser removes a user together with its tasks and keys.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	if _, ok := s.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(s.users, id)
	for taskID, task := range s.tasks {
		if task.OwnerID == id {
			delete(s.tasks, taskID)
		}
	}
	for keyID, key := range s.keys {
		if key.UserID == id {
			delete(s.keys, keyID)
		}
	}
	return nil
}

// CreateUser implements the repository method of the same name.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	for _, existing := range s.users {
		if existing.Username == user.Username {
			return repository.ErrUsernameExists
		}
	}

	s.nextUserID++
	user.ID = s.nextUserID
	user.CreatedAt = time.Now().UTC()
	user.TaskIDs = []int64{}

	stored := *user
	s.users[user.ID] = &stored
	return nil
}

// GetUserByID implements the repository method of the same name.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}

	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return s.userWithTasks(user), nil
}

// GetUserByUsername implements the repository method of the same name.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}

	for _, user := range s.users {
		if user.Username == username {
			return s.userWithTasks(user), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

// CountUsers implements the repository method of the same name.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return 0, s.Err
	}
	return int64(len(s.users)), nil
}

// ListUsers implements the repository method of the same name.
func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}

	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	users := make([]*model.User, 0, limit)
	for i := offset; i < len(ids) && len(users) < limit; i++ {
		users = append(users, s.userWithTasks(s.users[ids[i]]))
	}
	return users, nil
}

func (s *Store) userWithTasks(user *model.User) *model.User {
	out := *user
	out.TaskIDs = []int64{}
	for id, task := range s.tasks {
		if task.OwnerID == user.ID {
			out.TaskIDs = append(out.TaskIDs, id)
		}
	}
	slices.Sort(out.TaskIDs)
	return &out
}

// ListTasksDueOn implements the repository method of the same name.
func (s *Store) ListTasksDueOn(ctx context.Context, date civil.Date) ([]*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}

	tasks := make([]*model.Task, 0)
	for _, task := range s.tasks {
		if task.IsDueOn(date) {
			tasks = append(tasks, s.taskCopy(task))
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// GetTaskByID implements the repository method of the same name.
func (s *Store) GetTaskByID(ctx context.Context, id int64) (*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}

	task, ok := s.tasks[id]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	return s.taskCopy(task), nil
}

// CreateTask implements the repository method of the same name.
func (s *Store) CreateTask(ctx context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	owner, ok := s.users[task.OwnerID]
	if !ok {
		return repository.ErrUserNotFound
	}

	s.nextTaskID++
	now := time.Now().UTC()
	task.ID = s.nextTaskID
	task.CreatedAt = now
	task.UpdatedAt = now
	task.OwnerUsername = owner.Username

	stored := *task
	s.tasks[task.ID] = &stored
	return nil
}

// UpdateTask implements the repository method of the same name.
func (s *Store) UpdateTask(ctx context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	existing, ok := s.tasks[task.ID]
	if !ok {
		return repository.ErrTaskNotFound
	}

	existing.Due = task.Due
	existing.Title = task.Title
	existing.Body = task.Body
	existing.Completed = task.Completed
	existing.UpdatedAt = time.Now().UTC()
	task.UpdatedAt = existing.UpdatedAt
	return nil
}

// DeleteTask implements the repository method of the same name.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	if _, ok := s.tasks[id]; !ok {
		return repository.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *Store) taskCopy(task *model.Task) *model.Task {
	out := *task
	if task.Due != nil {
		due := *task.Due
		out.Due = &due
	}
	if owner, ok := s.users[task.OwnerID]; ok {
		out.OwnerUsername = owner.Username
	}
	return &out
}

// CreateAPIKey implements the repository method of the same name.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	owner, ok := s.users[key.UserID]
	if !ok {
		return repository.ErrUserNotFound
	}
	key.OwnerUsername = owner.Username

	stored := *key
	stored.Scopes = slices.Clone(key.Scopes)
	s.keys[key.ID] = &stored
	return nil
}

// GetAPIKeyByID implements the repository method of the same name.
func (s *Store) GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}

	key, ok := s.keys[id]
	if !ok {
		return nil, repository.ErrAPIKeyNotFound
	}
	return keyCopy(key), nil
}

// GetAPIKeysByPrefix implements the repository method of the same name.
func (s *Store) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}

	var keys []*model.APIKey
	for _, key := range s.keys {
		if key.KeyPrefix == prefix && !key.IsRevoked() {
			keys = append(keys, keyCopy(key))
		}
	}
	return keys, nil
}

// ListAPIKeysByUserID implements the repository method of the same name.
func (s *Store) ListAPIKeysByUserID(ctx context.Context, userID int64) ([]*model.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}

	var keys []*model.APIKey
	for _, key := range s.keys {
		if key.UserID == userID {
			keys = append(keys, keyCopy(key))
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

// RevokeAPIKey implements the repository method of the same name.
func (s *Store) RevokeAPIKey(ctx context.Context, id string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	key, ok := s.keys[id]
	if !ok || key.UserID != userID || key.IsRevoked() {
		return repository.ErrAPIKeyNotFound
	}
	now := time.Now().UTC()
	key.RevokedAt = &now
	return nil
}

// UpdateAPIKeyLastUsed implements the repository method of the same name.
func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	if key, ok := s.keys[id]; ok {
		now := time.Now().UTC()
		key.LastUsedAt = &now
	}
	return nil
}

func keyCopy(key *model.APIKey) *model.APIKey {
	out := *key
	out.Scopes = slices.Clone(key.Scopes)
	return &out
}
