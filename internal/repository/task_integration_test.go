//go:build integration

package repository

import (
	"errors"
	"testing"

	"cloud.google.com/go/civil"

	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/testutil"
)

func TestIntegrationTaskRepository_CreateAndGet(t *testing.T) {
	ctx, repo := newIntegrationEnv(t)
	owner := createTestUser(t, ctx, repo, "owner")
	due := civil.Date{Year: 2024, Month: 3, Day: 10}

	task := testutil.NewTestTask(t, owner.ID, "Write report", due)
	task.Body = "quarterly numbers"
	if err := repo.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.ID == 0 {
		t.Fatal("CreateTask should fill in the id")
	}
	if task.OwnerUsername != owner.Username {
		t.Errorf("OwnerUsername mismatch: got %q, want %q", task.OwnerUsername, owner.Username)
	}

	got, err := repo.GetTaskByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTaskByID failed: %v", err)
	}
	if got.Title != "Write report" || got.Body != "quarterly numbers" || got.Completed {
		t.Errorf("unexpected task: %+v", got)
	}
	if got.Due == nil || *got.Due != due {
		t.Errorf("Due mismatch: got %v, want %v", got.Due, due)
	}
	if got.OwnerID != owner.ID {
		t.Errorf("OwnerID mismatch: got %d, want %d", got.OwnerID, owner.ID)
	}
}

func TestIntegrationTaskRepository_CreateWithoutDue(t *testing.T) {
	ctx, repo := newIntegrationEnv(t)
	owner := createTestUser(t, ctx, repo, "owner")

	task := model.NewTask(owner.ID)
	if err := repo.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	got, err := repo.GetTaskByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTaskByID failed: %v", err)
	}
	if got.Due != nil {
		t.Errorf("expected no due date, got %v", got.Due)
	}
	if got.Title != model.DefaultTaskTitle {
		t.Errorf("Title mismatch: got %q, want %q", got.Title, model.DefaultTaskTitle)
	}
}

func TestIntegrationTaskRepository_CreateUnknownOwner(t *testing.T) {
	ctx, repo := newIntegrationEnv(t)

	err := repo.CreateTask(ctx, model.NewTask(999999))
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got: %v", err)
	}
}

func TestIntegrationTaskRepository_ListTasksDueOn(t *testing.T) {
	ctx, repo := newIntegrationEnv(t)
	owner := createTestUser(t, ctx, repo, "owner")
	other := createTestUser(t, ctx, repo, "other")

	today := civil.Date{Year: 2024, Month: 3, Day: 10}
	tomorrow := today.AddDays(1)

	seed := []struct {
		owner int64
		title string
		due   *civil.Date
	}{
		{owner.ID, "a", &today},
		{other.ID, "b", &today},
		{owner.ID, "c", &tomorrow},
		{owner.ID, "d", nil},
		{other.ID, "e", &today},
	}
	for _, s := range seed {
		task := model.NewTask(s.owner)
		task.Title = s.title
		task.Due = s.due
		if err := repo.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask(%s) failed: %v", s.title, err)
		}
	}

	tests := []struct {
		name string
		date civil.Date
		want []string
	}{
		{name: "today in id order", date: today, want: []string{"a", "b", "e"}},
		{name: "tomorrow", date: tomorrow, want: []string{"c"}},
		{name: "no tasks", date: today.AddDays(-1), want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tasks, err := repo.ListTasksDueOn(ctx, tc.date)
			if err != nil {
				t.Fatalf("ListTasksDueOn failed: %v", err)
			}
			if tasks == nil {
				t.Fatal("ListTasksDueOn should return an empty slice, not nil")
			}
			if len(tasks) != len(tc.want) {
				t.Fatalf("got %d tasks, want %d", len(tasks), len(tc.want))
			}
			for i, task := range tasks {
				if task.Title != tc.want[i] {
					t.Errorf("task %d: got %q, want %q", i, task.Title, tc.want[i])
				}
			}
		})
	}
}

func TestIntegrationTaskRepository_Update(t *testing.T) {
	ctx, repo := newIntegrationEnv(t)
	owner := createTestUser(t, ctx, repo, "owner")

	task := testutil.NewTestTask(t, owner.ID, "draft", civil.Date{Year: 2024, Month: 3, Day: 10})
	if err := repo.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	created := task.UpdatedAt

	task.Title = "final"
	task.Completed = true
	task.Due = nil
	if err := repo.UpdateTask(ctx, task); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}

	got, err := repo.GetTaskByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTaskByID failed: %v", err)
	}
	if got.Title != "final" || !got.Completed || got.Due != nil {
		t.Errorf("update not persisted: %+v", got)
	}
	if got.UpdatedAt.Before(created) {
		t.Errorf("updated_at moved backwards: %v < %v", got.UpdatedAt, created)
	}

	missing := model.NewTask(owner.ID)
	missing.ID = 999999
	if err := repo.UpdateTask(ctx, missing); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got: %v", err)
	}
}

func TestIntegrationTaskRepository_Delete(t *testing.T) {
	ctx, repo := newIntegrationEnv(t)
	owner := createTestUser(t, ctx, repo, "owner")

	task := model.NewTask(owner.ID)
	if err := repo.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if err := repo.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if _, err := repo.GetTaskByID(ctx, task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound after delete, got: %v", err)
	}
	if err := repo.DeleteTask(ctx, task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound on second delete, got: %v", err)
	}
}

func TestIntegrationTaskRepository_CascadeOnOwnerDelete(t *testing.T) {
	ctx, repo := newIntegrationEnv(t)
	owner := createTestUser(t, ctx, repo, "owner")

	task := model.NewTask(owner.ID)
	if err := repo.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if _, err := repo.Pool().Exec(ctx, `DELETE FROM users WHERE id = $1`, owner.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := repo.GetTaskByID(ctx, task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected task removed with its owner, got: %v", err)
	}
}
