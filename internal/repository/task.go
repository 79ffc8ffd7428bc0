package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/taskboard/taskboard/internal/model"
)

// Common errors for task repository operations.
var (
	ErrTaskNotFound = errors.New("task not found")
)

const taskColumns = `
	t.id, t.due, t.title, t.body, t.completed, t.owner_id, u.username, t.created_at, t.updated_at
`

// ListTasksDueOn returns every task due on the given date in id order.
func (r *Repository) ListTasksDueOn(ctx context.Context, date civil.Date) ([]*model.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		JOIN users u ON u.id = t.owner_id
		WHERE t.due = $1
		ORDER BY t.id
	`

	rows, err := r.pool.Query(ctx, query, dateParam(&date))
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*model.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// GetTaskByID retrieves a task with its owner's username.
func (r *Repository) GetTaskByID(ctx context.Context, id int64) (*model.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		JOIN users u ON u.id = t.owner_id
		WHERE t.id = $1
	`

	task, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task by ID: %w", err)
	}

	return task, nil
}

// CreateTask inserts a task and fills in its id, timestamps, and owner username.
func (r *Repository) CreateTask(ctx context.Context, task *model.Task) error {
	query := `
		WITH inserted AS (
			INSERT INTO tasks (due, title, body, completed, owner_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			RETURNING id, owner_id, created_at, updated_at
		)
		SELECT i.id, i.created_at, i.updated_at, u.username
		FROM inserted i
		JOIN users u ON u.id = i.owner_id
	`

	now := time.Now().UTC()
	err := r.pool.QueryRow(ctx, query,
		dateParam(task.Due),
		task.Title,
		task.Body,
		task.Completed,
		task.OwnerID,
		now,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt, &task.OwnerUsername)

	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// UpdateTask overwrites the mutable fields of an existing task.
// Concurrent updates are last-write-wins.
func (r *Repository) UpdateTask(ctx context.Context, task *model.Task) error {
	query := `
		UPDATE tasks
		SET due = $2, title = $3, body = $4, completed = $5, updated_at = $6
		WHERE id = $1
	`

	now := time.Now().UTC()
	result, err := r.pool.Exec(ctx, query,
		task.ID,
		dateParam(task.Due),
		task.Title,
		task.Body,
		task.Completed,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}

	task.UpdatedAt = now
	return nil
}

// DeleteTask removes a task permanently.
func (r *Repository) DeleteTask(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}

	return nil
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var task model.Task
	var due pgtype.Date

	err := row.Scan(
		&task.ID,
		&due,
		&task.Title,
		&task.Body,
		&task.Completed,
		&task.OwnerID,
		&task.OwnerUsername,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if due.Valid {
		d := civil.DateOf(due.Time)
		task.Due = &d
	}

	return &task, nil
}

// dateParam converts an optional calendar date into a DATE parameter.
func dateParam(d *civil.Date) pgtype.Date {
	if d == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}
