package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tasksync/internal/models"
)

var ErrTaskNotFound = errors.New("task not found")

const taskColumns = `id, title, description, priority, status, estimated_minutes, actual_minutes, created_at, updated_at, source, sync_status`

func (db *DB) GetTask(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	task, err := scanTask(db.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

func (db *DB) ListTasks(ctx context.Context) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at ASC`
	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// UpsertTask writes the full record in one statement so concurrent
// readers never observe a partial patch.
func (db *DB) UpsertTask(ctx context.Context, task *models.Task) error {
	query := `INSERT INTO tasks (` + taskColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                title = excluded.title,
                description = excluded.description,
                priority = excluded.priority,
                status = excluded.status,
                estimated_minutes = excluded.estimated_minutes,
                actual_minutes = excluded.actual_minutes,
                updated_at = excluded.updated_at,
                source = excluded.source,
                sync_status = excluded.sync_status`
	_, err := db.db.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Priority,
		task.Status,
		task.EstimatedMinutes,
		task.ActualMinutes,
		task.CreatedAt,
		task.UpdatedAt,
		task.Source,
		task.SyncStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}
	return nil
}

func (db *DB) SetSyncStatus(ctx context.Context, taskID, status string) error {
	query := `UPDATE tasks SET sync_status = ? WHERE id = ?`
	if _, err := db.db.ExecContext(ctx, query, status, taskID); err != nil {
		return fmt.Errorf("failed to set sync status: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Priority, &t.Status,
		&t.EstimatedMinutes, &t.ActualMinutes, &t.CreatedAt, &t.UpdatedAt,
		&t.Source, &t.SyncStatus,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
