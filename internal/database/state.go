package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Per-remote sync state lives in two small tables: sync_state holds
// key/value pairs (last sync time, pull cursors), push_state records when
// each task was last pushed to each remote.

func (db *DB) LastSyncTime(ctx context.Context, remote string) (time.Time, error) {
	value, err := db.stateValue(ctx, "last_sync_time:"+remote)
	if err != nil || value == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last sync time: %w", err)
	}
	return t, nil
}

func (db *DB) SetLastSyncTime(ctx context.Context, remote string, t time.Time) error {
	return db.setStateValue(ctx, "last_sync_time:"+remote, t.Format(time.RFC3339Nano))
}

func (db *DB) PullCursor(ctx context.Context, remote string) (string, error) {
	return db.stateValue(ctx, "pull_cursor:"+remote)
}

func (db *DB) SetPullCursor(ctx context.Context, remote, cursor string) error {
	return db.setStateValue(ctx, "pull_cursor:"+remote, cursor)
}

func (db *DB) LastPushTime(ctx context.Context, remote, taskID string) (time.Time, error) {
	query := `SELECT pushed_at FROM push_state WHERE remote = ? AND task_id = ?`
	var t time.Time
	err := db.db.QueryRowContext(ctx, query, remote, taskID).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last push time: %w", err)
	}
	return t, nil
}

// SetLastPushTime records a successful push for every task in one
// transaction so a crash cannot leave half a batch marked pushed.
func (db *DB) SetLastPushTime(ctx context.Context, remote string, taskIDs []string, t time.Time) error {
	if len(taskIDs) == 0 {
		return nil
	}
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO push_state (remote, task_id, pushed_at) VALUES (?, ?, ?)
              ON CONFLICT(remote, task_id) DO UPDATE SET pushed_at = excluded.pushed_at`
	for _, id := range taskIDs {
		if _, err := tx.ExecContext(ctx, query, remote, id, t); err != nil {
			return fmt.Errorf("failed to set last push time: %w", err)
		}
	}
	return tx.Commit()
}

func (db *DB) NumericID(ctx context.Context, taskID string) (int64, error) {
	var id int64
	query := `SELECT numeric_id FROM remote_ids WHERE task_id = ?`
	err := db.db.QueryRowContext(ctx, query, taskID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to get numeric id: %w", err)
	}

	result, err := db.db.ExecContext(ctx, `INSERT INTO remote_ids (task_id) VALUES (?)`, taskID)
	if err != nil {
		return 0, fmt.Errorf("failed to assign numeric id: %w", err)
	}
	id, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get assigned numeric id: %w", err)
	}
	return id, nil
}

// BindNumericID records a mapping assigned by a remote, so tasks that
// originate remotely keep the numeric id the remote already uses.
func (db *DB) BindNumericID(ctx context.Context, taskID string, numericID int64) error {
	query := `INSERT INTO remote_ids (numeric_id, task_id) VALUES (?, ?)
              ON CONFLICT(task_id) DO NOTHING`
	if _, err := db.db.ExecContext(ctx, query, numericID, taskID); err != nil {
		return fmt.Errorf("failed to bind numeric id: %w", err)
	}
	return nil
}

func (db *DB) TaskIDFor(ctx context.Context, numericID int64) (string, error) {
	var taskID string
	query := `SELECT task_id FROM remote_ids WHERE numeric_id = ?`
	err := db.db.QueryRowContext(ctx, query, numericID).Scan(&taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up task id: %w", err)
	}
	return taskID, nil
}

func (db *DB) stateValue(ctx context.Context, key string) (string, error) {
	var value string
	err := db.db.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return value, nil
}

func (db *DB) setStateValue(ctx context.Context, key, value string) error {
	query := `INSERT INTO sync_state (key, value) VALUES (?, ?)
              ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := db.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	return nil
}
