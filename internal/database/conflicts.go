package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"tasksync/internal/models"
)

var ErrConflictNotFound = errors.New("conflict not found")

func (db *DB) SaveConflict(ctx context.Context, conflict *models.Conflict) error {
	diffs, err := json.Marshal(conflict.FieldDiffs)
	if err != nil {
		return fmt.Errorf("encode field diffs: %w", err)
	}
	local, err := json.Marshal(conflict.LocalSnapshot)
	if err != nil {
		return fmt.Errorf("encode local snapshot: %w", err)
	}
	remote, err := json.Marshal(conflict.RemoteSnapshot)
	if err != nil {
		return fmt.Errorf("encode remote snapshot: %w", err)
	}

	query := `INSERT INTO conflicts (id, task_id, remote, field_diffs, local_snapshot, remote_snapshot, resolution_status, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                field_diffs = excluded.field_diffs,
                local_snapshot = excluded.local_snapshot,
                remote_snapshot = excluded.remote_snapshot,
                resolution_status = excluded.resolution_status`
	_, err = db.db.ExecContext(ctx, query,
		conflict.ID,
		conflict.TaskID,
		conflict.Remote,
		string(diffs),
		string(local),
		string(remote),
		conflict.ResolutionStatus,
		conflict.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save conflict: %w", err)
	}
	return nil
}

func (db *DB) GetConflict(ctx context.Context, id string) (*models.Conflict, error) {
	query := `SELECT id, task_id, remote, field_diffs, local_snapshot, remote_snapshot, resolution_status, created_at
              FROM conflicts WHERE id = ?`
	conflict, err := scanConflict(db.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConflictNotFound
		}
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}
	return conflict, nil
}

func (db *DB) ListPendingConflicts(ctx context.Context) ([]models.Conflict, error) {
	query := `SELECT id, task_id, remote, field_diffs, local_snapshot, remote_snapshot, resolution_status, created_at
              FROM conflicts WHERE resolution_status = ? ORDER BY created_at ASC`
	rows, err := db.db.QueryContext(ctx, query, models.ResolutionPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []models.Conflict
	for rows.Next() {
		conflict, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		conflicts = append(conflicts, *conflict)
	}
	return conflicts, rows.Err()
}

func (db *DB) MarkConflictResolved(ctx context.Context, id string) error {
	query := `UPDATE conflicts SET resolution_status = ? WHERE id = ?`
	if _, err := db.db.ExecContext(ctx, query, models.ResolutionResolved, id); err != nil {
		return fmt.Errorf("failed to mark conflict resolved: %w", err)
	}
	return nil
}

func scanConflict(row rowScanner) (*models.Conflict, error) {
	var c models.Conflict
	var diffs, local, remote string
	err := row.Scan(&c.ID, &c.TaskID, &c.Remote, &diffs, &local, &remote, &c.ResolutionStatus, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(diffs), &c.FieldDiffs); err != nil {
		return nil, fmt.Errorf("decode field diffs: %w", err)
	}
	if err := json.Unmarshal([]byte(local), &c.LocalSnapshot); err != nil {
		return nil, fmt.Errorf("decode local snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(remote), &c.RemoteSnapshot); err != nil {
		return nil, fmt.Errorf("decode remote snapshot: %w", err)
	}
	return &c, nil
}
