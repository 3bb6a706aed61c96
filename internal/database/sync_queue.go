package database

import (
	"context"
	"fmt"
	"time"

	"tasksync/internal/models"
)

func (db *DB) CreateQueueItem(ctx context.Context, item *models.QueueItem) error {
	query := `INSERT INTO sync_queue (item_type, payload, status, attempts, last_error, enqueued_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.db.ExecContext(ctx, query,
		item.Type,
		item.Payload,
		item.Status,
		item.Attempts,
		item.LastError,
		now,
		item.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create queue item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	item.ID = id
	item.EnqueuedAt = now

	return nil
}

// PendingQueueItems returns due items in FIFO order by sequence id.
func (db *DB) PendingQueueItems(ctx context.Context, limit int) ([]models.QueueItem, error) {
	query := `SELECT id, item_type, payload, status, attempts, last_error, enqueued_at, processed_at, next_retry_at
              FROM sync_queue
              WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY id ASC LIMIT ?`
	return db.queryQueueItems(ctx, query, time.Now(), limit)
}

func (db *DB) UpdateQueueItemStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []any
	now := time.Now()

	switch status {
	case models.QueueStatusRetry:
		query = `UPDATE sync_queue SET status = ?, last_error = ?, next_retry_at = ?, attempts = attempts + 1 WHERE id = ?`
		args = []any{status, errMsg, nextRetryAt, id}
	case models.QueueStatusCompleted, models.QueueStatusDead:
		query = `UPDATE sync_queue SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []any{status, errMsg, nextRetryAt, &now, id}
	default:
		query = `UPDATE sync_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []any{status, errMsg, nextRetryAt, id}
	}

	if _, err := db.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update queue item status: %w", err)
	}
	return nil
}

// DeadLetterItems returns items that exceeded their retry budget and
// await manual intervention.
func (db *DB) DeadLetterItems(ctx context.Context) ([]models.QueueItem, error) {
	query := `SELECT id, item_type, payload, status, attempts, last_error, enqueued_at, processed_at, next_retry_at
              FROM sync_queue WHERE status = 'dead' ORDER BY enqueued_at DESC`
	return db.queryQueueItems(ctx, query)
}

func (db *DB) queryQueueItems(ctx context.Context, query string, args ...any) ([]models.QueueItem, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue items: %w", err)
	}
	defer rows.Close()

	var items []models.QueueItem
	for rows.Next() {
		var item models.QueueItem
		err := rows.Scan(
			&item.ID, &item.Type, &item.Payload, &item.Status, &item.Attempts,
			&item.LastError, &item.EnqueuedAt, &item.ProcessedAt, &item.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
