package models

import "time"

// QueueItem is a durable unit of outbound work. Items survive restarts in
// the sync_queue table and are drained in FIFO order.
type QueueItem struct {
	ID          int64      `json:"id"`
	Type        string     `json:"type"` // task-update, energy-update, focus-session
	Payload     string     `json:"payload"`
	Status      string     `json:"status"` // pending, retry, completed, dead
	Attempts    int        `json:"attempts"`
	LastError   *string    `json:"last_error"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}
