package domain

import (
	"context"
	"time"

	"tasksync/internal/models"
)

// Store is the local store adapter. All sync logic goes through this
// interface so the durable backend can be swapped per platform.
type Store interface {
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context) ([]models.Task, error)
	UpsertTask(ctx context.Context, task *models.Task) error
	SetSyncStatus(ctx context.Context, taskID, status string) error

	SaveConflict(ctx context.Context, conflict *models.Conflict) error
	GetConflict(ctx context.Context, id string) (*models.Conflict, error)
	ListPendingConflicts(ctx context.Context) ([]models.Conflict, error)
	MarkConflictResolved(ctx context.Context, id string) error

	LastSyncTime(ctx context.Context, remote string) (time.Time, error)
	SetLastSyncTime(ctx context.Context, remote string, t time.Time) error
	PullCursor(ctx context.Context, remote string) (string, error)
	SetPullCursor(ctx context.Context, remote, cursor string) error
	LastPushTime(ctx context.Context, remote, taskID string) (time.Time, error)
	SetLastPushTime(ctx context.Context, remote string, taskIDs []string, t time.Time) error

	// NumericID returns the stable numeric wire id for a task, assigning
	// one on first use. TaskIDFor translates back; BindNumericID records a
	// mapping chosen by a remote.
	NumericID(ctx context.Context, taskID string) (int64, error)
	TaskIDFor(ctx context.Context, numericID int64) (string, error)
	BindNumericID(ctx context.Context, taskID string, numericID int64) error
}

// ChangeQueue is the durable outbound queue.
type ChangeQueue interface {
	Enqueue(ctx context.Context, itemType, payload string) (*models.QueueItem, error)
	Drain(ctx context.Context, limit int) ([]models.QueueItem, error)
	Complete(ctx context.Context, id int64) error
	Fail(ctx context.Context, item *models.QueueItem, cause error) error
	DeadLetters(ctx context.Context) ([]models.QueueItem, error)
}

// PushResult reports what a remote accepted.
type PushResult struct {
	Sent     int
	Skipped  int
	PushedAt time.Time
}

// SyncClient talks to one remote counterpart.
type SyncClient interface {
	Name() string
	Push(ctx context.Context, tasks []models.Task) (*PushResult, error)
	Pull(ctx context.Context, cursor string) ([]models.Task, string, error)
}

// StatusRepository holds the ephemeral sync status external consumers read.
type StatusRepository interface {
	GetStatus(ctx context.Context) (*models.SyncStatus, error)
	SetStatus(ctx context.Context, status *models.SyncStatus) error
}

// EventPublisher emits in-process domain events.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}
