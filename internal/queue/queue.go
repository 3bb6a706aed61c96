// Package queue implements the durable outbound change queue. Items are
// persisted to the local store before Enqueue returns, so pending work
// survives restarts; a crash loses nothing that was acknowledged.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tasksync/internal/database"
	"tasksync/internal/domain"
	"tasksync/internal/events"
	"tasksync/internal/metrics"
	"tasksync/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// TaskUpdatePayload is stored in QueueItem.Payload for task-update items.
type TaskUpdatePayload struct {
	TaskID string `json:"task_id"`
}

// Queue wraps the sync_queue table with retry/dead-letter semantics.
// Redis, when configured, mirrors dead letters to a list for external
// tooling; the SQLite row remains authoritative either way.
type Queue struct {
	db            *database.DB
	redis         *redis.Client
	retryPolicy   RetryPolicy
	deadLetterKey string
	events        domain.EventPublisher
	logger        *zerolog.Logger
}

func New(db *database.DB, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *Queue {
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = models.DefaultMaxAttempts
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &Queue{
		db:            db,
		redis:         redisClient,
		retryPolicy:   retry,
		deadLetterKey: "tasksync:deadletter",
		logger:        logger,
	}
}

// SetPublisher attaches an optional event publisher for dead-letter
// notifications. Safe to leave unset.
func (q *Queue) SetPublisher(pub domain.EventPublisher) {
	q.events = pub
}

// Enqueue persists an item and returns it with its assigned sequence id.
func (q *Queue) Enqueue(ctx context.Context, itemType, payload string) (*models.QueueItem, error) {
	if itemType == "" {
		return nil, errors.New("item type is required")
	}

	item := &models.QueueItem{
		Type:    itemType,
		Payload: payload,
		Status:  models.QueueStatusPending,
	}
	if err := q.db.CreateQueueItem(ctx, item); err != nil {
		return nil, err
	}
	metrics.IncQueueEnqueued(itemType)
	return item, nil
}

// EnqueueTaskUpdate is the common case: schedule a task for outbound push.
func (q *Queue) EnqueueTaskUpdate(ctx context.Context, taskID string) (*models.QueueItem, error) {
	payload, err := json.Marshal(TaskUpdatePayload{TaskID: taskID})
	if err != nil {
		return nil, err
	}
	return q.Enqueue(ctx, models.QueueTypeTaskUpdate, string(payload))
}

// Drain returns due items in FIFO order. Items stay in the queue until
// Complete or Fail is called for them.
func (q *Queue) Drain(ctx context.Context, limit int) ([]models.QueueItem, error) {
	if limit <= 0 {
		limit = models.DefaultDrainBatch
	}
	return q.db.PendingQueueItems(ctx, limit)
}

func (q *Queue) Complete(ctx context.Context, id int64) error {
	return q.db.UpdateQueueItemStatus(ctx, id, models.QueueStatusCompleted, "", nil)
}

// Fail records a processing failure. The item is scheduled for a
// backed-off retry, or dead-lettered once the attempt budget is spent.
func (q *Queue) Fail(ctx context.Context, item *models.QueueItem, cause error) error {
	attempt := item.Attempts + 1
	if attempt >= q.retryPolicy.MaxAttempts {
		if err := q.db.UpdateQueueItemStatus(ctx, item.ID, models.QueueStatusDead, cause.Error(), nil); err != nil {
			return err
		}
		metrics.IncDeadLetters(item.Type)
		q.logger.Warn().Int64("item_id", item.ID).Str("type", item.Type).Err(cause).
			Msg("Queue item dead-lettered after exhausting retries")
		q.mirrorDeadLetter(ctx, item)
		if q.events != nil {
			_ = q.events.PublishJSON(events.EventItemDeadLettered, map[string]any{
				"item_id": item.ID,
				"type":    item.Type,
				"error":   cause.Error(),
			})
		}
		return nil
	}

	nextTime := time.Now().Add(q.retryPolicy.NextDelay(attempt))
	return q.db.UpdateQueueItemStatus(ctx, item.ID, models.QueueStatusRetry, cause.Error(), &nextTime)
}

// DeadLetters lists items awaiting manual intervention.
func (q *Queue) DeadLetters(ctx context.Context) ([]models.QueueItem, error) {
	return q.db.DeadLetterItems(ctx)
}

func (q *Queue) mirrorDeadLetter(ctx context.Context, item *models.QueueItem) {
	if q.redis == nil {
		return
	}
	data, err := json.Marshal(item)
	if err != nil {
		q.logger.Error().Err(err).Int64("item_id", item.ID).Msg("Encode dead letter failed")
		return
	}
	if err := q.redis.LPush(ctx, q.deadLetterKey, data).Err(); err != nil {
		q.logger.Warn().Err(err).Int64("item_id", item.ID).Msg("Dead letter mirror push failed")
	}
}
