package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"tasksync/internal/database"
	"tasksync/internal/events"
	"tasksync/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, redisClient *redis.Client, retry RetryPolicy) *Queue {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "queue.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, redisClient, retry, &logger)
}

func TestEnqueueAndDrain(t *testing.T) {
	q := newTestQueue(t, nil, RetryPolicy{})
	ctx := context.Background()

	item, err := q.EnqueueTaskUpdate(ctx, "task-1")
	require.NoError(t, err)
	assert.NotZero(t, item.ID)
	assert.Equal(t, models.QueueTypeTaskUpdate, item.Type)

	_, err = q.Enqueue(ctx, "", "{}")
	assert.Error(t, err, "item type is required")

	items, err := q.Drain(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `{"task_id":"task-1"}`, items[0].Payload)

	require.NoError(t, q.Complete(ctx, items[0].ID))
	items, err = q.Drain(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFailSchedulesRetry(t *testing.T) {
	q := newTestQueue(t, nil, RetryPolicy{MaxAttempts: 3, InitialDelay: time.Hour})
	ctx := context.Background()

	item, err := q.EnqueueTaskUpdate(ctx, "task-1")
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, item, errors.New("backend down")))

	// The retry is an hour out, so the item is not due.
	items, err := q.Drain(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFailDeadLettersAfterMaxAttempts(t *testing.T) {
	q := newTestQueue(t, nil, RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})
	bus := events.NewEventBus()
	q.SetPublisher(bus)

	var deadEvents int
	bus.Subscribe(events.EventItemDeadLettered, func(*events.Event) error {
		deadEvents++
		return nil
	})

	ctx := context.Background()
	item, err := q.EnqueueTaskUpdate(ctx, "task-1")
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, item, errors.New("attempt 1")))

	time.Sleep(5 * time.Millisecond)
	items, err := q.Drain(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Attempts)

	require.NoError(t, q.Fail(ctx, &items[0], errors.New("attempt 2")))

	items, err = q.Drain(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, items, "dead items must not drain")

	dead, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	require.NotNil(t, dead[0].LastError)
	assert.Equal(t, "attempt 2", *dead[0].LastError)
	assert.Equal(t, 1, deadEvents)
}

func TestDeadLetterRedisMirror(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	q := newTestQueue(t, client, RetryPolicy{MaxAttempts: 1})
	ctx := context.Background()

	item, err := q.EnqueueTaskUpdate(ctx, "task-1")
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, item, errors.New("fatal")))

	entries, err := client.LRange(ctx, "tasksync:deadletter", 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0], `"task-update"`)
}

func TestNextDelayClampAndGrowth(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	// Exponent would exceed the cap.
	assert.Equal(t, 10*time.Second, policy.NextDelay(10))
}

func TestNextDelayJitterBounds(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 1, Jitter: 0.5}

	for i := 0; i < 100; i++ {
		d := policy.NextDelay(1)
		assert.GreaterOrEqual(t, d, 750*time.Millisecond)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
}
