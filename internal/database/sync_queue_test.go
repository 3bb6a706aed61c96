package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tasksync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueItemCRUD(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	item := &models.QueueItem{
		Type:    models.QueueTypeTaskUpdate,
		Payload: `{"task_id":"t1"}`,
		Status:  models.QueueStatusPending,
	}
	require.NoError(t, db.CreateQueueItem(ctx, item))
	assert.NotZero(t, item.ID)
	assert.False(t, item.EnqueuedAt.IsZero())

	pending, err := db.PendingQueueItems(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, `{"task_id":"t1"}`, pending[0].Payload)

	require.NoError(t, db.UpdateQueueItemStatus(ctx, item.ID, models.QueueStatusCompleted, "", nil))
	pending, err = db.PendingQueueItems(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestQueueRetryScheduling(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	item := &models.QueueItem{Type: models.QueueTypeTaskUpdate, Payload: "{}", Status: models.QueueStatusPending}
	require.NoError(t, db.CreateQueueItem(ctx, item))

	// A retry scheduled in the future is not due.
	future := time.Now().Add(time.Hour)
	require.NoError(t, db.UpdateQueueItemStatus(ctx, item.ID, models.QueueStatusRetry, "temporary", &future))

	pending, err := db.PendingQueueItems(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.UpdateQueueItemStatus(ctx, item.ID, models.QueueStatusRetry, "temporary", &past))

	pending, err = db.PendingQueueItems(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempts)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "temporary", *pending[0].LastError)
}

func TestQueueFIFOOrder(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	for _, payload := range []string{"one", "two", "three"} {
		item := &models.QueueItem{Type: models.QueueTypeTaskUpdate, Payload: payload, Status: models.QueueStatusPending}
		require.NoError(t, db.CreateQueueItem(ctx, item))
	}

	pending, err := db.PendingQueueItems(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "one", pending[0].Payload)
	assert.Equal(t, "two", pending[1].Payload)
	assert.Equal(t, "three", pending[2].Payload)
}

func TestDeadLetterItems(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	item := &models.QueueItem{Type: models.QueueTypeEnergyUpdate, Payload: "{}", Status: models.QueueStatusPending}
	require.NoError(t, db.CreateQueueItem(ctx, item))
	require.NoError(t, db.UpdateQueueItemStatus(ctx, item.ID, models.QueueStatusDead, "gave up", nil))

	pending, err := db.PendingQueueItems(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "dead items must never drain")

	dead, err := db.DeadLetterItems(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, models.QueueStatusDead, dead[0].Status)
	assert.NotNil(t, dead[0].ProcessedAt)
}

// Pending items must survive a process restart and drain exactly once.
func TestQueueDurabilityAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "queue.db")
	logger := zerolog.Nop()
	ctx := context.Background()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	for _, payload := range []string{"a", "b", "c"} {
		item := &models.QueueItem{Type: models.QueueTypeTaskUpdate, Payload: payload, Status: models.QueueStatusPending}
		require.NoError(t, db.CreateQueueItem(ctx, item))
	}
	require.NoError(t, db.Close())

	db, err = NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	pending, err := db.PendingQueueItems(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	for _, item := range pending {
		require.NoError(t, db.UpdateQueueItemStatus(ctx, item.ID, models.QueueStatusCompleted, "", nil))
	}

	pending, err = db.PendingQueueItems(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "completed items must not be processed twice")
}
