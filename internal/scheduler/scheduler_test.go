package scheduler

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"tasksync/internal/database"
	"tasksync/internal/domain"
	"tasksync/internal/events"
	"tasksync/internal/models"
	"tasksync/internal/queue"
	"tasksync/internal/repository"
	"tasksync/internal/syncer"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingClient counts sync cycles; every push/pull pair is one cycle.
type countingClient struct {
	pulls atomic.Int32
	fail  atomic.Bool
}

func (c *countingClient) Name() string { return models.SurfaceBackend }

func (c *countingClient) Push(context.Context, []models.Task) (*domain.PushResult, error) {
	if c.fail.Load() {
		return nil, context.DeadlineExceeded
	}
	return &domain.PushResult{}, nil
}

func (c *countingClient) Pull(context.Context, string) ([]models.Task, string, error) {
	c.pulls.Add(1)
	return nil, "", nil
}

func newSchedulerFixture(t *testing.T, config Config) (*Scheduler, *countingClient, *repository.MemoryStatusRepository) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "sched.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := repository.NewMemoryStore()
	q := queue.New(db, nil, queue.RetryPolicy{}, &logger)
	bus := events.NewEventBus()
	client := &countingClient{}
	resolver := syncer.NewResolver(store, q, bus, &logger)
	engine := syncer.NewEngine(store, q, []domain.SyncClient{client}, resolver, bus, false, &logger)
	status := repository.NewMemoryStatusRepository()
	return New(engine, status, config, &logger), client, status
}

func cycleCount(c *countingClient) func() int {
	return func() int { return int(c.pulls.Load()) }
}

func TestSchedulerRunsInitialCycle(t *testing.T) {
	sched, client, status := newSchedulerFixture(t, Config{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return cycleCount(client)() >= 1 }, time.Second, 5*time.Millisecond)

	got, err := status.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateIdle, got.State)

	cancel()
	<-done
}

func TestSchedulerTriggerNow(t *testing.T) {
	sched, client, _ := newSchedulerFixture(t, Config{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Start(ctx)

	require.Eventually(t, func() bool { return cycleCount(client)() >= 1 }, time.Second, 5*time.Millisecond)

	sched.TriggerNow()
	require.Eventually(t, func() bool { return cycleCount(client)() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerDebouncesMutationBursts(t *testing.T) {
	sched, client, _ := newSchedulerFixture(t, Config{Interval: time.Hour, MutationDebounce: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Start(ctx)

	require.Eventually(t, func() bool { return cycleCount(client)() >= 1 }, time.Second, 5*time.Millisecond)
	base := cycleCount(client)()

	// A burst of edits within the debounce window batches into one run.
	for i := 0; i < 10; i++ {
		sched.NotifyChange()
		time.Sleep(time.Millisecond)
	}

	require.Eventually(t, func() bool { return cycleCount(client)() == base+1 }, time.Second, 5*time.Millisecond)

	// Quiet period, then confirm no stray extra cycles fired.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, base+1, cycleCount(client)())
}

func TestSchedulerOfflineSuppressesAndRecoveryTriggers(t *testing.T) {
	sched, client, _ := newSchedulerFixture(t, Config{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Start(ctx)

	require.Eventually(t, func() bool { return cycleCount(client)() >= 1 }, time.Second, 5*time.Millisecond)
	base := cycleCount(client)()

	sched.SetOnline(false)
	sched.TriggerNow()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, base, cycleCount(client)(), "no cycles while offline")

	sched.SetOnline(true)
	require.Eventually(t, func() bool { return cycleCount(client)() == base+1 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerBacksOffAfterFailedCycle(t *testing.T) {
	config := Config{
		Interval: time.Hour,
		Backoff:  queue.RetryPolicy{InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 2},
	}
	sched, client, status := newSchedulerFixture(t, config)
	client.fail.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Start(ctx)

	require.Eventually(t, func() bool {
		got, err := status.GetStatus(context.Background())
		return err == nil && got.State == models.SyncStateBackoff
	}, time.Second, 5*time.Millisecond)

	// Triggers during backoff are ignored until the delay passes.
	base := cycleCount(client)()
	sched.TriggerNow()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, base, cycleCount(client)())

	got, err := status.GetStatus(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got.NextRetryAt)
	assert.NotEmpty(t, got.LastError)
}
