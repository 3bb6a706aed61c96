package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tasksync/internal/database"
	"tasksync/internal/domain"
	"tasksync/internal/events"
	"tasksync/internal/metrics"
	"tasksync/internal/models"
	"tasksync/internal/queue"
	"tasksync/internal/remote"

	"github.com/rs/zerolog"
)

// Engine runs one full sync cycle: drain the change queue, push/pull each
// remote, detect and resolve divergence, write merged state back.
type Engine struct {
	store       domain.Store
	queue       *queue.Queue
	clients     []domain.SyncClient
	resolver    *Resolver
	events      domain.EventPublisher
	logger      *zerolog.Logger
	autoResolve bool
}

// CycleResult summarizes one cycle for the scheduler and status repo.
type CycleResult struct {
	Pushed            int
	Pulled            int
	ConflictsDetected int
	PendingConflicts  int
	RemoteErrors      map[string]error
}

// Failed reports whether every remote failed. A single healthy remote
// keeps the cycle counted as progress.
func (r *CycleResult) Failed(total int) bool {
	return total > 0 && len(r.RemoteErrors) == total
}

func NewEngine(store domain.Store, q *queue.Queue, clients []domain.SyncClient, resolver *Resolver, pub domain.EventPublisher, autoResolve bool, logger *zerolog.Logger) *Engine {
	return &Engine{
		store:       store,
		queue:       q,
		clients:     clients,
		resolver:    resolver,
		events:      pub,
		logger:      logger,
		autoResolve: autoResolve,
	}
}

// RemoteCount reports how many remotes this engine drives.
func (e *Engine) RemoteCount() int { return len(e.clients) }

// RunCycle executes one non-overlapping sync cycle. Failures within a
// single remote are isolated: one remote being down never blocks the
// others, its queue items simply stay queued.
func (e *Engine) RunCycle(ctx context.Context) (*CycleResult, error) {
	start := time.Now()
	result := &CycleResult{RemoteErrors: make(map[string]error)}

	items, err := e.queue.Drain(ctx, models.DefaultDrainBatch)
	if err != nil {
		return nil, fmt.Errorf("drain queue: %w", err)
	}

	tasks, err := e.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	for _, client := range e.clients {
		if err := e.syncRemote(ctx, client, tasks, result); err != nil {
			result.RemoteErrors[client.Name()] = err
			e.logger.Warn().Err(err).Str("remote", client.Name()).Msg("Remote sync failed, items remain queued")
		}
	}

	e.settleQueue(ctx, items, result)

	pending, err := e.store.ListPendingConflicts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending conflicts: %w", err)
	}
	result.PendingConflicts = len(pending)

	metrics.ObserveCycleDuration(time.Since(start).Seconds())
	switch {
	case result.Failed(len(e.clients)):
		metrics.IncSyncCycle("error")
	case result.PendingConflicts > 0 || len(result.RemoteErrors) > 0:
		metrics.IncSyncCycle("partial")
	default:
		metrics.IncSyncCycle("success")
	}

	if e.events != nil {
		_ = e.events.PublishJSON(events.EventSyncCompleted, result)
	}
	return result, nil
}

// syncRemote pushes to and pulls from one remote clientside. Colocated
// remotes exchange both directions in a single call.
func (e *Engine) syncRemote(ctx context.Context, client domain.SyncClient, tasks []models.Task, result *CycleResult) error {
	name := client.Name()
	cycleStart := time.Now()

	lastSync, err := e.store.LastSyncTime(ctx, name)
	if err != nil {
		return fmt.Errorf("last sync time: %w", err)
	}
	cursor, err := e.store.PullCursor(ctx, name)
	if err != nil {
		return fmt.Errorf("pull cursor: %w", err)
	}

	var pulled []models.Task
	var newCursor string
	var pushRes *domain.PushResult

	if bidi, ok := client.(remote.BidirectionalSyncer); ok {
		pulled, newCursor, pushRes, err = bidi.Sync(ctx, tasks, cursor)
		if err != nil {
			return err
		}
	} else {
		pushRes, err = client.Push(ctx, tasks)
		if err != nil {
			return err
		}
		pulled, newCursor, err = client.Pull(ctx, cursor)
		if err != nil {
			return err
		}
	}

	result.Pushed += pushRes.Sent
	result.Pulled += len(pulled)

	for i := range pulled {
		if err := e.applyRemoteTask(ctx, name, &pulled[i], lastSync, result); err != nil {
			return err
		}
	}

	if err := e.store.SetPullCursor(ctx, name, newCursor); err != nil {
		return fmt.Errorf("set pull cursor: %w", err)
	}
	if err := e.store.SetLastSyncTime(ctx, name, cycleStart); err != nil {
		return fmt.Errorf("set last sync time: %w", err)
	}
	return nil
}

// applyRemoteTask merges one pulled record into the local store.
func (e *Engine) applyRemoteTask(ctx context.Context, remoteName string, remoteTask *models.Task, lastSync time.Time, result *CycleResult) error {
	local, err := e.store.GetTask(ctx, remoteTask.ID)
	if err != nil {
		if !errors.Is(err, database.ErrTaskNotFound) {
			return fmt.Errorf("get task %s: %w", remoteTask.ID, err)
		}
		// First sighting of a remote task: adopt it as-is.
		return e.store.UpsertTask(ctx, remoteTask)
	}

	conflict := Detect(local, remoteTask, lastSync)
	if conflict == nil {
		merged := Merge(*local, *remoteTask)
		if merged.UpdatedAt.Equal(local.UpdatedAt) && merged.Source == local.Source {
			return nil
		}
		return e.store.UpsertTask(ctx, &merged)
	}

	conflict.Remote = remoteName
	result.ConflictsDetected++
	metrics.IncConflictsDetected()

	if e.autoResolve {
		if err := e.store.SaveConflict(ctx, conflict); err != nil {
			return fmt.Errorf("save conflict: %w", err)
		}
		if _, err := e.resolver.AutoResolve(ctx, conflict); err != nil {
			return fmt.Errorf("auto resolve: %w", err)
		}
		return nil
	}

	if err := e.store.SaveConflict(ctx, conflict); err != nil {
		return fmt.Errorf("save conflict: %w", err)
	}
	if err := e.store.SetSyncStatus(ctx, conflict.TaskID, models.SyncStatusConflict); err != nil {
		return fmt.Errorf("flag conflicted task: %w", err)
	}
	if e.events != nil {
		_ = e.events.PublishJSON(events.EventConflictDetected, conflict)
	}
	e.logger.Info().Str("task_id", conflict.TaskID).Str("remote", remoteName).
		Int("fields", len(conflict.FieldDiffs)).Msg("Conflict detected, awaiting resolution")
	return nil
}

// settleQueue completes or retries the drained items. An item is done
// only once every enabled remote took the cycle; push is idempotent by
// id and updated_at so a healthy remote seeing it twice is harmless.
func (e *Engine) settleQueue(ctx context.Context, items []models.QueueItem, result *CycleResult) {
	var energy, focus []json.RawMessage
	for i := range items {
		switch items[i].Type {
		case models.QueueTypeEnergyUpdate:
			energy = append(energy, json.RawMessage(items[i].Payload))
		case models.QueueTypeFocusSession:
			focus = append(focus, json.RawMessage(items[i].Payload))
		}
	}

	sidecarErr := e.pushSidecar(ctx, energy, focus)

	for i := range items {
		item := &items[i]
		var failure error
		switch item.Type {
		case models.QueueTypeTaskUpdate:
			if len(result.RemoteErrors) > 0 {
				failure = firstError(result.RemoteErrors)
			}
		case models.QueueTypeEnergyUpdate, models.QueueTypeFocusSession:
			failure = sidecarErr
		default:
			failure = fmt.Errorf("unknown queue item type: %s", item.Type)
		}

		if failure != nil {
			if err := e.queue.Fail(ctx, item, failure); err != nil {
				e.logger.Error().Err(err).Int64("item_id", item.ID).Msg("Failed to record queue failure")
			}
			continue
		}
		if err := e.queue.Complete(ctx, item.ID); err != nil {
			e.logger.Error().Err(err).Int64("item_id", item.ID).Msg("Failed to complete queue item")
			continue
		}
		e.markSynced(ctx, item)
	}
}

func (e *Engine) pushSidecar(ctx context.Context, energy, focus []json.RawMessage) error {
	if len(energy) == 0 && len(focus) == 0 {
		return nil
	}
	for _, client := range e.clients {
		if sp, ok := client.(remote.SidecarPusher); ok {
			return sp.PushSidecar(ctx, energy, focus)
		}
	}
	return fmt.Errorf("no remote accepts sidecar payloads")
}

// markSynced flips a pushed task to synced unless a conflict claimed it.
func (e *Engine) markSynced(ctx context.Context, item *models.QueueItem) {
	if item.Type != models.QueueTypeTaskUpdate {
		return
	}
	var payload queue.TaskUpdatePayload
	if err := json.Unmarshal([]byte(item.Payload), &payload); err != nil || payload.TaskID == "" {
		return
	}
	task, err := e.store.GetTask(ctx, payload.TaskID)
	if err != nil || task.SyncStatus != models.SyncStatusPending {
		return
	}
	if err := e.store.SetSyncStatus(ctx, payload.TaskID, models.SyncStatusSynced); err != nil {
		e.logger.Error().Err(err).Str("task_id", payload.TaskID).Msg("Failed to mark task synced")
	}
}

func firstError(errs map[string]error) error {
	for name, err := range errs {
		return fmt.Errorf("remote %s: %w", name, err)
	}
	return nil
}
