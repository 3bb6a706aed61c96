package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tasksync/internal/database"
	"tasksync/internal/domain"
	"tasksync/internal/events"
	"tasksync/internal/metrics"
	"tasksync/internal/models"
	"tasksync/internal/queue"

	"github.com/rs/zerolog"
)

// Resolver applies resolutions to pending conflicts. The automatic
// policy is last-write-wins via Merge; manual resolutions arrive from an
// external caller through ResolveConflict.
type Resolver struct {
	store  domain.Store
	queue  *queue.Queue
	events domain.EventPublisher
	logger *zerolog.Logger
}

func NewResolver(store domain.Store, q *queue.Queue, pub domain.EventPublisher, logger *zerolog.Logger) *Resolver {
	return &Resolver{store: store, queue: q, events: pub, logger: logger}
}

// AutoResolve closes a conflict with the last-write-wins winner.
func (r *Resolver) AutoResolve(ctx context.Context, conflict *models.Conflict) (*models.Task, error) {
	winner := Merge(conflict.LocalSnapshot, conflict.RemoteSnapshot)
	if err := r.apply(ctx, conflict, &winner); err != nil {
		return nil, err
	}
	metrics.IncConflictsResolved("auto")
	return &winner, nil
}

// ResolveConflict applies an externally supplied decision. An unknown
// conflict id is a no-op: a previous call may already have resolved it.
func (r *Resolver) ResolveConflict(ctx context.Context, conflictID string, resolution models.Resolution) error {
	conflict, err := r.store.GetConflict(ctx, conflictID)
	if err != nil {
		if errors.Is(err, database.ErrConflictNotFound) {
			r.logger.Debug().Str("conflict_id", conflictID).Msg("Resolve called for unknown conflict, ignoring")
			return nil
		}
		return err
	}
	if conflict.ResolutionStatus == models.ResolutionResolved {
		return nil
	}

	var winner models.Task
	switch resolution.Action {
	case models.ResolveUseLocal:
		winner = conflict.LocalSnapshot
	case models.ResolveUseRemote:
		winner = conflict.RemoteSnapshot
	case models.ResolveMerge:
		if resolution.MergedRecord == nil {
			return errors.New("merge resolution requires a merged record")
		}
		winner = *resolution.MergedRecord
		winner.ID = conflict.TaskID
	default:
		return fmt.Errorf("unknown resolution action: %s", resolution.Action)
	}

	// The resolved record is a fresh authoritative write: stamping a new
	// updated_at guarantees it outranks both conflicting copies and is
	// re-pushed to every remote.
	winner.UpdatedAt = time.Now()
	winner.SyncStatus = models.SyncStatusPending

	if err := r.apply(ctx, conflict, &winner); err != nil {
		return err
	}
	metrics.IncConflictsResolved("manual")
	return nil
}

// apply writes the winner, closes the conflict and re-enqueues the record
// so the resolution converges on every remote.
func (r *Resolver) apply(ctx context.Context, conflict *models.Conflict, winner *models.Task) error {
	if err := r.store.UpsertTask(ctx, winner); err != nil {
		return fmt.Errorf("write resolved task: %w", err)
	}
	if err := r.store.MarkConflictResolved(ctx, conflict.ID); err != nil {
		return fmt.Errorf("mark conflict resolved: %w", err)
	}
	if _, err := r.queue.EnqueueTaskUpdate(ctx, winner.ID); err != nil {
		return fmt.Errorf("re-enqueue resolved task: %w", err)
	}

	if r.events != nil {
		_ = r.events.PublishJSON(events.EventConflictResolved, map[string]string{
			"conflict_id": conflict.ID,
			"task_id":     winner.ID,
		})
	}
	r.logger.Info().Str("conflict_id", conflict.ID).Str("task_id", winner.ID).Msg("Conflict resolved")
	return nil
}
