package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tasksync/internal/domain"
	"tasksync/internal/models"

	"github.com/rs/zerolog"
)

// FailoverStatusRepository prefers the primary (redis) and degrades to
// the fallback (memory) when it errors, probing the primary again after
// a minute.
type FailoverStatusRepository struct {
	primary  domain.StatusRepository
	fallback domain.StatusRepository
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverStatusRepository(primary, fallback domain.StatusRepository, logger *zerolog.Logger) *FailoverStatusRepository {
	return &FailoverStatusRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStatusRepository) GetStatus(ctx context.Context) (*models.SyncStatus, error) {
	if !r.isDown.Load() {
		status, err := r.primary.GetStatus(ctx)
		if err == nil {
			return status, nil
		}
		r.markDown(err)
	}

	if r.shouldProbe() {
		status, err := r.primary.GetStatus(ctx)
		if err == nil {
			r.isDown.Store(false)
			return status, nil
		}
	}

	return r.fallback.GetStatus(ctx)
}

func (r *FailoverStatusRepository) SetStatus(ctx context.Context, status *models.SyncStatus) error {
	// Always keep the fallback current so a failover never reads stale state.
	_ = r.fallback.SetStatus(ctx, status)

	if !r.isDown.Load() {
		err := r.primary.SetStatus(ctx, status)
		if err == nil {
			return nil
		}
		r.markDown(err)
		return nil
	}

	if r.shouldProbe() {
		if err := r.primary.SetStatus(ctx, status); err == nil {
			r.isDown.Store(false)
		}
	}
	return nil
}

func (r *FailoverStatusRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary status repository failed, falling back to memory")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

// shouldProbe rate-limits recovery attempts to one per minute.
func (r *FailoverStatusRepository) shouldProbe() bool {
	if !r.isDown.Load() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) < time.Minute {
		return false
	}
	r.lastCheck = time.Now()
	return true
}
