package repository

import (
	"context"
	"sync"

	"tasksync/internal/models"
)

// MemoryStatusRepository keeps the sync status in process memory. It is
// the fallback when redis is absent or down.
type MemoryStatusRepository struct {
	mu     sync.RWMutex
	status *models.SyncStatus
}

func NewMemoryStatusRepository() *MemoryStatusRepository {
	return &MemoryStatusRepository{}
}

func (r *MemoryStatusRepository) GetStatus(ctx context.Context) (*models.SyncStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.status == nil {
		return &models.SyncStatus{State: models.SyncStateIdle}, nil
	}
	copied := *r.status
	return &copied, nil
}

func (r *MemoryStatusRepository) SetStatus(ctx context.Context, status *models.SyncStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *status
	r.status = &copied
	return nil
}
