package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"tasksync/internal/database"
	"tasksync/internal/domain"
	"tasksync/internal/models"
)

// MemoryStore is an in-memory domain.Store. Platforms without SQLite
// (and tests) use it behind the same interface as the durable store.
type MemoryStore struct {
	mu         sync.RWMutex
	tasks      map[string]models.Task
	conflicts  map[string]models.Conflict
	syncTimes  map[string]time.Time
	cursors    map[string]string
	pushTimes  map[string]time.Time // remote + "\x00" + taskID
	numericIDs map[string]int64
	taskIDs    map[int64]string
	nextID     int64
}

var _ domain.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:      make(map[string]models.Task),
		conflicts:  make(map[string]models.Conflict),
		syncTimes:  make(map[string]time.Time),
		cursors:    make(map[string]string),
		pushTimes:  make(map[string]time.Time),
		numericIDs: make(map[string]int64),
		taskIDs:    make(map[int64]string),
	}
}

func (m *MemoryStore) GetTask(_ context.Context, id string) (*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, database.ErrTaskNotFound
	}
	return &task, nil
}

func (m *MemoryStore) ListTasks(_ context.Context) ([]models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tasks := make([]models.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].UpdatedAt.Equal(tasks[j].UpdatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].UpdatedAt.After(tasks[j].UpdatedAt)
	})
	return tasks, nil
}

func (m *MemoryStore) UpsertTask(_ context.Context, task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = *task
	return nil
}

func (m *MemoryStore) SetSyncStatus(_ context.Context, taskID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return database.ErrTaskNotFound
	}
	task.SyncStatus = status
	m.tasks[taskID] = task
	return nil
}

func (m *MemoryStore) SaveConflict(_ context.Context, conflict *models.Conflict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts[conflict.ID] = *conflict
	return nil
}

func (m *MemoryStore) GetConflict(_ context.Context, id string) (*models.Conflict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conflict, ok := m.conflicts[id]
	if !ok {
		return nil, database.ErrConflictNotFound
	}
	return &conflict, nil
}

func (m *MemoryStore) ListPendingConflicts(_ context.Context) ([]models.Conflict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var pending []models.Conflict
	for _, c := range m.conflicts {
		if c.ResolutionStatus == models.ResolutionPending {
			pending = append(pending, c)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	return pending, nil
}

func (m *MemoryStore) MarkConflictResolved(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conflict, ok := m.conflicts[id]
	if !ok {
		return database.ErrConflictNotFound
	}
	conflict.ResolutionStatus = models.ResolutionResolved
	m.conflicts[id] = conflict
	return nil
}

func (m *MemoryStore) LastSyncTime(_ context.Context, remote string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.syncTimes[remote], nil
}

func (m *MemoryStore) SetLastSyncTime(_ context.Context, remote string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncTimes[remote] = t
	return nil
}

func (m *MemoryStore) PullCursor(_ context.Context, remote string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursors[remote], nil
}

func (m *MemoryStore) SetPullCursor(_ context.Context, remote, cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[remote] = cursor
	return nil
}

func (m *MemoryStore) LastPushTime(_ context.Context, remote, taskID string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pushTimes[remote+"\x00"+taskID], nil
}

func (m *MemoryStore) SetLastPushTime(_ context.Context, remote string, taskIDs []string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range taskIDs {
		m.pushTimes[remote+"\x00"+id] = t
	}
	return nil
}

func (m *MemoryStore) NumericID(_ context.Context, taskID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.numericIDs[taskID]; ok {
		return id, nil
	}
	m.nextID++
	// Skip ids a remote already claimed via BindNumericID.
	for m.taskIDs[m.nextID] != "" {
		m.nextID++
	}
	m.numericIDs[taskID] = m.nextID
	m.taskIDs[m.nextID] = taskID
	return m.nextID, nil
}

func (m *MemoryStore) TaskIDFor(_ context.Context, numericID int64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.taskIDs[numericID], nil
}

func (m *MemoryStore) BindNumericID(_ context.Context, taskID string, numericID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.numericIDs[taskID]; ok {
		return nil
	}
	m.numericIDs[taskID] = numericID
	m.taskIDs[numericID] = taskID
	return nil
}
