package models

const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in-progress"
	TaskStatusDone       = "done"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

const (
	SyncStatusPending  = "pending"
	SyncStatusSynced   = "synced"
	SyncStatusConflict = "conflict"
)

const (
	QueueStatusPending   = "pending"
	QueueStatusRetry     = "retry"
	QueueStatusCompleted = "completed"
	QueueStatusDead      = "dead"
)

const (
	QueueTypeTaskUpdate   = "task-update"
	QueueTypeEnergyUpdate = "energy-update"
	QueueTypeFocusSession = "focus-session"
)

const (
	ResolutionPending  = "pending"
	ResolutionResolved = "resolved"
)

const (
	ResolveUseLocal  = "use_local"
	ResolveUseRemote = "use_remote"
	ResolveMerge     = "merge"
)

// Surface names. The local surface name doubles as the push source field on
// the backend wire; names also break timestamp ties during resolution.
const (
	SurfaceLocal   = "local"
	SurfaceBackend = "backend"
	SurfaceBridge  = "bridge"
)

const (
	// DefaultDrainBatch is how many queue items a single cycle drains.
	DefaultDrainBatch = 50

	// DefaultMaxAttempts before a queue item is dead-lettered.
	DefaultMaxAttempts = 5
)

// ValidPriority reports whether p is one of the known priority levels.
func ValidPriority(p string) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// ValidTaskStatus reports whether s is one of the known task statuses.
func ValidTaskStatus(s string) bool {
	return s == TaskStatusTodo || s == TaskStatusInProgress || s == TaskStatusDone
}
