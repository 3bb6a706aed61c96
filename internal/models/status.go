package models

import "time"

const (
	SyncStateIdle    = "idle"
	SyncStateSyncing = "syncing"
	SyncStateBackoff = "backoff"
)

// SyncStatus is the ephemeral state external consumers render ("sync
// failed, will retry"). It is not part of the durable store.
type SyncStatus struct {
	State            string     `json:"state"`
	PendingConflicts int        `json:"pending_conflicts"`
	LastSyncAt       time.Time  `json:"last_sync_at"`
	LastError        string     `json:"last_error,omitempty"`
	NextRetryAt      *time.Time `json:"next_retry_at,omitempty"`
}
