package models

import "time"

// FieldDiff describes a single field that differs between two copies of a task.
type FieldDiff struct {
	Field       string `json:"field"`
	LocalValue  any    `json:"local_value"`
	RemoteValue any    `json:"remote_value"`
}

// Conflict records a divergence between two independently modified copies
// of the same task. It stays pending until resolved automatically or by an
// external caller.
type Conflict struct {
	ID               string      `json:"id"`
	TaskID           string      `json:"task_id"`
	Remote           string      `json:"remote"`
	FieldDiffs       []FieldDiff `json:"field_diffs"`
	LocalSnapshot    Task        `json:"local_snapshot"`
	RemoteSnapshot   Task        `json:"remote_snapshot"`
	ResolutionStatus string      `json:"resolution_status"` // pending, resolved
	CreatedAt        time.Time   `json:"created_at"`
}

// Resolution is supplied by an external caller to close a pending conflict.
type Resolution struct {
	Action       string `json:"action"` // use_local, use_remote, merge
	MergedRecord *Task  `json:"merged_record,omitempty"`
}
