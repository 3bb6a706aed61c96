package models

import "time"

type Task struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Priority         string    `json:"priority"` // low, medium, high
	Status           string    `json:"status"`   // todo, in-progress, done
	EstimatedMinutes int       `json:"estimated_minutes"`
	ActualMinutes    int       `json:"actual_minutes"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Source           string    `json:"source"`      // surface that last originated the record
	SyncStatus       string    `json:"sync_status"` // pending, synced, conflict
}

// Completed is derived from Status; the backend wire format carries it
// as a boolean instead of the status enum.
func (t *Task) Completed() bool {
	return t.Status == TaskStatusDone
}

// MutableFields are the fields compared when two copies of the same
// task diverge. Timestamps and sync bookkeeping are excluded.
var MutableFields = []string{"title", "description", "priority", "status", "estimated_minutes"}

// FieldValue returns the value of a mutable field by name.
func (t *Task) FieldValue(field string) any {
	switch field {
	case "title":
		return t.Title
	case "description":
		return t.Description
	case "priority":
		return t.Priority
	case "status":
		return t.Status
	case "estimated_minutes":
		return t.EstimatedMinutes
	default:
		return nil
	}
}
