package remote

import (
	"strings"
	"time"

	"tasksync/internal/models"
)

// backendTask is the wire shape the backend service expects. Ids are
// numeric on this wire; the store's remote_ids table translates them.
type backendTask struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	Priority         string `json:"priority"`
	Completed        bool   `json:"completed"`
	EstimatedMinutes int    `json:"estimatedMinutes"`
	ActualMinutes    int    `json:"actualMinutes"`
	CreatedAt        string `json:"createdAt"`
	UpdatedAt        string `json:"updatedAt"`
}

// bridgeTask is the wire shape for the colocated plugin host. String ids
// pass through unchanged.
type bridgeTask struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	Priority         string `json:"priority"`
	Status           string `json:"status"`
	EstimatedMinutes int    `json:"estimatedMinutes"`
	ActualMinutes    int    `json:"actualMinutes"`
	CreatedAt        string `json:"createdAt"`
	UpdatedAt        string `json:"updatedAt"`
}

func toBackendWire(task models.Task, numericID int64) backendTask {
	return backendTask{
		ID:               numericID,
		Title:            task.Title,
		Description:      task.Description,
		Priority:         task.Priority,
		Completed:        task.Completed(),
		EstimatedMinutes: task.EstimatedMinutes,
		ActualMinutes:    task.ActualMinutes,
		CreatedAt:        task.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:        task.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// fromBackendWire maps a pulled record into the local shape. Every field
// gets a sensible default so one malformed record never aborts a cycle.
func fromBackendWire(w backendTask, taskID string) models.Task {
	status := models.TaskStatusTodo
	if w.Completed {
		status = models.TaskStatusDone
	}
	created := parseWireTime(w.CreatedAt, time.Now())
	return models.Task{
		ID:               taskID,
		Title:            defaultString(w.Title, "Untitled task"),
		Description:      w.Description,
		Priority:         defaultPriority(w.Priority),
		Status:           status,
		EstimatedMinutes: nonNegative(w.EstimatedMinutes),
		ActualMinutes:    nonNegative(w.ActualMinutes),
		CreatedAt:        created,
		UpdatedAt:        parseWireTime(w.UpdatedAt, created),
		Source:           models.SurfaceBackend,
		SyncStatus:       models.SyncStatusSynced,
	}
}

func toBridgeWire(task models.Task) bridgeTask {
	return bridgeTask{
		ID:               task.ID,
		Title:            task.Title,
		Description:      task.Description,
		Priority:         task.Priority,
		Status:           task.Status,
		EstimatedMinutes: task.EstimatedMinutes,
		ActualMinutes:    task.ActualMinutes,
		CreatedAt:        task.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:        task.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func fromBridgeWire(w bridgeTask) (models.Task, bool) {
	id := strings.TrimSpace(w.ID)
	if id == "" {
		return models.Task{}, false
	}
	status := w.Status
	if !models.ValidTaskStatus(status) {
		status = models.TaskStatusTodo
	}
	created := parseWireTime(w.CreatedAt, time.Now())
	return models.Task{
		ID:               id,
		Title:            defaultString(w.Title, "Untitled task"),
		Description:      w.Description,
		Priority:         defaultPriority(w.Priority),
		Status:           status,
		EstimatedMinutes: nonNegative(w.EstimatedMinutes),
		ActualMinutes:    nonNegative(w.ActualMinutes),
		CreatedAt:        created,
		UpdatedAt:        parseWireTime(w.UpdatedAt, created),
		Source:           models.SurfaceBridge,
		SyncStatus:       models.SyncStatusSynced,
	}, true
}

func parseWireTime(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return fallback
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func defaultPriority(p string) string {
	if models.ValidPriority(p) {
		return p
	}
	return models.PriorityMedium
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
