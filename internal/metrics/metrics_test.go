package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncSyncCycle("ok")
		AddTasksPushed("backend", 3)
		AddTasksPulled("bridge", 2)
		IncConflictsDetected()
		IncConflictsResolved("last_write_wins")
		IncQueueEnqueued("task-update")
		IncDeadLetters("task-update")
		IncMalformedRecord("backend")
		IncAPIRequest("/api/v1/tasks")
		ObserveCycleDuration(0.42)
	})
}
