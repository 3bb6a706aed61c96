package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tasksync/internal/models"
	"tasksync/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackendFixture(t *testing.T, handler http.Handler) (*Backend, *repository.MemoryStore, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	store := repository.NewMemoryStore()
	logger := zerolog.Nop()
	backend := NewBackend(server.URL, models.SurfaceLocal, 5*time.Second, 0, 0, store, &logger)
	return backend, store, server
}

func TestBackendPushIsIdempotent(t *testing.T) {
	ctx := context.Background()
	var requests []pushRequest
	backend, _, _ := newBackendFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sync/push", r.URL.Path)
		var req pushRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))

	now := time.Now()
	tasks := []models.Task{
		{ID: "a", Title: "task a", Status: models.TaskStatusTodo, Priority: models.PriorityLow, CreatedAt: now, UpdatedAt: now},
		{ID: "b", Title: "task b", Status: models.TaskStatusDone, Priority: models.PriorityHigh, CreatedAt: now, UpdatedAt: now},
	}

	result, err := backend.Push(ctx, tasks)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Zero(t, result.Skipped)
	require.Len(t, requests, 1)
	assert.Equal(t, models.SurfaceLocal, requests[0].Source)
	require.Len(t, requests[0].Tasks, 2)
	assert.True(t, requests[0].Tasks[1].Completed)

	// Unchanged tasks produce no second request at all.
	result, err = backend.Push(ctx, tasks)
	require.NoError(t, err)
	assert.Zero(t, result.Sent)
	assert.Equal(t, 2, result.Skipped)
	assert.Len(t, requests, 1)

	// An edit to one task re-pushes exactly that task.
	tasks[0].Title = "task a edited"
	tasks[0].UpdatedAt = now.Add(time.Minute)
	result, err = backend.Push(ctx, tasks)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, requests, 2)
	require.Len(t, requests[1].Tasks, 1)
	assert.Equal(t, "task a edited", requests[1].Tasks[0].Title)
}

func TestBackendPushUsesStableNumericIDs(t *testing.T) {
	ctx := context.Background()
	var wireIDs [][]int64
	backend, store, _ := newBackendFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req pushRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var ids []int64
		for _, task := range req.Tasks {
			ids = append(ids, task.ID)
		}
		wireIDs = append(wireIDs, ids)
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))

	now := time.Now()
	task := models.Task{ID: "uuid-a", Title: "x", CreatedAt: now, UpdatedAt: now}
	_, err := backend.Push(ctx, []models.Task{task})
	require.NoError(t, err)

	task.UpdatedAt = now.Add(time.Minute)
	_, err = backend.Push(ctx, []models.Task{task})
	require.NoError(t, err)

	require.Len(t, wireIDs, 2)
	assert.Equal(t, wireIDs[0], wireIDs[1], "the numeric wire id must be stable across pushes")

	mapped, err := store.TaskIDFor(ctx, wireIDs[0][0])
	require.NoError(t, err)
	assert.Equal(t, "uuid-a", mapped)
}

func TestBackendPullMapsAndDefends(t *testing.T) {
	ctx := context.Background()
	backend, store, _ := newBackendFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sync/pull", r.URL.Path)
		assert.Equal(t, models.SurfaceLocal, r.URL.Query().Get("source"))
		_, _ = w.Write([]byte(`{"data":[
			{"id":7,"title":"clean record","description":"d","priority":"high","completed":true,
			 "estimatedMinutes":25,"createdAt":"2026-02-01T10:00:00Z","updatedAt":"2026-02-01T11:00:00Z"},
			{"id":8,"title":"","priority":"urgent!!","estimatedMinutes":-5,"updatedAt":"not-a-time"},
			{"id":0,"title":"no id, dropped"}
		]}`))
	}))

	tasks, cursor, err := backend.Pull(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, cursor)
	require.Len(t, tasks, 2, "the malformed id is skipped, the batch survives")

	clean := tasks[0]
	assert.Equal(t, "clean record", clean.Title)
	assert.Equal(t, models.TaskStatusDone, clean.Status)
	assert.Equal(t, models.PriorityHigh, clean.Priority)
	assert.Equal(t, 25, clean.EstimatedMinutes)
	assert.Equal(t, models.SurfaceBackend, clean.Source)
	assert.Equal(t, models.SyncStatusSynced, clean.SyncStatus)
	assert.Equal(t, time.Date(2026, 2, 1, 11, 0, 0, 0, time.UTC), clean.UpdatedAt.UTC())

	// Defensive defaults on the dirty record.
	dirty := tasks[1]
	assert.Equal(t, "Untitled task", dirty.Title)
	assert.Equal(t, models.PriorityMedium, dirty.Priority)
	assert.Equal(t, models.TaskStatusTodo, dirty.Status)
	assert.Zero(t, dirty.EstimatedMinutes)
	assert.False(t, dirty.UpdatedAt.IsZero())

	// Remote-minted ids got bound to fresh local uuids.
	id7, err := store.TaskIDFor(ctx, 7)
	require.NoError(t, err)
	assert.NotEmpty(t, id7)
	assert.Equal(t, id7, clean.ID)
}

func TestBackendPullKeepsSameTaskID(t *testing.T) {
	ctx := context.Background()
	backend, _, _ := newBackendFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":3,"title":"t","updatedAt":"2026-02-01T10:00:00Z"}]}`))
	}))

	first, _, err := backend.Pull(ctx, "")
	require.NoError(t, err)
	second, _, err := backend.Pull(ctx, "")
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID, "pulling the same wire id twice maps to one local task")
}

func TestBackendErrorStatusIsTransient(t *testing.T) {
	ctx := context.Background()
	backend, _, _ := newBackendFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	now := time.Now()
	_, err := backend.Push(ctx, []models.Task{{ID: "a", Title: "x", CreatedAt: now, UpdatedAt: now}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 502")

	_, _, err = backend.Pull(ctx, "")
	require.Error(t, err)

	// A failed push records nothing, the next push retries the task.
	var pushed int
	backend2, _, _ := newBackendFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushed++
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	_, err = backend2.Push(ctx, []models.Task{{ID: "a", Title: "x", CreatedAt: now, UpdatedAt: now}})
	require.NoError(t, err)
	assert.Equal(t, 1, pushed)
}

func TestBackendSidecarPush(t *testing.T) {
	ctx := context.Background()
	var got pushRequest
	backend, _, _ := newBackendFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))

	energy := []json.RawMessage{json.RawMessage(`{"level":7}`)}
	focus := []json.RawMessage{json.RawMessage(`{"minutes":25}`)}
	require.NoError(t, backend.PushSidecar(ctx, energy, focus))

	assert.Empty(t, got.Tasks)
	require.Len(t, got.Energy, 1)
	require.Len(t, got.FocusSessions, 1)
	assert.JSONEq(t, `{"level":7}`, string(got.Energy[0]))

	// Nothing to send, nothing on the wire.
	require.NoError(t, backend.PushSidecar(ctx, nil, nil))
	require.Len(t, got.Energy, 1)
}
