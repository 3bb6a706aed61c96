package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tasksync/internal/config"
	"tasksync/internal/database"
	"tasksync/internal/events"
	"tasksync/internal/export"
	"tasksync/internal/models"
	"tasksync/internal/queue"
	"tasksync/internal/repository"
	"tasksync/internal/service"
	"tasksync/internal/syncer"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	ts        *httptest.Server
	store     *repository.MemoryStore
	queue     *queue.Queue
	resolver  *syncer.Resolver
	triggered int
}

func newAPIFixture(t *testing.T, cfg config.APIConfig) *apiFixture {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := repository.NewMemoryStore()
	q := queue.New(db, nil, queue.RetryPolicy{}, &logger)
	bus := events.NewEventBus()
	resolver := syncer.NewResolver(store, q, bus, &logger)
	tasks := service.NewTaskService(store, q, bus, models.SurfaceLocal, &logger)
	status := repository.NewMemoryStatusRepository()

	fx := &apiFixture{store: store, queue: q, resolver: resolver}
	server := NewHTTPServer(cfg, Deps{
		Store:    store,
		Queue:    q,
		Tasks:    tasks,
		Resolver: resolver,
		Status:   status,
		Exporter: export.NewExporter(filepath.Join(t.TempDir(), "reports"), store, q),
		Trigger:  func() { fx.triggered++ },
	}, &logger)
	fx.ts = httptest.NewServer(server.server.Handler)
	t.Cleanup(fx.ts.Close)
	return fx
}

func TestTasksEndpointCreateAndList(t *testing.T) {
	fx := newAPIFixture(t, config.APIConfig{})

	resp, err := http.Post(fx.ts.URL+"/api/v1/tasks", "application/json",
		strings.NewReader(`{"title":"from api","priority":"high"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.PriorityHigh, created.Priority)

	resp, err = http.Get(fx.ts.URL + "/api/v1/tasks")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Tasks []models.Task `json:"tasks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	require.Len(t, listing.Tasks, 1)
	assert.Equal(t, "from api", listing.Tasks[0].Title)
}

func TestTaskByIDEndpoints(t *testing.T) {
	fx := newAPIFixture(t, config.APIConfig{})

	resp, err := http.Post(fx.ts.URL+"/api/v1/tasks", "application/json",
		strings.NewReader(`{"title":"patch me"}`))
	require.NoError(t, err)
	var created models.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodPatch, fx.ts.URL+"/api/v1/tasks/"+created.ID,
		strings.NewReader(`{"title":"patched"}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(fx.ts.URL+"/api/v1/tasks/"+created.ID+"/complete", "application/json",
		strings.NewReader(`{"actual_minutes":20}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(fx.ts.URL + "/api/v1/tasks/" + created.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	var got models.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "patched", got.Title)
	assert.Equal(t, models.TaskStatusDone, got.Status)
	assert.Equal(t, 20, got.ActualMinutes)

	resp, err = http.Get(fx.ts.URL + "/api/v1/tasks/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConflictEndpoints(t *testing.T) {
	fx := newAPIFixture(t, config.APIConfig{})
	ctx := context.Background()

	at := time.Now().Add(-time.Hour)
	local := models.Task{ID: "t1", Title: "local", Priority: models.PriorityLow, Status: models.TaskStatusTodo, UpdatedAt: at.Add(time.Minute), Source: models.SurfaceLocal}
	remote := models.Task{ID: "t1", Title: "remote", Priority: models.PriorityLow, Status: models.TaskStatusTodo, UpdatedAt: at.Add(2 * time.Minute), Source: models.SurfaceBackend}
	require.NoError(t, fx.store.UpsertTask(ctx, &local))
	conflict := syncer.Detect(&local, &remote, at)
	require.NotNil(t, conflict)
	require.NoError(t, fx.store.SaveConflict(ctx, conflict))

	resp, err := http.Get(fx.ts.URL + "/api/v1/conflicts")
	require.NoError(t, err)
	defer resp.Body.Close()
	var listing struct {
		Conflicts []models.Conflict `json:"conflicts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	require.Len(t, listing.Conflicts, 1)

	resp, err = http.Post(fx.ts.URL+"/api/v1/conflicts/"+conflict.ID+"/resolve", "application/json",
		strings.NewReader(`{"action":"use_remote"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, fx.triggered, "resolution triggers a sync cycle")

	got, err := fx.store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "remote", got.Title)

	// Unknown ids resolve as a no-op, not an error.
	resp, err = http.Post(fx.ts.URL+"/api/v1/conflicts/nope/resolve", "application/json",
		strings.NewReader(`{"action":"use_local"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDeadLetterAndStatusEndpoints(t *testing.T) {
	fx := newAPIFixture(t, config.APIConfig{})

	resp, err := http.Get(fx.ts.URL + "/api/v1/deadletter")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(fx.ts.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var status models.SyncStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, models.SyncStateIdle, status.State)
}

func TestExportEndpoint(t *testing.T) {
	fx := newAPIFixture(t, config.APIConfig{})

	resp, err := http.Post(fx.ts.URL+"/api/v1/export", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Path string `json:"path"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.FileExists(t, body.Path)
}

func TestTriggerSyncEndpoint(t *testing.T) {
	fx := newAPIFixture(t, config.APIConfig{})

	resp, err := http.Post(fx.ts.URL+"/api/v1/sync", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, fx.triggered)
}
