// Package remote implements the sync clients, one per remote counterpart.
// The backend service is reached over HTTP with separate push and pull
// calls so each direction retries independently; the plugin-host bridge
// is colocated and syncs both directions in a single exchange.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tasksync/internal/domain"
	"tasksync/internal/metrics"
	"tasksync/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// SidecarPusher is implemented by remotes that accept non-task queue
// payloads (energy updates, focus sessions) alongside a task push.
type SidecarPusher interface {
	PushSidecar(ctx context.Context, energy, focusSessions []json.RawMessage) error
}

type Backend struct {
	baseURL    string
	source     string
	store      domain.Store
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zerolog.Logger
}

type pushRequest struct {
	Source        string            `json:"source"`
	Tasks         []backendTask     `json:"tasks"`
	Energy        []json.RawMessage `json:"energy,omitempty"`
	FocusSessions []json.RawMessage `json:"focusSessions,omitempty"`
	Timestamp     string            `json:"timestamp"`
}

type pushResponse struct {
	Data json.RawMessage `json:"data"`
}

type pullResponse struct {
	Data []backendTask `json:"data"`
}

func NewBackend(baseURL, source string, timeout time.Duration, rps float64, burst int, store domain.Store, logger *zerolog.Logger) *Backend {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Backend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		source:     source,
		store:      store,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		logger:     logger,
	}
}

func (b *Backend) Name() string { return models.SurfaceBackend }

// Push sends tasks changed since their last successful push. Unchanged
// records are skipped so a repeated push produces no new payload.
func (b *Backend) Push(ctx context.Context, tasks []models.Task) (*domain.PushResult, error) {
	result := &domain.PushResult{PushedAt: time.Now()}

	var wire []backendTask
	var pushedIDs []string
	for _, task := range tasks {
		lastPush, err := b.store.LastPushTime(ctx, b.Name(), task.ID)
		if err != nil {
			return nil, fmt.Errorf("last push time for %s: %w", task.ID, err)
		}
		if !task.UpdatedAt.After(lastPush) {
			result.Skipped++
			continue
		}
		numericID, err := b.store.NumericID(ctx, task.ID)
		if err != nil {
			return nil, fmt.Errorf("numeric id for %s: %w", task.ID, err)
		}
		wire = append(wire, toBackendWire(task, numericID))
		pushedIDs = append(pushedIDs, task.ID)
	}

	if len(wire) == 0 {
		return result, nil
	}

	body := pushRequest{
		Source:    b.source,
		Tasks:     wire,
		Timestamp: result.PushedAt.UTC().Format(time.RFC3339Nano),
	}
	var resp pushResponse
	if err := b.doPost(ctx, b.baseURL+"/sync/push", body, &resp); err != nil {
		return nil, fmt.Errorf("backend push: %w", err)
	}

	if err := b.store.SetLastPushTime(ctx, b.Name(), pushedIDs, result.PushedAt); err != nil {
		return nil, fmt.Errorf("record push times: %w", err)
	}

	result.Sent = len(wire)
	metrics.AddTasksPushed(b.Name(), result.Sent)
	return result, nil
}

// PushSidecar forwards energy and focus-session payloads drained from the
// change queue. The bridge has no use for them, only the backend.
func (b *Backend) PushSidecar(ctx context.Context, energy, focusSessions []json.RawMessage) error {
	if len(energy) == 0 && len(focusSessions) == 0 {
		return nil
	}
	body := pushRequest{
		Source:        b.source,
		Energy:        energy,
		FocusSessions: focusSessions,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	var resp pushResponse
	if err := b.doPost(ctx, b.baseURL+"/sync/push", body, &resp); err != nil {
		return fmt.Errorf("backend sidecar push: %w", err)
	}
	return nil
}

// Pull fetches records changed since the cursor. Records that cannot be
// mapped are skipped and counted, never fatal.
func (b *Backend) Pull(ctx context.Context, cursor string) ([]models.Task, string, error) {
	endpoint := fmt.Sprintf("%s/sync/pull?source=%s", b.baseURL, url.QueryEscape(b.source))
	if cursor != "" {
		endpoint += "&since=" + url.QueryEscape(cursor)
	}

	var resp pullResponse
	if err := b.doGet(ctx, endpoint, &resp); err != nil {
		return nil, cursor, fmt.Errorf("backend pull: %w", err)
	}

	pulledAt := time.Now().UTC().Format(time.RFC3339Nano)
	var tasks []models.Task
	for _, w := range resp.Data {
		if w.ID <= 0 {
			metrics.IncMalformedRecord(b.Name())
			b.logger.Warn().Int64("wire_id", w.ID).Msg("Skipping backend record without usable id")
			continue
		}
		taskID, err := b.resolveTaskID(ctx, w.ID)
		if err != nil {
			return nil, cursor, err
		}
		tasks = append(tasks, fromBackendWire(w, taskID))
	}

	metrics.AddTasksPulled(b.Name(), len(tasks))
	return tasks, pulledAt, nil
}

// resolveTaskID maps a numeric wire id back to the canonical string id,
// minting a local id for tasks first seen on the backend.
func (b *Backend) resolveTaskID(ctx context.Context, numericID int64) (string, error) {
	taskID, err := b.store.TaskIDFor(ctx, numericID)
	if err != nil {
		return "", err
	}
	if taskID != "" {
		return taskID, nil
	}
	taskID = models.NewID()
	if err := b.store.BindNumericID(ctx, taskID, numericID); err != nil {
		return "", err
	}
	return taskID, nil
}

func (b *Backend) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return b.do(ctx, req, out)
}

func (b *Backend) doPost(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(ctx, req, out)
}

func (b *Backend) do(ctx context.Context, req *http.Request, out any) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
