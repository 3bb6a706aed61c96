package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tasksync/internal/domain"
	"tasksync/internal/metrics"
	"tasksync/internal/models"

	"github.com/rs/zerolog"
)

// BidirectionalSyncer is implemented by remotes that exchange both
// directions in one call. The engine prefers it over separate push/pull
// when available.
type BidirectionalSyncer interface {
	Sync(ctx context.Context, tasks []models.Task, cursor string) ([]models.Task, string, *domain.PushResult, error)
}

// Bridge talks to the colocated plugin host. One POST carries local
// changes out and remote changes back, the response timestamp becomes
// the next cursor.
type Bridge struct {
	endpoint   string
	store      domain.Store
	httpClient *http.Client
	logger     *zerolog.Logger
}

type bridgeRequest struct {
	Action    string     `json:"action"`
	Data      bridgeData `json:"data"`
	Timestamp string     `json:"timestamp"`
}

type bridgeData struct {
	Tasks []bridgeTask `json:"tasks"`
	Since string       `json:"since,omitempty"`
}

type bridgeResponse struct {
	Data      bridgeData      `json:"data"`
	Conflicts json.RawMessage `json:"conflicts"`
	Timestamp string          `json:"timestamp"`
}

func NewBridge(endpoint string, timeout time.Duration, store domain.Store, logger *zerolog.Logger) *Bridge {
	return &Bridge{
		endpoint:   endpoint,
		store:      store,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (b *Bridge) Name() string { return models.SurfaceBridge }

// Sync performs the single bidirectional exchange. Tasks unchanged since
// their last push are filtered out exactly as the backend client does.
func (b *Bridge) Sync(ctx context.Context, tasks []models.Task, cursor string) ([]models.Task, string, *domain.PushResult, error) {
	result := &domain.PushResult{PushedAt: time.Now()}

	var wire []bridgeTask
	var pushedIDs []string
	for _, task := range tasks {
		lastPush, err := b.store.LastPushTime(ctx, b.Name(), task.ID)
		if err != nil {
			return nil, cursor, nil, fmt.Errorf("last push time for %s: %w", task.ID, err)
		}
		if !task.UpdatedAt.After(lastPush) {
			result.Skipped++
			continue
		}
		wire = append(wire, toBridgeWire(task))
		pushedIDs = append(pushedIDs, task.ID)
	}

	body := bridgeRequest{
		Action:    "bidirectional_sync",
		Data:      bridgeData{Tasks: wire, Since: cursor},
		Timestamp: result.PushedAt.UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, cursor, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, strings.NewReader(string(data)))
	if err != nil {
		return nil, cursor, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, cursor, nil, fmt.Errorf("bridge sync: %w", err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 300 {
		return nil, cursor, nil, fmt.Errorf("bridge sync: http %d", httpResp.StatusCode)
	}

	var resp bridgeResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, cursor, nil, fmt.Errorf("bridge sync decode: %w", err)
	}

	if err := b.store.SetLastPushTime(ctx, b.Name(), pushedIDs, result.PushedAt); err != nil {
		return nil, cursor, nil, fmt.Errorf("record push times: %w", err)
	}
	result.Sent = len(wire)
	metrics.AddTasksPushed(b.Name(), result.Sent)

	var pulled []models.Task
	for _, w := range resp.Data.Tasks {
		task, ok := fromBridgeWire(w)
		if !ok {
			metrics.IncMalformedRecord(b.Name())
			b.logger.Warn().Msg("Skipping bridge record without usable id")
			continue
		}
		pulled = append(pulled, task)
	}
	metrics.AddTasksPulled(b.Name(), len(pulled))

	newCursor := resp.Timestamp
	if newCursor == "" {
		newCursor = result.PushedAt.UTC().Format(time.RFC3339Nano)
	}
	return pulled, newCursor, result, nil
}

// Push satisfies SyncClient. The engine uses Sync when it can; Push alone
// still performs a full exchange and discards the inbound half.
func (b *Bridge) Push(ctx context.Context, tasks []models.Task) (*domain.PushResult, error) {
	cursor, err := b.store.PullCursor(ctx, b.Name())
	if err != nil {
		return nil, err
	}
	_, _, result, err := b.Sync(ctx, tasks, cursor)
	return result, err
}

// Pull satisfies SyncClient via an exchange with no outbound tasks.
func (b *Bridge) Pull(ctx context.Context, cursor string) ([]models.Task, string, error) {
	pulled, newCursor, _, err := b.Sync(ctx, nil, cursor)
	return pulled, newCursor, err
}
