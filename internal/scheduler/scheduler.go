// Package scheduler triggers sync cycles: periodically, immediately on
// connectivity recovery, and debounced on local mutation. Cycles never
// overlap; triggers arriving mid-cycle coalesce into one follow-up run.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tasksync/internal/domain"
	"tasksync/internal/models"
	"tasksync/internal/queue"
	"tasksync/internal/syncer"

	"github.com/rs/zerolog"
)

type Config struct {
	Interval         time.Duration
	MutationDebounce time.Duration
	CycleTimeout     time.Duration
	Backoff          queue.RetryPolicy
}

func DefaultConfig() Config {
	return Config{
		Interval:         5 * time.Minute,
		MutationDebounce: 2 * time.Second,
		CycleTimeout:     time.Minute,
		Backoff: queue.RetryPolicy{
			MaxAttempts:   0, // cycles retry forever, only queue items dead-letter
			InitialDelay:  5 * time.Second,
			MaxDelay:      5 * time.Minute,
			BackoffFactor: 2,
			Jitter:        0.2,
		},
	}
}

type Scheduler struct {
	engine *syncer.Engine
	status domain.StatusRepository
	config Config
	logger *zerolog.Logger

	syncing  atomic.Bool
	coalesce atomic.Bool
	online   atomic.Bool
	trigger  chan struct{}

	mu            sync.Mutex
	debounceTimer *time.Timer
	failures      int
	backoffUntil  time.Time
}

func New(engine *syncer.Engine, status domain.StatusRepository, config Config, logger *zerolog.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.MutationDebounce <= 0 {
		config.MutationDebounce = 2 * time.Second
	}
	if config.CycleTimeout <= 0 {
		config.CycleTimeout = time.Minute
	}
	s := &Scheduler{
		engine:  engine,
		status:  status,
		config:  config,
		logger:  logger,
		trigger: make(chan struct{}, 1),
	}
	s.online.Store(true)
	return s
}

// Start runs the trigger loop until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.config.Interval).Msg("Scheduler started")
	defer s.logger.Info().Msg("Scheduler stopped")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Initial cycle so a restart reconciles promptly.
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		case <-s.trigger:
			s.runCycle(ctx)
		}
	}
}

// NotifyChange requests a near-immediate cycle after a local mutation.
// Rapid edits within the debounce window batch into a single run.
func (s *Scheduler) NotifyChange() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = time.AfterFunc(s.config.MutationDebounce, s.fire)
}

// TriggerNow requests an immediate cycle, bypassing the debounce. The
// admin API's "sync now" uses this.
func (s *Scheduler) TriggerNow() {
	s.fire()
}

// SetOnline records connectivity. The offline-to-online transition
// triggers an immediate cycle and clears any error backoff.
func (s *Scheduler) SetOnline(online bool) {
	was := s.online.Swap(online)
	if online && !was {
		s.mu.Lock()
		s.failures = 0
		s.backoffUntil = time.Time{}
		s.mu.Unlock()
		s.logger.Info().Msg("Connectivity recovered, triggering sync")
		s.fire()
	}
}

// fire queues a trigger without blocking; a full channel means a run is
// already pending.
func (s *Scheduler) fire() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if !s.online.Load() {
		return
	}
	s.mu.Lock()
	inBackoff := time.Now().Before(s.backoffUntil)
	s.mu.Unlock()
	if inBackoff {
		return
	}

	if !s.syncing.CompareAndSwap(false, true) {
		// A cycle is running; coalesce this trigger into one follow-up.
		s.coalesce.Store(true)
		return
	}
	defer s.syncing.Store(false)

	for {
		s.setStatus(ctx, models.SyncStateSyncing, nil, nil)

		cycleCtx, cancel := context.WithTimeout(ctx, s.config.CycleTimeout)
		result, err := s.engine.RunCycle(cycleCtx)
		cancel()

		s.recordOutcome(ctx, result, err)

		if !s.coalesce.CompareAndSwap(true, false) {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Scheduler) recordOutcome(ctx context.Context, result *syncer.CycleResult, err error) {
	failed := err != nil || result.Failed(s.remoteCount())

	s.mu.Lock()
	if failed {
		s.failures++
		delay := s.config.Backoff.NextDelay(s.failures)
		s.backoffUntil = time.Now().Add(delay)
		until := s.backoffUntil
		s.mu.Unlock()

		s.logger.Warn().Err(err).Int("failures", s.failureCount()).Time("retry_at", until).
			Msg("Sync cycle failed, backing off")
		s.setStatus(ctx, models.SyncStateBackoff, result, &until)

		time.AfterFunc(time.Until(until), s.fire)
		return
	}
	s.failures = 0
	s.backoffUntil = time.Time{}
	s.mu.Unlock()

	s.setStatus(ctx, models.SyncStateIdle, result, nil)
}

func (s *Scheduler) failureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

func (s *Scheduler) remoteCount() int {
	return s.engine.RemoteCount()
}

func (s *Scheduler) setStatus(ctx context.Context, state string, result *syncer.CycleResult, retryAt *time.Time) {
	if s.status == nil {
		return
	}
	status := &models.SyncStatus{
		State:       state,
		LastSyncAt:  time.Now(),
		NextRetryAt: retryAt,
	}
	if result != nil {
		status.PendingConflicts = result.PendingConflicts
		if len(result.RemoteErrors) > 0 {
			for name, err := range result.RemoteErrors {
				status.LastError = name + ": " + err.Error()
				break
			}
		}
	}
	if err := s.status.SetStatus(ctx, status); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to record sync status")
	}
}
