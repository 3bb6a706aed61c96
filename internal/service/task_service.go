// Package service holds the local mutation entrypoints. Every write
// that originates on this surface goes through TaskService so the
// record, the outbound queue and the scheduler stay consistent.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tasksync/internal/domain"
	"tasksync/internal/events"
	"tasksync/internal/models"
	"tasksync/internal/queue"

	"github.com/rs/zerolog"
)

type TaskService struct {
	store   domain.Store
	queue   *queue.Queue
	events  domain.EventPublisher
	surface string
	notify  func()
	logger  *zerolog.Logger
}

func NewTaskService(store domain.Store, q *queue.Queue, pub domain.EventPublisher, surface string, logger *zerolog.Logger) *TaskService {
	if surface == "" {
		surface = models.SurfaceLocal
	}
	return &TaskService{
		store:   store,
		queue:   q,
		events:  pub,
		surface: surface,
		logger:  logger,
	}
}

// SetNotify attaches the scheduler's change trigger. The scheduler is
// constructed after the service, so this is wired late.
func (s *TaskService) SetNotify(fn func()) {
	s.notify = fn
}

// CreateTaskInput carries the caller-supplied fields of a new task.
type CreateTaskInput struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	Priority         string `json:"priority"`
	EstimatedMinutes int    `json:"estimated_minutes"`
}

// UpdateTaskInput updates only the fields that are present.
type UpdateTaskInput struct {
	Title            *string `json:"title"`
	Description      *string `json:"description"`
	Priority         *string `json:"priority"`
	Status           *string `json:"status"`
	EstimatedMinutes *int    `json:"estimated_minutes"`
	ActualMinutes    *int    `json:"actual_minutes"`
}

func (s *TaskService) CreateTask(ctx context.Context, input CreateTaskInput) (*models.Task, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if input.Priority == "" {
		input.Priority = models.PriorityMedium
	}
	if !models.ValidPriority(input.Priority) {
		return nil, fmt.Errorf("invalid priority: %s", input.Priority)
	}

	now := time.Now()
	task := &models.Task{
		ID:               models.NewID(),
		Title:            input.Title,
		Description:      input.Description,
		Priority:         input.Priority,
		Status:           models.TaskStatusTodo,
		EstimatedMinutes: input.EstimatedMinutes,
		CreatedAt:        now,
		UpdatedAt:        now,
		Source:           s.surface,
		SyncStatus:       models.SyncStatusPending,
	}

	if err := s.commit(ctx, task); err != nil {
		return nil, err
	}
	s.logger.Info().Str("task_id", task.ID).Str("title", task.Title).Msg("Task created")
	return task, nil
}

func (s *TaskService) UpdateTask(ctx context.Context, id string, input UpdateTaskInput) (*models.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		if *input.Title == "" {
			return nil, fmt.Errorf("title cannot be empty")
		}
		task.Title = *input.Title
	}
	if input.Description != nil {
		task.Description = *input.Description
	}
	if input.Priority != nil {
		if !models.ValidPriority(*input.Priority) {
			return nil, fmt.Errorf("invalid priority: %s", *input.Priority)
		}
		task.Priority = *input.Priority
	}
	if input.Status != nil {
		if !models.ValidTaskStatus(*input.Status) {
			return nil, fmt.Errorf("invalid status: %s", *input.Status)
		}
		task.Status = *input.Status
	}
	if input.EstimatedMinutes != nil {
		task.EstimatedMinutes = *input.EstimatedMinutes
	}
	if input.ActualMinutes != nil {
		task.ActualMinutes = *input.ActualMinutes
	}

	task.UpdatedAt = s.stamp(task.UpdatedAt)
	task.Source = s.surface
	task.SyncStatus = models.SyncStatusPending

	if err := s.commit(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// CompleteTask marks a task done and records the actual time spent.
func (s *TaskService) CompleteTask(ctx context.Context, id string, actualMinutes int) (*models.Task, error) {
	status := models.TaskStatusDone
	input := UpdateTaskInput{Status: &status}
	if actualMinutes > 0 {
		input.ActualMinutes = &actualMinutes
	}
	return s.UpdateTask(ctx, id, input)
}

// RecordEnergy queues an energy-level sample for the backend.
func (s *TaskService) RecordEnergy(ctx context.Context, sample any) error {
	return s.enqueueSidecar(ctx, models.QueueTypeEnergyUpdate, sample)
}

// RecordFocusSession queues a completed focus session for the backend.
func (s *TaskService) RecordFocusSession(ctx context.Context, session any) error {
	return s.enqueueSidecar(ctx, models.QueueTypeFocusSession, session)
}

// commit is the single write path: persist, queue, announce.
func (s *TaskService) commit(ctx context.Context, task *models.Task) error {
	if err := s.store.UpsertTask(ctx, task); err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	if _, err := s.queue.EnqueueTaskUpdate(ctx, task.ID); err != nil {
		return fmt.Errorf("enqueue task update: %w", err)
	}
	if s.events != nil {
		_ = s.events.PublishJSON(events.EventTaskUpdated, task)
	}
	if s.notify != nil {
		s.notify()
	}
	return nil
}

func (s *TaskService) enqueueSidecar(ctx context.Context, itemType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", itemType, err)
	}
	if _, err := s.queue.Enqueue(ctx, itemType, string(raw)); err != nil {
		return err
	}
	if s.notify != nil {
		s.notify()
	}
	return nil
}

// stamp returns now, nudged forward when the clock has not advanced past
// the record's current updated_at. Timestamps never step backwards for
// the same record on this surface.
func (s *TaskService) stamp(prev time.Time) time.Time {
	now := time.Now()
	if !now.After(prev) {
		return prev.Add(time.Millisecond)
	}
	return now
}
