package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"tasksync/internal/domain"
	"tasksync/internal/models"
	"tasksync/internal/service"
)

// ConflictResolver closes a pending conflict with an external decision.
type ConflictResolver interface {
	ResolveConflict(ctx context.Context, conflictID string, resolution models.Resolution) error
}

// ReportWriter produces an on-disk snapshot report.
type ReportWriter interface {
	WriteReport(ctx context.Context) (string, error)
}

// Deps collects what the handlers need. Trigger requests an immediate
// sync cycle; it may be nil when no scheduler is attached.
type Deps struct {
	Store    domain.Store
	Queue    domain.ChangeQueue
	Tasks    *service.TaskService
	Resolver ConflictResolver
	Status   domain.StatusRepository
	Exporter ReportWriter
	Trigger  func()
}

func (s *HTTPServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tasks, err := s.deps.Store.ListTasks(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list tasks")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
	case http.MethodPost:
		var input service.CreateTaskInput
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&input); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		task, err := s.deps.Tasks.CreateTask(r.Context(), input)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, task)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTaskByID serves GET /api/v1/tasks/{id}, PATCH /api/v1/tasks/{id}
// and POST /api/v1/tasks/{id}/complete.
func (s *HTTPServer) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/tasks/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	taskID, action, _ := strings.Cut(rest, "/")
	if taskID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		task, err := s.deps.Store.GetTask(r.Context(), taskID)
		if err != nil {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeJSON(w, http.StatusOK, task)
	case action == "" && r.Method == http.MethodPatch:
		var input service.UpdateTaskInput
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&input); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		task, err := s.deps.Tasks.UpdateTask(r.Context(), taskID, input)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, task)
	case action == "complete" && r.Method == http.MethodPost:
		var body struct {
			ActualMinutes int `json:"actual_minutes"`
		}
		// An empty body is fine, the duration is optional.
		_ = json.NewDecoder(r.Body).Decode(&body)
		task, err := s.deps.Tasks.CompleteTask(r.Context(), taskID, body.ActualMinutes)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, task)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleConflicts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	conflicts, err := s.deps.Store.ListPendingConflicts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list conflicts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}

// handleResolveConflict serves POST /api/v1/conflicts/{id}/resolve.
func (s *HTTPServer) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/v1/conflicts/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	conflictID, action, found := strings.Cut(rest, "/")
	if !found || action != "resolve" || conflictID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var resolution models.Resolution
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&resolution); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.deps.Resolver.ResolveConflict(r.Context(), conflictID, resolution); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.deps.Trigger != nil {
		s.deps.Trigger()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (s *HTTPServer) handleDeadLetter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	items, err := s.deps.Queue.DeadLetters(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status, err := s.deps.Status.GetStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleTriggerSync requests an immediate cycle, for "sync now" buttons.
func (s *HTTPServer) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	s.deps.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

// handleExport writes a snapshot report to the exports directory and
// returns where it landed.
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "exports not configured")
		return
	}
	path, err := s.deps.Exporter.WriteReport(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to write report")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": path})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
