package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/foreman/internal/events"
	"github.com/seantiz/foreman/internal/model"
	"github.com/seantiz/foreman/internal/scheduler"
	"github.com/seantiz/foreman/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
	defaultMaxRetry  = 1
)

// createTaskRequest is the JSON body for POST /v1/tasks.
type createTaskRequest struct {
	AgentDefinitionID string   `json:"agent_definition_id"`
	GroupID           string   `json:"group_id"`
	Payload           string   `json:"payload"`
	DependsOn         []string `json:"depends_on"`
	MaxRetries        *int     `json:"max_retries"`
	Queue             bool     `json:"queue"`
}

// listTasksResponse wraps the paginated list response.
type listTasksResponse struct {
	Tasks  []*model.Task `json:"tasks"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.AgentDefinitionID == "" {
		s.writeError(w, http.StatusBadRequest, "agent_definition_id is required")
		return
	}

	maxRetries := defaultMaxRetry
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			s.writeError(w, http.StatusBadRequest, "max_retries must be non-negative")
			return
		}
		maxRetries = *req.MaxRetries
	}

	task := &model.Task{
		ID:                model.NewID(),
		Status:            model.StatusDraft,
		AgentDefinitionID: req.AgentDefinitionID,
		GroupID:           req.GroupID,
		Payload:           req.Payload,
		DependsOn:         req.DependsOn,
		MaxRetries:        maxRetries,
		CreatedAt:         time.Now().UTC(),
	}

	if err := s.store.CreateTask(r.Context(), task); err != nil {
		s.logger.Error("create task", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}
	s.recorder.Emit(r.Context(), events.Event{
		Type:   events.TaskCreated,
		Actor:  "api",
		TaskID: task.ID,
	})

	if req.Queue {
		queued, err := s.sched.Queue(r.Context(), task.ID)
		if err != nil {
			s.logger.Error("queue created task", "task_id", task.ID, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to queue task")
			return
		}
		task = queued
	}

	s.writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, err := s.store.GetTask(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		s.logger.Error("get task", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	s.writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)
	status := r.URL.Query().Get("status")

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	tasks, total, err := s.store.ListTasks(r.Context(), status, limit, offset)
	if err != nil {
		s.logger.Error("list tasks", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	if tasks == nil {
		tasks = []*model.Task{}
	}

	s.writeJSON(w, http.StatusOK, listTasksResponse{
		Tasks:  tasks,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleQueueTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, err := s.sched.Queue(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if errors.Is(err, scheduler.ErrConflict) {
		s.writeError(w, http.StatusConflict, "task is not queueable from its current status")
		return
	}
	if err != nil {
		s.logger.Error("queue task", "task_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to queue task")
		return
	}

	s.writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, err := s.sched.Cancel(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		s.logger.Error("cancel task", "task_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to cancel task")
		return
	}

	s.writeJSON(w, http.StatusOK, task)
}

// feedbackRequest is the JSON body for POST /v1/tasks/{id}/status, reported
// by the worker that executed the task.
type feedbackRequest struct {
	WorkerID string `json:"worker_id"`
	Status   string `json:"status"`
	Error    string `json:"error"`
}

func (s *Server) handleTaskFeedback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req feedbackRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.WorkerID == "" {
		s.writeError(w, http.StatusBadRequest, "worker_id is required")
		return
	}

	task, err := s.sched.Feedback(r.Context(), id, req.WorkerID, req.Status, req.Error)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if errors.Is(err, scheduler.ErrConflict) {
		s.writeError(w, http.StatusConflict, "task is not running for this worker")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, task)
}

// reviewRequest is the JSON body for POST /v1/tasks/{id}/review.
type reviewRequest struct {
	Verdict string `json:"verdict"`
}

func (s *Server) handleReviewTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req reviewRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	task, err := s.sched.Review(r.Context(), id, req.Verdict)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if errors.Is(err, scheduler.ErrConflict) {
		s.writeError(w, http.StatusConflict, "task is not awaiting review")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, task)
}

// taskEventsResponse is the JSON response for GET /v1/tasks/{id}/events.
type taskEventsResponse struct {
	TaskID string         `json:"task_id"`
	Events []events.Event `json:"events"`
}

func (s *Server) handleGetTaskEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.store.GetTask(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "task not found")
			return
		}
		s.logger.Error("get task for events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	recorded, err := s.store.ListTaskEvents(r.Context(), id)
	if err != nil {
		s.logger.Error("list task events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list task events")
		return
	}
	if recorded == nil {
		recorded = []events.Event{}
	}

	s.writeJSON(w, http.StatusOK, taskEventsResponse{TaskID: id, Events: recorded})
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
