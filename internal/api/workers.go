package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/foreman/internal/events"
	"github.com/seantiz/foreman/internal/model"
	"github.com/seantiz/foreman/internal/scheduler"
	"github.com/seantiz/foreman/internal/store"
)

// registerWorkerRequest is the JSON body for POST /v1/workers.
type registerWorkerRequest struct {
	Name              string   `json:"name"`
	MaxConcurrent     int      `json:"max_concurrent"`
	SupportedAgentIDs []string `json:"supported_agent_ids"`
}

func (s *Server) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	var req registerWorkerRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.MaxConcurrent <= 0 {
		req.MaxConcurrent = 1
	}
	if len(req.SupportedAgentIDs) == 0 {
		s.writeError(w, http.StatusBadRequest, "supported_agent_ids is required")
		return
	}

	now := time.Now().UTC()
	worker := &model.Worker{
		ID:                model.NewID(),
		Name:              req.Name,
		Status:            model.WorkerIdle,
		MaxConcurrent:     req.MaxConcurrent,
		SupportedAgentIDs: req.SupportedAgentIDs,
		RegisteredAt:      now,
		LastHeartbeatAt:   now,
	}

	if err := s.store.CreateWorker(r.Context(), worker); err != nil {
		s.logger.Error("register worker", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to register worker")
		return
	}
	s.recorder.Emit(r.Context(), events.Event{
		Type:     events.WorkerRegistered,
		Actor:    "api",
		WorkerID: worker.ID,
	})

	s.writeJSON(w, http.StatusCreated, worker)
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := s.store.ListWorkers(r.Context())
	if err != nil {
		s.logger.Error("list workers", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list workers")
		return
	}
	if workers == nil {
		workers = []*model.Worker{}
	}
	s.writeJSON(w, http.StatusOK, workers)
}

func (s *Server) handleGetWorker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	worker, err := s.store.GetWorker(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "worker not found")
		return
	}
	if err != nil {
		s.logger.Error("get worker", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get worker")
		return
	}

	s.writeJSON(w, http.StatusOK, worker)
}

// heartbeatRequest is the JSON body for POST /v1/workers/{id}/heartbeat.
type heartbeatRequest struct {
	Status        string  `json:"status"`
	CurrentTaskID *string `json:"current_task_id"`
}

func (s *Server) handleWorkerHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req heartbeatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := s.sched.Heartbeat(r.Context(), id, req.Status, req.CurrentTaskID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "worker not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	worker, err := s.store.GetWorker(r.Context(), id)
	if err != nil {
		s.logger.Error("get worker after heartbeat", "worker_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get worker")
		return
	}
	s.writeJSON(w, http.StatusOK, worker)
}

func (s *Server) handleDrainWorker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.sched.DrainWorker(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "worker not found")
		return
	}
	if err != nil {
		s.logger.Error("drain worker", "worker_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to drain worker")
		return
	}

	worker, err := s.store.GetWorker(r.Context(), id)
	if err != nil {
		s.logger.Error("get drained worker", "worker_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get worker")
		return
	}
	s.writeJSON(w, http.StatusOK, worker)
}

// offlineWorkerResponse reports what recovery did with the worker's tasks.
type offlineWorkerResponse struct {
	Worker   *model.Worker            `json:"worker"`
	Recovery scheduler.RecoveryResult `json:"recovery"`
}

func (s *Server) handleOfflineWorker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.store.GetWorker(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "worker not found")
			return
		}
		s.logger.Error("get worker for offline", "worker_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get worker")
		return
	}

	res, err := s.sched.OfflineWorker(r.Context(), id)
	if err != nil {
		s.logger.Error("offline worker", "worker_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to offline worker")
		return
	}

	worker, err := s.store.GetWorker(r.Context(), id)
	if err != nil {
		s.logger.Error("get offlined worker", "worker_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get worker")
		return
	}
	s.writeJSON(w, http.StatusOK, offlineWorkerResponse{Worker: worker, Recovery: res})
}
