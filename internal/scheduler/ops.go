package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/seantiz/foreman/internal/events"
	"github.com/seantiz/foreman/internal/model"
	"github.com/seantiz/foreman/internal/store"
)

// ErrConflict is returned when a conditional transition matched zero rows:
// the task is not in the expected state, or belongs to a different worker.
var ErrConflict = errors.New("task state conflict")

// Queue transitions a draft or waiting task to queued so the next tick can
// pick it up.
func (s *Scheduler) Queue(ctx context.Context, taskID string) (*model.Task, error) {
	n, err := s.store.QueueTask(ctx, taskID, s.nowFunc().UTC())
	if err != nil {
		return nil, fmt.Errorf("queue task: %w", err)
	}
	if n == 0 {
		task, err := s.store.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		return task, ErrConflict
	}

	s.recorder.Emit(ctx, events.Event{
		Type:   events.TaskQueued,
		Actor:  "api",
		TaskID: taskID,
	})
	return s.store.GetTask(ctx, taskID)
}

// Cancel transitions a task to cancelled and makes a best-effort,
// non-blocking attempt to stop its containers. Cancelling a task already in
// a terminal state is a successful no-op. A stop failure is recorded as a
// task.stop_failed event and never fails the cancel.
func (s *Scheduler) Cancel(ctx context.Context, taskID string) (*model.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if model.IsTerminal(task.Status) {
		return task, nil
	}

	wasRunning := task.Status == model.StatusRunning
	n, err := s.store.CancelTask(ctx, taskID, s.nowFunc().UTC())
	if err != nil {
		return nil, fmt.Errorf("cancel task: %w", err)
	}
	if n > 0 {
		s.recorder.Emit(ctx, events.Event{
			Type:   events.TaskCancelled,
			Actor:  "api",
			TaskID: taskID,
		})
	}

	if wasRunning {
		// Track the asynchronous stop under the task id so a redispatch of
		// the same task can wait for it instead of racing.
		s.releases.Track(taskID, func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 2*s.cfg.StopTimeout)
			defer cancel()

			stopped, err := s.runtime.StopContainersForTask(stopCtx, taskID, s.cfg.StopTimeout)
			if err != nil {
				s.logger.Error("stop containers for cancelled task", "task_id", taskID, "error", err)
				s.recorder.Emit(context.Background(), events.Event{
					Type:    events.TaskStopFailed,
					Actor:   "scheduler",
					TaskID:  taskID,
					Payload: map[string]any{"error": err.Error()},
				})
				return
			}
			s.logger.Info("containers stopped for cancelled task", "task_id", taskID, "stopped", stopped)
		})
	}

	return s.store.GetTask(ctx, taskID)
}

// Feedback applies asynchronous execution feedback from the container
// runtime path: running → completed, failed, or awaiting_review. It arrives
// at an arbitrary time relative to ticks; the conditional update scoped to
// the reporting worker decides whether it still applies.
func (s *Scheduler) Feedback(ctx context.Context, taskID, workerID, status, errMsg string) (*model.Task, error) {
	switch status {
	case model.StatusCompleted, model.StatusFailed, model.StatusAwaitingReview:
	default:
		return nil, fmt.Errorf("invalid feedback status %q", status)
	}

	n, err := s.store.FinishFromRunning(ctx, taskID, workerID, status, errMsg, s.nowFunc().UTC())
	if err != nil {
		return nil, fmt.Errorf("apply feedback: %w", err)
	}
	if n == 0 {
		task, err := s.store.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		return task, ErrConflict
	}

	eventType := events.TaskProgress
	if status == model.StatusCompleted {
		eventType = events.TaskCompleted
	}
	s.recorder.Emit(ctx, events.Event{
		Type:     eventType,
		Actor:    "worker",
		TaskID:   taskID,
		WorkerID: workerID,
		Payload:  map[string]any{"status": status},
	})

	return s.store.GetTask(ctx, taskID)
}

// Review resolves an awaiting_review task to approved or rejected.
func (s *Scheduler) Review(ctx context.Context, taskID, verdict string) (*model.Task, error) {
	if verdict != model.StatusApproved && verdict != model.StatusRejected {
		return nil, fmt.Errorf("invalid review verdict %q", verdict)
	}

	n, err := s.store.ReviewTask(ctx, taskID, verdict, s.nowFunc().UTC())
	if err != nil {
		return nil, fmt.Errorf("review task: %w", err)
	}
	if n == 0 {
		task, err := s.store.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		return task, ErrConflict
	}

	s.recorder.Emit(ctx, events.Event{
		Type:    events.TaskProgress,
		Actor:   "api",
		TaskID:  taskID,
		Payload: map[string]any{"status": verdict},
	})
	return s.store.GetTask(ctx, taskID)
}

// Heartbeat records a worker heartbeat. An empty status keeps the worker's
// current one, so a liveness-only ping never flips a busy worker. Offline
// and unrecognized statuses are rejected; the offline transition belongs to
// the sweep and the manual offline action.
func (s *Scheduler) Heartbeat(ctx context.Context, workerID, status string, currentTaskID *string) error {
	switch status {
	case "", model.WorkerIdle, model.WorkerBusy, model.WorkerDraining:
	default:
		return fmt.Errorf("invalid heartbeat status %q", status)
	}
	n, err := s.store.Heartbeat(ctx, workerID, status, currentTaskID, s.nowFunc().UTC())
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DrainWorker stops a worker receiving new assignments; its running tasks
// finish normally.
func (s *Scheduler) DrainWorker(ctx context.Context, workerID string) error {
	n, err := s.store.SetWorkerStatus(ctx, workerID, model.WorkerDraining)
	if err != nil {
		return fmt.Errorf("drain worker: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	s.recorder.Emit(ctx, events.Event{
		Type:     events.WorkerDraining,
		Actor:    "api",
		WorkerID: workerID,
	})
	return nil
}

// OfflineWorker takes a worker offline by manual action and recovers its
// running tasks.
func (s *Scheduler) OfflineWorker(ctx context.Context, workerID string) (RecoveryResult, error) {
	n, err := s.store.MarkWorkerOffline(ctx, workerID)
	if err != nil {
		return RecoveryResult{}, fmt.Errorf("offline worker: %w", err)
	}
	if n > 0 {
		s.recorder.Emit(ctx, events.Event{
			Type:     events.WorkerOffline,
			Actor:    "api",
			WorkerID: workerID,
			Payload:  map[string]any{"reason": ReasonOfflineManual},
		})
	}
	return s.RecoverForWorker(ctx, workerID, ReasonOfflineManual)
}
