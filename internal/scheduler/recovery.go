package scheduler

import (
	"context"
	"fmt"

	"github.com/seantiz/foreman/internal/events"
	"github.com/seantiz/foreman/internal/model"
)

// Recovery reason constants.
const (
	ReasonStartup          = "startup"
	ReasonHeartbeatTimeout = "heartbeat_timeout"
	ReasonOfflineManual    = "offline_manual"
	ReasonPrunedOffline    = "pruned_offline"
	ReasonStartFailed      = "start_failed"
)

// RecoveryResult aggregates per-scan counts for observability.
type RecoveryResult struct {
	Scanned           int `json:"scanned"`
	RecoveredToQueued int `json:"recovered_to_queued"`
	MarkedFailed      int `json:"marked_failed"`
}

// RecoverOnStartup reconciles every task left in running. A process restart
// lost all in-memory dispatch state, so no evidence remains that anything is
// still executing: each running task is treated as if its worker were lost.
func (s *Scheduler) RecoverOnStartup(ctx context.Context) (RecoveryResult, error) {
	running, err := s.store.ListTasksByStatus(ctx, model.StatusRunning)
	if err != nil {
		return RecoveryResult{}, fmt.Errorf("list running tasks: %w", err)
	}
	return s.recoverTasks(ctx, running, ReasonStartup), nil
}

// RecoverForWorker reconciles the running tasks bound to a lost worker,
// requeuing those with retry budget and failing the rest. Recovery of one
// task never aborts the others.
func (s *Scheduler) RecoverForWorker(ctx context.Context, workerID, reason string) (RecoveryResult, error) {
	running, err := s.store.ListTasksByStatus(ctx, model.StatusRunning)
	if err != nil {
		return RecoveryResult{}, fmt.Errorf("list running tasks: %w", err)
	}

	var bound []*model.Task
	for _, t := range running {
		if t.AssignedWorkerID != nil && *t.AssignedWorkerID == workerID {
			bound = append(bound, t)
		}
	}
	return s.recoverTasks(ctx, bound, reason), nil
}

func (s *Scheduler) recoverTasks(ctx context.Context, tasks []*model.Task, reason string) RecoveryResult {
	res := RecoveryResult{Scanned: len(tasks)}
	for _, t := range tasks {
		workerID := ""
		if t.AssignedWorkerID != nil {
			workerID = *t.AssignedWorkerID
		}
		switch s.recoverTask(ctx, t.ID, workerID, t.RetryCount, t.MaxRetries, reason) {
		case recoveredQueued:
			res.RecoveredToQueued++
		case recoveredFailed:
			res.MarkedFailed++
		}
	}
	return res
}

type recoverOutcome int

const (
	recoveredNone recoverOutcome = iota
	recoveredQueued
	recoveredFailed
)

// recoverTask applies the retry budget to one orphaned running task. Each
// write is conditional on (id, running, worker); zero rows means the task
// was already handled elsewhere and is silently skipped. Errors are logged
// and confined to this task.
func (s *Scheduler) recoverTask(ctx context.Context, taskID, workerID string, retryCount, maxRetries int, reason string) recoverOutcome {
	now := s.nowFunc().UTC()

	if retryCount < maxRetries {
		n, err := s.store.RequeueFromRunning(ctx, taskID, workerID, now)
		if err != nil {
			s.logger.Error("requeue orphaned task", "task_id", taskID, "worker_id", workerID, "error", err)
			return recoveredNone
		}
		if n == 0 {
			return recoveredNone
		}
		tasksRecovered.WithLabelValues("requeued", reason).Inc()
		s.recorder.Emit(ctx, events.Event{
			Type:     events.TaskProgress,
			Actor:    "recovery",
			TaskID:   taskID,
			WorkerID: workerID,
			Payload: map[string]any{
				"status":      model.StatusQueued,
				"retry_count": retryCount + 1,
				"reason":      reason,
			},
		})
		s.logger.Info("task requeued by recovery", "task_id", taskID, "worker_id", workerID, "reason", reason)
		return recoveredQueued
	}

	n, err := s.store.FailFromRunning(ctx, taskID, workerID, "retries exhausted: "+reason, now)
	if err != nil {
		s.logger.Error("fail orphaned task", "task_id", taskID, "worker_id", workerID, "error", err)
		return recoveredNone
	}
	if n == 0 {
		return recoveredNone
	}
	tasksRecovered.WithLabelValues("failed", reason).Inc()
	s.recorder.Emit(ctx, events.Event{
		Type:     events.TaskProgress,
		Actor:    "recovery",
		TaskID:   taskID,
		WorkerID: workerID,
		Payload: map[string]any{
			"status": model.StatusFailed,
			"reason": reason,
		},
	})
	s.logger.Info("task failed by recovery", "task_id", taskID, "worker_id", workerID, "reason", reason)
	return recoveredFailed
}

// sweepStaleWorkers marks workers whose heartbeat exceeded the staleness
// threshold offline and recovers their tasks. The offline write is
// conditional, so concurrent sweeps recover each worker once.
func (s *Scheduler) sweepStaleWorkers(ctx context.Context) {
	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		s.logger.Error("list workers for sweep", "error", err)
		return
	}

	counts, err := s.store.CountRunningByWorker(ctx)
	if err != nil {
		s.logger.Error("count running tasks for sweep", "error", err)
		return
	}

	now := s.nowFunc()
	online := 0
	for _, w := range workers {
		if w.Status == model.WorkerOffline {
			// A prior recovery may have been interrupted after the offline
			// write; reconcile any tasks still bound to this worker.
			if counts[w.ID] > 0 {
				if _, err := s.RecoverForWorker(ctx, w.ID, ReasonPrunedOffline); err != nil {
					s.logger.Error("recover for offline worker", "worker_id", w.ID, "error", err)
				}
			}
			continue
		}
		if !w.IsStale(now, s.cfg.StaleThreshold) {
			online++
			continue
		}

		n, err := s.store.MarkWorkerOffline(ctx, w.ID)
		if err != nil {
			s.logger.Error("mark worker offline", "worker_id", w.ID, "error", err)
			continue
		}
		if n == 0 {
			continue // Another sweep got here first.
		}

		s.recorder.Emit(ctx, events.Event{
			Type:     events.WorkerOffline,
			Actor:    "scheduler",
			WorkerID: w.ID,
			Payload:  map[string]any{"reason": ReasonHeartbeatTimeout},
		})
		s.logger.Warn("worker stale, marked offline", "worker_id", w.ID,
			"last_heartbeat_at", w.LastHeartbeatAt)

		if _, err := s.RecoverForWorker(ctx, w.ID, ReasonHeartbeatTimeout); err != nil {
			s.logger.Error("recover for stale worker", "worker_id", w.ID, "error", err)
		}
	}
	workersOnline.Set(float64(online))
}
