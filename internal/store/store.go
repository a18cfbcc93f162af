package store

import (
	"context"
	"errors"
	"time"

	"github.com/seantiz/foreman/internal/events"
	"github.com/seantiz/foreman/internal/model"
)

// ErrNotFound is returned when a task or worker is not found.
var ErrNotFound = errors.New("not found")

// Stats holds aggregate scheduling statistics.
type Stats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	CountByAgent  map[string]int `json:"count_by_agent"`
	AvgRunMS      float64        `json:"avg_run_ms"`
}

// Store defines the persistence operations for tasks, workers, and the audit
// trail. All state transitions that claim a task or clear an assignment are
// conditional writes returning rows affected: zero rows means another
// scheduler instance already handled the row, and callers skip silently.
type Store interface {
	// Tasks.
	CreateTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, status string, limit, offset int) ([]*model.Task, int, error)
	ListTasksByStatus(ctx context.Context, status string) ([]*model.Task, error)
	GetTasksByIDs(ctx context.Context, ids []string) (map[string]*model.Task, error)
	CountRunningByWorker(ctx context.Context) (map[string]int, error)

	// Conditional task transitions. Each returns rows affected.
	ClaimTask(ctx context.Context, id, workerID string, now time.Time) (int64, error)
	FinishFromRunning(ctx context.Context, id, workerID, status, errMsg string, now time.Time) (int64, error)
	RequeueFromRunning(ctx context.Context, id, workerID string, now time.Time) (int64, error)
	FailFromRunning(ctx context.Context, id, workerID, errMsg string, now time.Time) (int64, error)
	QueueTask(ctx context.Context, id string, now time.Time) (int64, error)
	CancelTask(ctx context.Context, id string, now time.Time) (int64, error)
	ReviewTask(ctx context.Context, id, verdict string, now time.Time) (int64, error)

	// Workers.
	CreateWorker(ctx context.Context, w *model.Worker) error
	GetWorker(ctx context.Context, id string) (*model.Worker, error)
	ListWorkers(ctx context.Context) ([]*model.Worker, error)
	Heartbeat(ctx context.Context, id, status string, currentTaskID *string, now time.Time) (int64, error)
	MarkWorkerOffline(ctx context.Context, id string) (int64, error)
	SetWorkerStatus(ctx context.Context, id, status string) (int64, error)

	// Stats and audit.
	GetStats(ctx context.Context) (*Stats, error)
	AppendEvent(ctx context.Context, e events.Event) error
	ListTaskEvents(ctx context.Context, taskID string) ([]events.Event, error)

	Close() error
}
