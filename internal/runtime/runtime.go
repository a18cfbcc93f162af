// Package runtime abstracts the container runtime the scheduler delegates
// execution to. The scheduler only ever issues a start request and a
// best-effort stop; completion comes back asynchronously through the task
// status API.
package runtime

import (
	"context"
	"time"

	"github.com/seantiz/foreman/internal/model"
)

// Runtime is the container runtime collaborator contract.
type Runtime interface {
	// StartExecution launches the task's agent container on the chosen
	// worker and returns an opaque execution handle.
	StartExecution(ctx context.Context, task *model.Task, worker *model.Worker) (string, error)

	// StopContainersForTask stops all containers labelled with the task id,
	// waiting up to timeout per container. Best-effort: an unreachable
	// runtime socket yields zero stopped and no error.
	StopContainersForTask(ctx context.Context, taskID string, timeout time.Duration) (int, error)
}
