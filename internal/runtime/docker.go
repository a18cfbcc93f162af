package runtime

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/seantiz/foreman/internal/model"
)

// taskLabel is the container label carrying the task id.
const taskLabel = "foreman.task"

// CommandRunner executes a command and returns its stdout. Extracted so
// tests can run the docker implementation without a docker daemon.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecCommandRunner implements CommandRunner using os/exec.
type ExecCommandRunner struct{}

// Run executes a command and returns its stdout as bytes.
func (r *ExecCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// Docker drives the container runtime through the docker CLI.
type Docker struct {
	bin    string
	runner CommandRunner
}

// NewDocker creates a Docker runtime using the given docker binary.
func NewDocker(bin string) *Docker {
	if bin == "" {
		bin = "docker"
	}
	return &Docker{bin: bin, runner: &ExecCommandRunner{}}
}

var _ Runtime = (*Docker)(nil)

// StartExecution launches a detached agent container for the task, labelled
// with the task id so stop can find it later. The image name is derived
// from the task's agent definition.
func (d *Docker) StartExecution(ctx context.Context, task *model.Task, worker *model.Worker) (string, error) {
	args := []string{
		"run", "--detach",
		"--label", taskLabel + "=" + task.ID,
		"--env", "FOREMAN_TASK_ID=" + task.ID,
		"--env", "FOREMAN_WORKER_ID=" + worker.ID,
		"agent/" + task.AgentDefinitionID,
	}
	out, err := d.runner.Run(ctx, d.bin, args...)
	if err != nil {
		return "", fmt.Errorf("start execution: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// StopContainersForTask stops every container carrying the task label and
// returns how many were stopped. An unavailable runtime (missing binary or
// unreachable daemon) is not an error: nothing was running, nothing stopped.
func (d *Docker) StopContainersForTask(ctx context.Context, taskID string, timeout time.Duration) (int, error) {
	out, err := d.runner.Run(ctx, d.bin, "ps", "--quiet", "--filter", "label="+taskLabel+"="+taskID)
	if err != nil {
		if runtimeUnavailable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("list containers: %w", err)
	}

	ids := strings.Fields(string(out))
	if len(ids) == 0 {
		return 0, nil
	}

	stopArgs := append([]string{"stop", "--time", strconv.Itoa(int(timeout.Seconds()))}, ids...)
	if _, err := d.runner.Run(ctx, d.bin, stopArgs...); err != nil {
		return 0, fmt.Errorf("stop containers: %w", err)
	}
	return len(ids), nil
}

// runtimeUnavailable reports whether the error indicates the docker binary
// or daemon socket is simply absent.
func runtimeUnavailable(err error) bool {
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Cannot connect to the Docker daemon") ||
		strings.Contains(msg, "no such file or directory")
}
