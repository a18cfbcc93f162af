package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/seantiz/foreman/internal/events"
	"github.com/seantiz/foreman/internal/model"
	"github.com/seantiz/foreman/internal/store"
)

// fakeRuntime records start/stop calls.
type fakeRuntime struct {
	mu       sync.Mutex
	started  []string
	stopped  []string
	startErr error
	stopErr  error
}

func (f *fakeRuntime) StartExecution(_ context.Context, task *model.Task, _ *model.Worker) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, task.ID)
	return "handle-" + task.ID, nil
}

func (f *fakeRuntime) StopContainersForTask(_ context.Context, taskID string, _ time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return 0, f.stopErr
	}
	f.stopped = append(f.stopped, taskID)
	return 1, nil
}

func (f *fakeRuntime) startedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

func (f *fakeRuntime) stoppedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stopped...)
}

// testEnv bundles a scheduler with its collaborators and a controllable clock.
type testEnv struct {
	sched   *Scheduler
	store   *store.SQLiteStore
	runtime *fakeRuntime
	bus     *events.Bus
	now     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	bus := events.NewBus()
	rec := events.NewRecorder(bus, s, logger)
	rt := &fakeRuntime{}

	env := &testEnv{
		store:   s,
		runtime: rt,
		bus:     bus,
		now:     time.Now().UTC(),
	}
	env.sched = New(Config{
		TickInterval:   time.Second,
		StaleThreshold: 30 * time.Second,
		StopTimeout:    time.Second,
	}, s, rt, rec, logger)
	env.sched.nowFunc = func() time.Time { return env.now }
	return env
}

func (e *testEnv) createTask(t *testing.T, status string, mutate ...func(*model.Task)) *model.Task {
	t.Helper()
	now := e.now
	task := &model.Task{
		ID:                model.NewID(),
		Status:            status,
		AgentDefinitionID: "claude-code",
		MaxRetries:        1,
		CreatedAt:         now,
	}
	if status == model.StatusQueued {
		task.QueuedAt = &now
	}
	for _, m := range mutate {
		m(task)
	}
	if err := e.store.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return task
}

func (e *testEnv) createWorker(t *testing.T, mutate ...func(*model.Worker)) *model.Worker {
	t.Helper()
	w := &model.Worker{
		ID:                model.NewID(),
		Status:            model.WorkerIdle,
		MaxConcurrent:     2,
		SupportedAgentIDs: []string{"claude-code"},
		RegisteredAt:      e.now,
		LastHeartbeatAt:   e.now,
	}
	for _, m := range mutate {
		m(w)
	}
	if err := e.store.CreateWorker(context.Background(), w); err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}
	return w
}

func (e *testEnv) taskStatus(t *testing.T, id string) string {
	t.Helper()
	task, err := e.store.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	return task.Status
}
