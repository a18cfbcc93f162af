// Package scheduler implements the dispatch and recovery engine. A periodic
// tick selects eligible queued tasks, matches them to capable workers, and
// claims them through conditional store updates so that multiple scheduler
// processes can safely share one store. Recovery reconciles running tasks
// whose worker disappeared, on boot and whenever the staleness sweep or a
// manual action takes a worker offline.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/seantiz/foreman/internal/barrier"
	"github.com/seantiz/foreman/internal/events"
	"github.com/seantiz/foreman/internal/model"
	"github.com/seantiz/foreman/internal/runtime"
	"github.com/seantiz/foreman/internal/store"
)

// releaseWait bounds how long a dispatch waits for an in-flight container
// stop on the same task before proceeding anyway.
const releaseWait = 2 * time.Second

// Config holds scheduler configuration.
type Config struct {
	TickInterval   time.Duration // Dispatch interval (default 15s).
	StaleThreshold time.Duration // Worker heartbeat staleness threshold (default 30s).
	StopTimeout    time.Duration // Per-container stop timeout (default 10s).
}

func (c Config) withDefaults() Config {
	out := c
	if out.TickInterval <= 0 {
		out.TickInterval = 15 * time.Second
	}
	if out.StaleThreshold <= 0 {
		out.StaleThreshold = 30 * time.Second
	}
	if out.StopTimeout <= 0 {
		out.StopTimeout = 10 * time.Second
	}
	return out
}

// Status describes the scheduler lifecycle for observability.
type Status struct {
	Running    bool       `json:"running"`
	LastTickAt *time.Time `json:"last_tick_at,omitempty"`
	LastTickN  int        `json:"last_tick_dispatched"`
}

// Scheduler is the dispatch and recovery service. Construct one per process
// and pass it by reference; it owns the periodic jobs and the process-local
// release barrier.
type Scheduler struct {
	cfg      Config
	store    store.Store
	runtime  runtime.Runtime
	recorder *events.Recorder
	releases *barrier.Registry
	logger   *slog.Logger

	cron *cron.Cron

	mu         sync.Mutex
	running    bool
	lastTickAt *time.Time
	lastTickN  int

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// New creates a Scheduler. It does not start the periodic jobs — call Start.
func New(cfg Config, st store.Store, rt runtime.Runtime, rec *events.Recorder, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		store:    st,
		runtime:  rt,
		recorder: rec,
		releases: barrier.NewRegistry(),
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// Releases exposes the release barrier for collaborators that stop
// containers outside the scheduler's own paths.
func (s *Scheduler) Releases() *barrier.Registry {
	return s.releases
}

// Start registers the periodic jobs (dispatch tick, staleness sweep) and
// runs one eager tick. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.TickInterval), func() {
		if err := s.Tick(ctx); err != nil {
			s.logger.Error("dispatch tick", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("register tick job: %w", err)
	}

	sweepEvery := s.cfg.StaleThreshold / 2
	if sweepEvery < time.Second {
		sweepEvery = time.Second
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", sweepEvery), func() {
		s.sweepStaleWorkers(ctx)
	}); err != nil {
		return fmt.Errorf("register sweep job: %w", err)
	}

	c.Start()
	s.cron = c
	s.running = true

	// Eager first tick so a restart does not wait a full interval.
	go func() {
		if err := s.Tick(ctx); err != nil {
			s.logger.Error("startup tick", "error", err)
		}
	}()

	return nil
}

// Stop halts the periodic jobs and waits for any in-flight job to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// Status reports the scheduler lifecycle state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:    s.running,
		LastTickAt: s.lastTickAt,
		LastTickN:  s.lastTickN,
	}
}

// Tick runs one dispatch pass: load queued tasks FIFO and non-offline
// workers, resolve dependencies, claim eligible tasks onto workers with
// spare capacity, and issue execution starts. Store read failures abort the
// tick; the next interval retries. Individual claim losses are expected
// contention and skipped silently.
func (s *Scheduler) Tick(ctx context.Context) error {
	start := s.nowFunc()
	dispatched := 0
	defer func() {
		tickDuration.Observe(time.Since(start).Seconds())
		now := s.nowFunc()
		s.mu.Lock()
		s.lastTickAt = &now
		s.lastTickN = dispatched
		s.mu.Unlock()
	}()

	queued, err := s.store.ListTasksByStatus(ctx, model.StatusQueued)
	if err != nil {
		return fmt.Errorf("list queued tasks: %w", err)
	}
	queueDepth.Set(float64(len(queued)))
	if len(queued) == 0 {
		return nil
	}

	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		return fmt.Errorf("list workers: %w", err)
	}
	candidates := workers[:0]
	for _, w := range workers {
		if w.Status != model.WorkerOffline {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	counts, err := s.store.CountRunningByWorker(ctx)
	if err != nil {
		return fmt.Errorf("count running tasks: %w", err)
	}

	deps, err := s.loadDependencies(ctx, queued)
	if err != nil {
		return fmt.Errorf("load dependencies: %w", err)
	}

	for _, task := range queued {
		if !Eligible(task, deps) {
			continue
		}

		worker := pickWorker(candidates, counts, task.AgentDefinitionID)
		if worker == nil {
			continue // No capacity this tick; task stays queued.
		}

		// If a container stop for this task is still in flight (cancel or
		// recovery racing a redispatch), give it a moment to settle.
		s.releases.Wait(ctx, task.ID, releaseWait)

		n, err := s.store.ClaimTask(ctx, task.ID, worker.ID, s.nowFunc().UTC())
		if err != nil {
			return fmt.Errorf("claim task %s: %w", task.ID, err)
		}
		if n == 0 {
			// Another scheduler instance won the claim.
			claimContention.Inc()
			continue
		}

		counts[worker.ID]++
		dispatched++
		tasksDispatched.Inc()

		s.recorder.Emit(ctx, events.Event{
			Type:     events.TaskStarted,
			Actor:    "scheduler",
			TaskID:   task.ID,
			WorkerID: worker.ID,
			Payload:  map[string]any{"retry_count": task.RetryCount},
		})

		if _, err := s.runtime.StartExecution(ctx, task, worker); err != nil {
			// The claim stands but nothing is executing. Reconcile through
			// the normal retry budget rather than inventing a new path.
			s.logger.Error("start execution", "task_id", task.ID, "worker_id", worker.ID, "error", err)
			s.recoverTask(ctx, task.ID, worker.ID, task.RetryCount, task.MaxRetries, ReasonStartFailed)
			counts[worker.ID]--
			dispatched--
			continue
		}

		s.logger.Info("task dispatched", "task_id", task.ID, "worker_id", worker.ID)
	}

	return nil
}

// loadDependencies fetches the union of all dependency tasks for the queued
// set in a single read.
func (s *Scheduler) loadDependencies(ctx context.Context, queued []*model.Task) (map[string]*model.Task, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, t := range queued {
		for _, dep := range t.DependsOn {
			if !seen[dep] {
				seen[dep] = true
				ids = append(ids, dep)
			}
		}
	}
	if len(ids) == 0 {
		return map[string]*model.Task{}, nil
	}
	return s.store.GetTasksByIDs(ctx, ids)
}

// pickWorker selects the capable worker with the most spare capacity,
// breaking ties by earliest heartbeat so long-idle workers rotate in.
func pickWorker(workers []*model.Worker, counts map[string]int, agentDefinitionID string) *model.Worker {
	var best *model.Worker
	bestSpare := 0
	for _, w := range workers {
		if w.Status != model.WorkerIdle && w.Status != model.WorkerBusy {
			continue
		}
		if !w.Supports(agentDefinitionID) {
			continue
		}
		spare := w.MaxConcurrent - counts[w.ID]
		if spare <= 0 {
			continue
		}
		if best == nil || spare > bestSpare ||
			(spare == bestSpare && w.LastHeartbeatAt.Before(best.LastHeartbeatAt)) {
			best = w
			bestSpare = spare
		}
	}
	return best
}
