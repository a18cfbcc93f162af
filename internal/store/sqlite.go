package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seantiz/foreman/internal/events"
	"github.com/seantiz/foreman/internal/model"

	_ "modernc.org/sqlite"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS tasks (
    id                  TEXT PRIMARY KEY,
    status              TEXT NOT NULL,
    agent_definition_id TEXT NOT NULL,
    group_id            TEXT,
    payload             TEXT,
    depends_on          TEXT NOT NULL DEFAULT '[]',
    retry_count         INTEGER NOT NULL DEFAULT 0,
    max_retries         INTEGER NOT NULL DEFAULT 0,
    assigned_worker_id  TEXT,
    error               TEXT,
    created_at          DATETIME NOT NULL,
    queued_at           DATETIME,
    started_at          DATETIME,
    completed_at        DATETIME
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_worker ON tasks(assigned_worker_id);

CREATE TABLE IF NOT EXISTS workers (
    id                  TEXT PRIMARY KEY,
    name                TEXT,
    status              TEXT NOT NULL,
    max_concurrent      INTEGER NOT NULL DEFAULT 1,
    current_task_id     TEXT,
    supported_agent_ids TEXT NOT NULL DEFAULT '[]',
    registered_at       DATETIME NOT NULL,
    last_heartbeat_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS task_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    type       TEXT NOT NULL,
    actor      TEXT NOT NULL,
    task_id    TEXT,
    worker_id  TEXT,
    payload    TEXT,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_events_task ON task_events(task_id);
`

const taskColumns = `id, status, agent_definition_id, group_id, payload, depends_on,
	retry_count, max_retries, assigned_worker_id, error,
	created_at, queued_at, started_at, completed_at`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Tasks ---

// CreateTask inserts a new task record.
func (s *SQLiteStore) CreateTask(ctx context.Context, t *model.Task) error {
	deps, err := marshalStrings(t.DependsOn)
	if err != nil {
		return fmt.Errorf("marshal depends_on: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (
			id, status, agent_definition_id, group_id, payload, depends_on,
			retry_count, max_retries, assigned_worker_id, error,
			created_at, queued_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Status, t.AgentDefinitionID, t.GroupID, t.Payload, deps,
		t.RetryCount, t.MaxRetries, t.AssignedWorkerID, t.Error,
		t.CreatedAt, t.QueuedAt, t.StartedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func scanTask(row interface{ Scan(...any) error }) (*model.Task, error) {
	t := &model.Task{}
	var deps string
	err := row.Scan(
		&t.ID, &t.Status, &t.AgentDefinitionID, &t.GroupID, &t.Payload, &deps,
		&t.RetryCount, &t.MaxRetries, &t.AssignedWorkerID, &t.Error,
		&t.CreatedAt, &t.QueuedAt, &t.StartedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.DependsOn, err = unmarshalStrings(deps); err != nil {
		return nil, fmt.Errorf("unmarshal depends_on: %w", err)
	}
	return t, nil
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns a paginated list of tasks ordered by created_at DESC,
// optionally filtered by status, along with the matching total.
func (s *SQLiteStore) ListTasks(ctx context.Context, status string, limit, offset int) ([]*model.Task, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	where := ""
	args := []any{}
	if status != "" {
		where = " WHERE status = ?"
		args = append(args, status)
	}

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tasks: %w", err)
	}

	return tasks, total, nil
}

// ListTasksByStatus returns all tasks with the given status, ordered by
// queued_at ascending so dispatch is FIFO-fair.
func (s *SQLiteStore) ListTasksByStatus(ctx context.Context, status string) ([]*model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY queued_at ASC, created_at ASC`,
		status)
	if err != nil {
		return nil, fmt.Errorf("list tasks by status: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// GetTasksByIDs returns the tasks with the given ids, keyed by id. Missing
// ids are simply absent from the result.
func (s *SQLiteStore) GetTasksByIDs(ctx context.Context, ids []string) (map[string]*model.Task, error) {
	out := make(map[string]*model.Task, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get tasks by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

// CountRunningByWorker returns the number of running tasks per assigned worker.
func (s *SQLiteStore) CountRunningByWorker(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT assigned_worker_id, COUNT(*) FROM tasks
		 WHERE status = ? AND assigned_worker_id IS NOT NULL
		 GROUP BY assigned_worker_id`, model.StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("count running by worker: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var workerID string
		var n int
		if err := rows.Scan(&workerID, &n); err != nil {
			return nil, fmt.Errorf("scan running count: %w", err)
		}
		out[workerID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate running counts: %w", err)
	}
	return out, nil
}

// --- Conditional task transitions ---

func rowsAffected(res sql.Result, op string) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n, nil
}

// ClaimTask transitions a queued task to running for the given worker. The
// WHERE status guard makes the claim single-winner under concurrent
// scheduler instances: zero rows means another tick already claimed it.
func (s *SQLiteStore) ClaimTask(ctx context.Context, id, workerID string, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, assigned_worker_id = ?, started_at = ?
		 WHERE id = ? AND status = ?`,
		model.StatusRunning, workerID, now, id, model.StatusQueued)
	if err != nil {
		return 0, fmt.Errorf("claim task: %w", err)
	}
	return rowsAffected(res, "claim task")
}

// FinishFromRunning applies execution feedback: running → completed, failed,
// or awaiting_review, scoped to the worker that was running the task.
// Terminal statuses clear the assignment and set completed_at.
func (s *SQLiteStore) FinishFromRunning(ctx context.Context, id, workerID, status, errMsg string, now time.Time) (int64, error) {
	var res sql.Result
	var err error
	if model.IsTerminal(status) {
		res, err = s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ?, error = ?, assigned_worker_id = NULL, completed_at = ?
			 WHERE id = ? AND status = ? AND assigned_worker_id = ?`,
			status, errMsg, now, id, model.StatusRunning, workerID)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ?, error = ?
			 WHERE id = ? AND status = ? AND assigned_worker_id = ?`,
			status, errMsg, id, model.StatusRunning, workerID)
	}
	if err != nil {
		return 0, fmt.Errorf("finish task: %w", err)
	}
	return rowsAffected(res, "finish task")
}

// RequeueFromRunning returns an orphaned running task to the queue,
// incrementing its retry count and clearing the assignment and run
// timestamps. Scoped to (id, running, worker) so that a task already
// re-dispatched elsewhere is never clobbered.
func (s *SQLiteStore) RequeueFromRunning(ctx context.Context, id, workerID string, now time.Time) (int64, error) {
	res, err := s.execScopedToWorker(ctx,
		`UPDATE tasks SET status = ?, retry_count = retry_count + 1,
			assigned_worker_id = NULL, started_at = NULL, completed_at = NULL, queued_at = ?`,
		[]any{model.StatusQueued, now}, id, workerID)
	if err != nil {
		return 0, fmt.Errorf("requeue task: %w", err)
	}
	return rowsAffected(res, "requeue task")
}

// FailFromRunning marks an orphaned running task failed after its retry
// budget is exhausted. Same scoping as RequeueFromRunning.
func (s *SQLiteStore) FailFromRunning(ctx context.Context, id, workerID, errMsg string, now time.Time) (int64, error) {
	res, err := s.execScopedToWorker(ctx,
		`UPDATE tasks SET status = ?, error = ?, assigned_worker_id = NULL, completed_at = ?`,
		[]any{model.StatusFailed, errMsg, now}, id, workerID)
	if err != nil {
		return 0, fmt.Errorf("fail task: %w", err)
	}
	return rowsAffected(res, "fail task")
}

// execScopedToWorker appends the (id, running, worker) guard to setClause.
// An empty workerID matches tasks with no assignment, which can occur for a
// running task observed mid-claim by startup recovery.
func (s *SQLiteStore) execScopedToWorker(ctx context.Context, setClause string, setArgs []any, id, workerID string) (sql.Result, error) {
	query := setClause + ` WHERE id = ? AND status = ?`
	args := append(setArgs, id, model.StatusRunning)
	if workerID == "" {
		query += ` AND assigned_worker_id IS NULL`
	} else {
		query += ` AND assigned_worker_id = ?`
		args = append(args, workerID)
	}
	return s.db.ExecContext(ctx, query, args...)
}

// QueueTask transitions a draft or waiting task to queued.
func (s *SQLiteStore) QueueTask(ctx context.Context, id string, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, queued_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		model.StatusQueued, now, id, model.StatusDraft, model.StatusWaiting)
	if err != nil {
		return 0, fmt.Errorf("queue task: %w", err)
	}
	return rowsAffected(res, "queue task")
}

// CancelTask transitions any non-terminal task to cancelled. Zero rows on a
// terminal task makes cancellation idempotent at the caller.
func (s *SQLiteStore) CancelTask(ctx context.Context, id string, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, assigned_worker_id = NULL, completed_at = ?
		 WHERE id = ? AND status IN (?, ?, ?, ?, ?)`,
		model.StatusCancelled, now, id,
		model.StatusDraft, model.StatusQueued, model.StatusWaiting,
		model.StatusRunning, model.StatusAwaitingReview)
	if err != nil {
		return 0, fmt.Errorf("cancel task: %w", err)
	}
	return rowsAffected(res, "cancel task")
}

// ReviewTask transitions an awaiting_review task to approved or rejected.
// Both verdicts are terminal, so the assignment is cleared alongside
// completed_at.
func (s *SQLiteStore) ReviewTask(ctx context.Context, id, verdict string, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, assigned_worker_id = NULL, completed_at = ?
		 WHERE id = ? AND status = ?`,
		verdict, now, id, model.StatusAwaitingReview)
	if err != nil {
		return 0, fmt.Errorf("review task: %w", err)
	}
	return rowsAffected(res, "review task")
}

// --- Workers ---

// CreateWorker inserts a new worker record.
func (s *SQLiteStore) CreateWorker(ctx context.Context, w *model.Worker) error {
	agents, err := marshalStrings(w.SupportedAgentIDs)
	if err != nil {
		return fmt.Errorf("marshal supported_agent_ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workers (
			id, name, status, max_concurrent, current_task_id,
			supported_agent_ids, registered_at, last_heartbeat_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.Status, w.MaxConcurrent, w.CurrentTaskID,
		agents, w.RegisteredAt, w.LastHeartbeatAt,
	)
	if err != nil {
		return fmt.Errorf("insert worker: %w", err)
	}
	return nil
}

func scanWorker(row interface{ Scan(...any) error }) (*model.Worker, error) {
	w := &model.Worker{}
	var agents string
	err := row.Scan(
		&w.ID, &w.Name, &w.Status, &w.MaxConcurrent, &w.CurrentTaskID,
		&agents, &w.RegisteredAt, &w.LastHeartbeatAt,
	)
	if err != nil {
		return nil, err
	}
	if w.SupportedAgentIDs, err = unmarshalStrings(agents); err != nil {
		return nil, fmt.Errorf("unmarshal supported_agent_ids: %w", err)
	}
	return w, nil
}

const workerColumns = `id, name, status, max_concurrent, current_task_id,
	supported_agent_ids, registered_at, last_heartbeat_at`

// GetWorker retrieves a worker by ID.
func (s *SQLiteStore) GetWorker(ctx context.Context, id string) (*model.Worker, error) {
	w, err := scanWorker(s.db.QueryRowContext(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get worker: %w", err)
	}
	return w, nil
}

// ListWorkers returns all workers ordered by registration time.
func (s *SQLiteStore) ListWorkers(ctx context.Context) ([]*model.Worker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workerColumns+` FROM workers ORDER BY registered_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var workers []*model.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workers: %w", err)
	}
	return workers, nil
}

// Heartbeat records a worker heartbeat: last_heartbeat_at, status, and the
// current task. An empty status leaves the stored status untouched so a
// bare liveness ping does not rewrite worker state.
func (s *SQLiteStore) Heartbeat(ctx context.Context, id, status string, currentTaskID *string, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workers SET status = COALESCE(NULLIF(?, ''), status), current_task_id = ?, last_heartbeat_at = ?
		 WHERE id = ?`,
		status, currentTaskID, now, id)
	if err != nil {
		return 0, fmt.Errorf("heartbeat: %w", err)
	}
	return rowsAffected(res, "heartbeat")
}

// MarkWorkerOffline transitions a worker to offline. Conditional on not
// already being offline, so a repeated sweep is a no-op (zero rows).
func (s *SQLiteStore) MarkWorkerOffline(ctx context.Context, id string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workers SET status = ?, current_task_id = NULL
		 WHERE id = ? AND status != ?`,
		model.WorkerOffline, id, model.WorkerOffline)
	if err != nil {
		return 0, fmt.Errorf("mark worker offline: %w", err)
	}
	return rowsAffected(res, "mark worker offline")
}

// SetWorkerStatus sets a worker's status unconditionally (e.g. draining).
func (s *SQLiteStore) SetWorkerStatus(ctx context.Context, id, status string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workers SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return 0, fmt.Errorf("set worker status: %w", err)
	}
	return rowsAffected(res, "set worker status")
}

// --- Stats ---

// GetStats returns aggregate counts and the average run duration of
// successfully completed tasks.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		CountByStatus: make(map[string]int),
		CountByAgent:  make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.CountByStatus[status] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT agent_definition_id, COUNT(*) FROM tasks GROUP BY agent_definition_id`)
	if err != nil {
		return nil, fmt.Errorf("count by agent: %w", err)
	}
	for rows.Next() {
		var agent string
		var n int
		if err := rows.Scan(&agent, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan agent count: %w", err)
		}
		stats.CountByAgent[agent] = n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate agent counts: %w", err)
	}
	rows.Close()

	// Average run duration computed in Go: datetime arithmetic on driver-
	// encoded timestamps is not portable across storage formats.
	rows, err = s.db.QueryContext(ctx,
		`SELECT started_at, completed_at FROM tasks
		 WHERE status IN (?, ?) AND started_at IS NOT NULL AND completed_at IS NOT NULL`,
		model.StatusCompleted, model.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("query run durations: %w", err)
	}
	defer rows.Close()

	var totalMS float64
	var n int
	for rows.Next() {
		var started, completed time.Time
		if err := rows.Scan(&started, &completed); err != nil {
			return nil, fmt.Errorf("scan run duration: %w", err)
		}
		totalMS += float64(completed.Sub(started).Milliseconds())
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run durations: %w", err)
	}
	if n > 0 {
		stats.AvgRunMS = totalMS / float64(n)
	}

	return stats, nil
}

// --- Audit trail ---

// AppendEvent appends an audit event.
func (s *SQLiteStore) AppendEvent(ctx context.Context, e events.Event) error {
	var payload []byte
	if e.Payload != nil {
		var err error
		if payload, err = json.Marshal(e.Payload); err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
	}
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_events (type, actor, task_id, worker_id, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Type, e.Actor, e.TaskID, e.WorkerID, string(payload), at)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListTaskEvents returns the audit trail for a task, oldest first.
func (s *SQLiteStore) ListTaskEvents(ctx context.Context, taskID string) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, actor, COALESCE(task_id, ''), COALESCE(worker_id, ''), COALESCE(payload, ''), created_at
		 FROM task_events WHERE task_id = ? ORDER BY id ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var e events.Event
		var payload string
		if err := rows.Scan(&e.ID, &e.Type, &e.Actor, &e.TaskID, &e.WorkerID, &payload, &e.At); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal event payload: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// --- JSON helpers ---

func marshalStrings(ss []string) (string, error) {
	if len(ss) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalStrings(s string) ([]string, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
