// Package events carries structured notifications for every task and worker
// state transition. Each event goes two ways: a durable audit append for
// post-hoc reconciliation, and a fire-and-forget broadcast to connected
// observers (no replay guarantee at that layer).
package events

import "time"

// Event type constants.
const (
	TaskCreated    = "task.created"
	TaskQueued     = "task.queued"
	TaskStarted    = "task.started"
	TaskProgress   = "task.progress"
	TaskCompleted  = "task.completed"
	TaskCancelled  = "task.cancelled"
	TaskStopFailed = "task.stop_failed"

	WorkerRegistered = "worker.registered"
	WorkerOffline    = "worker.offline"
	WorkerDraining   = "worker.draining"
)

// Event describes a single state transition.
type Event struct {
	ID       int64          `json:"id,omitempty"`
	Type     string         `json:"type"`
	Actor    string         `json:"actor"`
	TaskID   string         `json:"task_id,omitempty"`
	WorkerID string         `json:"worker_id,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	At       time.Time      `json:"at"`
}
