package model

import "time"

// Worker status constants.
const (
	WorkerIdle     = "idle"
	WorkerBusy     = "busy"
	WorkerOffline  = "offline"
	WorkerDraining = "draining"
)

// Worker represents an execution node with bounded concurrent capacity and a
// capability set of agent definitions it can run.
type Worker struct {
	ID                string    `json:"id"`
	Name              string    `json:"name,omitempty"`
	Status            string    `json:"status"`
	MaxConcurrent     int       `json:"max_concurrent"`
	CurrentTaskID     *string   `json:"current_task_id,omitempty"`
	SupportedAgentIDs []string  `json:"supported_agent_ids"`
	RegisteredAt      time.Time `json:"registered_at"`
	LastHeartbeatAt   time.Time `json:"last_heartbeat_at"`
}

// IsStale reports whether the worker's last heartbeat is older than threshold.
func (w *Worker) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(w.LastHeartbeatAt) > threshold
}

// Supports reports whether the worker can run tasks for the given agent definition.
func (w *Worker) Supports(agentDefinitionID string) bool {
	for _, id := range w.SupportedAgentIDs {
		if id == agentDefinitionID {
			return true
		}
	}
	return false
}
