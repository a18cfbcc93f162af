package model

import "time"

// Task status constants.
const (
	StatusDraft          = "draft"
	StatusQueued         = "queued"
	StatusWaiting        = "waiting"
	StatusRunning        = "running"
	StatusAwaitingReview = "awaiting_review"
	StatusApproved       = "approved"
	StatusCompleted      = "completed"
	StatusRejected       = "rejected"
	StatusFailed         = "failed"
	StatusCancelled      = "cancelled"
)

// terminalStatuses are statuses a task never leaves (except idempotent cancel,
// which is a no-op on them).
var terminalStatuses = map[string]bool{
	StatusApproved:  true,
	StatusCompleted: true,
	StatusRejected:  true,
	StatusFailed:    true,
	StatusCancelled: true,
}

// successTerminalStatuses satisfy dependents for dependency resolution.
var successTerminalStatuses = map[string]bool{
	StatusCompleted: true,
	StatusApproved:  true,
}

// IsTerminal reports whether the given status is terminal.
func IsTerminal(status string) bool {
	return terminalStatuses[status]
}

// IsSuccessTerminal reports whether the given status counts as successful
// completion for dependency-satisfaction purposes.
func IsSuccessTerminal(status string) bool {
	return successTerminalStatuses[status]
}

// validTransitions maps each status to the set of statuses it may transition to.
// Cancellation from any non-terminal status is always allowed and handled
// separately by ValidTransition.
var validTransitions = map[string]map[string]bool{
	StatusDraft: {
		StatusQueued: true,
	},
	StatusQueued: {
		StatusRunning: true,
		StatusWaiting: true,
	},
	StatusWaiting: {
		StatusQueued: true,
	},
	StatusRunning: {
		StatusCompleted:      true,
		StatusFailed:         true,
		StatusAwaitingReview: true,
		StatusQueued:         true, // recovery requeue
	},
	StatusAwaitingReview: {
		StatusApproved: true,
		StatusRejected: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	if to == StatusCancelled {
		return !IsTerminal(from)
	}
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Task represents a unit of schedulable work: one automated coding-agent run.
type Task struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	AgentDefinitionID string     `json:"agent_definition_id"`
	GroupID           string     `json:"group_id,omitempty"`
	Payload           string     `json:"payload,omitempty"`
	DependsOn         []string   `json:"depends_on,omitempty"`
	RetryCount        int        `json:"retry_count"`
	MaxRetries        int        `json:"max_retries"`
	AssignedWorkerID  *string    `json:"assigned_worker_id,omitempty"`
	Error             string     `json:"error,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	QueuedAt          *time.Time `json:"queued_at,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// RetryEligible reports whether the task still has retry budget.
func (t *Task) RetryEligible() bool {
	return t.RetryCount < t.MaxRetries
}
