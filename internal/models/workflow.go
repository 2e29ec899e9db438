package models

import "time"

// RunStatus is the lifecycle state of one workflow execution.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the run has reached a final state.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// NodeStatus is the state of a single node within a run.
type NodeStatus string

const (
	NodePending         NodeStatus = "pending"
	NodeRunning         NodeStatus = "running"
	NodeSuccess         NodeStatus = "success"
	NodeFailed          NodeStatus = "failed"
	NodeSkipped         NodeStatus = "skipped"
	NodeWaitingApproval NodeStatus = "waiting_approval"
)

// NodeExecutionResult records the outcome of one node in a run.
type NodeExecutionResult struct {
	NodeID      string        `json:"node_id"`
	Status      NodeStatus    `json:"status"`
	Output      string        `json:"output,omitempty"`
	Error       string        `json:"error,omitempty"`
	Attempts    int           `json:"attempts"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
}

// WorkflowExecutionContext is the full state of one run. It is owned
// exclusively by the workflow executor for the run's lifetime; callers see
// snapshots only.
type WorkflowExecutionContext struct {
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
	Status      RunStatus `json:"status"`

	NodeResults map[string]*NodeExecutionResult `json:"node_results"`

	// Variables is the mutable bag feeding later steps and conditions.
	// Seeded from the trigger data; node outputs land under "<node_id>.output".
	Variables map[string]interface{} `json:"variables"`

	CurrentNode      string `json:"current_node,omitempty"`
	Error            string `json:"error,omitempty"`
	RollbackExecuted bool   `json:"rollback_executed"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
