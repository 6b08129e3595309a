package workflow

import (
	"time"
)

// RunStatus is the persisted state of a workflow run.
type RunStatus string

const (
	RunRunning         RunStatus = "running"
	RunCompleted       RunStatus = "completed"
	RunFailed          RunStatus = "failed"
	RunWaitingApproval RunStatus = "waiting_approval"
	RunCancelled       RunStatus = "cancelled"
)

// Terminal reports whether no further work can happen on the run.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// Run is one execution of a workflow definition across all its resumptions.
type Run struct {
	ID             string         `json:"id"`
	WorkflowID     string         `json:"workflow_id"`
	ProjectID      string         `json:"project_id"`
	Status         RunStatus      `json:"status"`
	Variables      map[string]any `json:"variables,omitempty"`
	TriggerPayload any            `json:"trigger_payload,omitempty"`
	Outputs        Outputs        `json:"outputs,omitempty"`
	PausedAtNodeID string         `json:"paused_at_node_id,omitempty"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Context returns the RunContext for executing this run.
func (r *Run) Context() RunContext {
	return RunContext{
		RunID:          r.ID,
		WorkflowID:     r.WorkflowID,
		ProjectID:      r.ProjectID,
		Variables:      r.Variables,
		TriggerPayload: r.TriggerPayload,
	}
}
