package store

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/flowagent/agent"
	"github.com/BaSui01/flowagent/workflow"
)

// SessionRow is a row of agent_sessions.
type SessionRow struct {
	ID           string `gorm:"primaryKey;size:64"`
	AgentID      string `gorm:"size:128;index"`
	ProjectID    string `gorm:"size:128;index"`
	Status       string `gorm:"size:32"`
	ActionCount  int
	TotalTokens  int
	TotalCostUSD float64
	AbortReason  string `gorm:"type:text"`
	AbortCode    string `gorm:"size:64"`
	FinalText    string `gorm:"type:text"`
	DurationMs   int64
	StartedAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (SessionRow) TableName() string { return "agent_sessions" }

// ActionRow is a row of agent_actions.
type ActionRow struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	SessionID    string `gorm:"size:64;index:idx_agent_actions_session_seq,priority:1"`
	Sequence     int    `gorm:"index:idx_agent_actions_session_seq,priority:2"`
	Type         string `gorm:"size:32"`
	ToolName     string `gorm:"size:128"`
	ToolInput    string `gorm:"type:text"`
	ToolOutput   string `gorm:"type:text"`
	Success      bool
	Error        string `gorm:"type:text"`
	DurationMs   int64
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Timestamp    time.Time
}

func (ActionRow) TableName() string { return "agent_actions" }

// RunRow is a row of workflow_runs.
type RunRow struct {
	ID             string           `gorm:"primaryKey;size:64"`
	WorkflowID     string           `gorm:"size:128;index"`
	ProjectID      string           `gorm:"size:128;index"`
	Status         string           `gorm:"size:32;index"`
	Variables      map[string]any   `gorm:"type:text;serializer:json"`
	TriggerPayload any              `gorm:"type:text;serializer:json"`
	Outputs        workflow.Outputs `gorm:"type:text;serializer:json"`
	PausedAtNodeID string           `gorm:"size:128"`
	Error          string           `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (RunRow) TableName() string { return "workflow_runs" }

// NodeRunRow is a row of workflow_node_runs.
type NodeRunRow struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	RunID       string `gorm:"size:64;index"`
	NodeID      string `gorm:"size:128"`
	NodeType    string `gorm:"size:32"`
	Status      string `gorm:"size:32"`
	Data        any    `gorm:"type:text;serializer:json"`
	Error       string `gorm:"type:text"`
	SkippedBy   string `gorm:"size:128"`
	DurationMs  int64
	CompletedAt time.Time
}

func (NodeRunRow) TableName() string { return "workflow_node_runs" }

// AllModels lists every table for AutoMigrate.
func AllModels() []any {
	return []any{&SessionRow{}, &ActionRow{}, &RunRow{}, &NodeRunRow{}}
}

func sessionRowFrom(s agent.Session, res *agent.ExecutionResult) SessionRow {
	row := SessionRow{
		ID:           s.ID,
		AgentID:      s.AgentID,
		ProjectID:    s.ProjectID,
		Status:       string(s.Status),
		ActionCount:  s.ActionCount,
		TotalTokens:  s.TotalTokens,
		TotalCostUSD: s.TotalCostUSD,
		AbortReason:  s.AbortReason,
		StartedAt:    s.StartedAt,
	}
	if res != nil {
		row.AbortCode = string(res.AbortCode)
		row.DurationMs = res.Duration.Milliseconds()
		if res.FinalResponse != nil {
			row.FinalText = *res.FinalResponse
		}
	}
	return row
}

func (r SessionRow) toSession() agent.Session {
	return agent.Session{
		ID:           r.ID,
		AgentID:      r.AgentID,
		ProjectID:    r.ProjectID,
		Status:       agent.Status(r.Status),
		ActionCount:  r.ActionCount,
		TotalTokens:  r.TotalTokens,
		TotalCostUSD: r.TotalCostUSD,
		AbortReason:  r.AbortReason,
		StartedAt:    r.StartedAt,
	}
}

func actionRowFrom(sessionID string, rec agent.ActionRecord) ActionRow {
	return ActionRow{
		SessionID:    sessionID,
		Sequence:     rec.Sequence,
		Type:         string(rec.Type),
		ToolName:     rec.ToolName,
		ToolInput:    string(rec.ToolInput),
		ToolOutput:   rec.ToolOutput,
		Success:      rec.Success,
		Error:        rec.Error,
		DurationMs:   rec.Duration.Milliseconds(),
		InputTokens:  rec.InputTokens,
		OutputTokens: rec.OutputTokens,
		CostUSD:      rec.CostUSD,
		Timestamp:    rec.Timestamp,
	}
}

func (r ActionRow) toRecord() agent.ActionRecord {
	rec := agent.ActionRecord{
		SessionID:    r.SessionID,
		Sequence:     r.Sequence,
		Type:         agent.ActionType(r.Type),
		ToolName:     r.ToolName,
		ToolOutput:   r.ToolOutput,
		Success:      r.Success,
		Error:        r.Error,
		Duration:     time.Duration(r.DurationMs) * time.Millisecond,
		InputTokens:  r.InputTokens,
		OutputTokens: r.OutputTokens,
		CostUSD:      r.CostUSD,
		Timestamp:    r.Timestamp,
	}
	if r.ToolInput != "" {
		rec.ToolInput = json.RawMessage(r.ToolInput)
	}
	return rec
}

func runRowFrom(run *workflow.Run) RunRow {
	return RunRow{
		ID:             run.ID,
		WorkflowID:     run.WorkflowID,
		ProjectID:      run.ProjectID,
		Status:         string(run.Status),
		Variables:      run.Variables,
		TriggerPayload: run.TriggerPayload,
		Outputs:        run.Outputs,
		PausedAtNodeID: run.PausedAtNodeID,
		Error:          run.Error,
		CreatedAt:      run.CreatedAt,
		UpdatedAt:      run.UpdatedAt,
	}
}

func (r RunRow) toRun() *workflow.Run {
	outputs := r.Outputs
	if outputs == nil {
		outputs = workflow.Outputs{}
	}
	return &workflow.Run{
		ID:             r.ID,
		WorkflowID:     r.WorkflowID,
		ProjectID:      r.ProjectID,
		Status:         workflow.RunStatus(r.Status),
		Variables:      r.Variables,
		TriggerPayload: r.TriggerPayload,
		Outputs:        outputs,
		PausedAtNodeID: r.PausedAtNodeID,
		Error:          r.Error,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func nodeRunRowFrom(runID string, out workflow.NodeOutput, d time.Duration) NodeRunRow {
	return NodeRunRow{
		RunID:       runID,
		NodeID:      out.NodeID,
		NodeType:    string(out.NodeType),
		Status:      string(out.Status),
		Data:        out.Data,
		Error:       out.Error,
		SkippedBy:   out.SkippedBy,
		DurationMs:  d.Milliseconds(),
		CompletedAt: out.CompletedAt,
	}
}

func (r NodeRunRow) toOutput() workflow.NodeOutput {
	return workflow.NodeOutput{
		NodeID:      r.NodeID,
		NodeType:    workflow.NodeType(r.NodeType),
		Status:      workflow.NodeStatus(r.Status),
		Data:        r.Data,
		Error:       r.Error,
		SkippedBy:   r.SkippedBy,
		CompletedAt: r.CompletedAt,
	}
}
