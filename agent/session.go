package agent

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusError     Status = "error"
)

// Session is one execution attempt of one agent against one trigger.
// It is owned by a single Execute call and mutated in place.
type Session struct {
	ID                string    `json:"id"`
	AgentID           string    `json:"agent_id"`
	ProjectID         string    `json:"project_id"`
	Status            Status    `json:"status"`
	ActionCount       int       `json:"action_count"`
	TotalTokens       int       `json:"total_tokens"`
	TotalCostUSD      float64   `json:"total_cost_usd"`
	AbortReason       string    `json:"abort_reason,omitempty"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	StartedAt         time.Time `json:"started_at"`
}

// NewSession creates a running session with a fresh id.
func NewSession(agentID, projectID string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		ProjectID: projectID,
		Status:    StatusRunning,
	}
}

func (s *Session) abort(reason string) {
	s.Status = StatusAborted
	s.AbortReason = reason
}

// ActionType distinguishes model calls from tool calls.
type ActionType string

const (
	ActionLLMCall  ActionType = "llm_call"
	ActionToolCall ActionType = "tool_call"
)

// ActionRecord is one immutable loop step.
type ActionRecord struct {
	SessionID    string          `json:"session_id"`
	Sequence     int             `json:"sequence"`
	Type         ActionType      `json:"type"`
	ToolName     string          `json:"tool_name,omitempty"`
	ToolInput    json.RawMessage `json:"tool_input,omitempty"`
	ToolOutput   string          `json:"tool_output,omitempty"`
	Success      bool            `json:"success"`
	Error        string          `json:"error,omitempty"`
	Duration     time.Duration   `json:"duration"`
	InputTokens  int             `json:"input_tokens,omitempty"`
	OutputTokens int             `json:"output_tokens,omitempty"`
	CostUSD      float64         `json:"cost_usd,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// SafetyLimits are the only conditions under which a session stops itself.
// A zero value disables the corresponding gate.
type SafetyLimits struct {
	MaxActionsPerSession int           `json:"max_actions_per_session" yaml:"max_actions_per_session"`
	MaxTokensPerSession  int           `json:"max_tokens_per_session" yaml:"max_tokens_per_session"`
	MaxDuration          time.Duration `json:"max_duration" yaml:"max_duration"`
	MaxConsecutiveErrors int           `json:"max_consecutive_errors" yaml:"max_consecutive_errors"`
	ToolCallMinInterval  time.Duration `json:"tool_call_min_interval" yaml:"tool_call_min_interval"`
}

// DefaultSafetyLimits returns conservative limits.
func DefaultSafetyLimits() SafetyLimits {
	return SafetyLimits{
		MaxActionsPerSession: 50,
		MaxTokensPerSession:  100000,
		MaxDuration:          5 * time.Minute,
		MaxConsecutiveErrors: 3,
		ToolCallMinInterval:  time.Second,
	}
}
