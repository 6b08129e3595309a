package workflow

import (
	"time"
)

// NodeStatus is the terminal state of one node within a run.
type NodeStatus string

const (
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
	NodeSkipped   NodeStatus = "skipped"
)

// NodeOutput is the recorded result of one node.
type NodeOutput struct {
	NodeID   string     `json:"node_id"`
	NodeType NodeType   `json:"node_type"`
	Status   NodeStatus `json:"status"`
	Data     any        `json:"data,omitempty"`
	Error    string     `json:"error,omitempty"`
	// SkippedBy names the condition node whose decision skipped this node.
	SkippedBy   string    `json:"skipped_by,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Outputs maps node id to its recorded output.
type Outputs map[string]NodeOutput

// Clone returns a shallow copy.
func (o Outputs) Clone() Outputs {
	out := make(Outputs, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// OutcomeKind discriminates Outcome.
type OutcomeKind int

const (
	OutcomeCompleted OutcomeKind = iota
	OutcomeFailed
	OutcomePaused
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Outcome is what a node handler returns: completed with data, failed with an
// error, or paused. A paused delay node carries how long to wait.
type Outcome struct {
	Kind        OutcomeKind
	Data        any
	Err         error
	ResumeAfter time.Duration
}

// Completed returns a successful outcome.
func Completed(data any) Outcome {
	return Outcome{Kind: OutcomeCompleted, Data: data}
}

// Failed returns a failed outcome.
func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err}
}

// Paused suspends the run; resumeAfter is zero for approval pauses.
func Paused(resumeAfter time.Duration) Outcome {
	return Outcome{Kind: OutcomePaused, ResumeAfter: resumeAfter}
}
