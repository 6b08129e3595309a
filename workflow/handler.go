package workflow

import (
	"context"
	"fmt"
	"strings"
)

// RunContext identifies the run a node executes in.
type RunContext struct {
	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
	ProjectID  string `json:"project_id"`
	// Variables are the run variables with defaults applied.
	Variables      map[string]any `json:"variables,omitempty"`
	TriggerPayload any            `json:"trigger_payload,omitempty"`
	// ResumedNodeID is the node this invocation resumes at. Approval and delay
	// handlers complete instead of pausing when it names them.
	ResumedNodeID string `json:"resumed_node_id,omitempty"`
}

// NodeInput is everything a handler sees besides its config.
type NodeInput struct {
	NodeID   string
	NodeType NodeType
	// Upstream holds the outputs of direct predecessors that have one.
	Upstream  map[string]NodeOutput
	Variables map[string]any
}

// UpstreamData returns the data of completed predecessors keyed by node id.
func (in NodeInput) UpstreamData() map[string]any {
	out := make(map[string]any, len(in.Upstream))
	for id, o := range in.Upstream {
		if o.Status == NodeCompleted {
			out[id] = o.Data
		}
	}
	return out
}

// UpstreamText renders completed upstream data as text: a lone string or
// "text" field is used as is, several predecessors are joined by blank lines
// in node id order.
func (in NodeInput) UpstreamText() string {
	data := in.UpstreamData()
	ids := sortedKeys(data)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if s := textOf(data[id]); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any:
		if s, ok := t["text"].(string); ok {
			return s
		}
		if p, ok := t["payload"]; ok {
			return textOf(p)
		}
		return stringifyValue(t)
	default:
		return stringifyValue(t)
	}
}

// NodeHandler executes one node type. Handlers must not keep state between
// invocations.
type NodeHandler interface {
	Execute(ctx context.Context, config map[string]any, in NodeInput, rc RunContext) Outcome
}

// NodeHandlerFunc adapts a function to NodeHandler.
type NodeHandlerFunc func(ctx context.Context, config map[string]any, in NodeInput, rc RunContext) Outcome

func (f NodeHandlerFunc) Execute(ctx context.Context, config map[string]any, in NodeInput, rc RunContext) Outcome {
	return f(ctx, config, in, rc)
}

// HandlerRegistry resolves node types to handlers.
type HandlerRegistry interface {
	Handler(t NodeType) (NodeHandler, bool)
}

// HandlerMap is a HandlerRegistry backed by a map.
type HandlerMap map[NodeType]NodeHandler

func (m HandlerMap) Handler(t NodeType) (NodeHandler, bool) {
	h, ok := m[t]
	return h, ok
}

// Register adds a handler, rejecting unsupported or duplicate types.
func (m HandlerMap) Register(t NodeType, h NodeHandler) error {
	if !t.Known() {
		return fmt.Errorf("unsupported node type %q", t)
	}
	if h == nil {
		return fmt.Errorf("nil handler for node type %q", t)
	}
	if _, ok := m[t]; ok {
		return fmt.Errorf("handler for node type %q already registered", t)
	}
	m[t] = h
	return nil
}
