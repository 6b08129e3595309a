package workflow

import (
	"fmt"
	"strings"

	"github.com/BaSui01/flowagent/types"
)

// NodeType is the declared type of a workflow node.
type NodeType string

const (
	// NodeTypeTrigger marks the start of a workflow and passes the trigger payload through
	NodeTypeTrigger NodeType = "trigger"
	// NodeTypeAgent runs an agent session
	NodeTypeAgent NodeType = "agent"
	// NodeTypeCondition evaluates a boolean expression and selects a branch
	NodeTypeCondition NodeType = "condition"
	// NodeTypeApproval suspends the run until a human decision arrives
	NodeTypeApproval NodeType = "approval"
	// NodeTypeDelay suspends the run for a configured duration
	NodeTypeDelay NodeType = "delay"
	// NodeTypeOutput emits a terminal notification
	NodeTypeOutput NodeType = "output"
)

// NodeTypes lists every supported node type.
var NodeTypes = []NodeType{
	NodeTypeTrigger,
	NodeTypeAgent,
	NodeTypeCondition,
	NodeTypeApproval,
	NodeTypeDelay,
	NodeTypeOutput,
}

// Known reports whether t is one of the supported node types.
func (t NodeType) Known() bool {
	for _, k := range NodeTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Branch labels on edges leaving a condition node.
const (
	LabelYes = "yes"
	LabelNo  = "no"
)

// Node is one vertex of a workflow.
type Node struct {
	// ID is unique within the definition
	ID string `json:"id" yaml:"id"`
	// Type selects the handler
	Type NodeType `json:"type" yaml:"type"`
	// Name is a human readable label
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Config is handler specific; string values may contain {{variable}} placeholders
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Edge connects two nodes. Label is only meaningful on edges leaving a condition node.
type Edge struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Label  string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Variable declares a run variable.
type Variable struct {
	Name     string `json:"name" yaml:"name"`
	Default  any    `json:"default,omitempty" yaml:"default,omitempty"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// Definition is a workflow graph.
type Definition struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	ProjectID   string     `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	Nodes       []Node     `json:"nodes" yaml:"nodes"`
	Edges       []Edge     `json:"edges" yaml:"edges"`
	Variables   []Variable `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// Node returns the node with the given id.
func (d *Definition) Node(id string) (Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// NodeIDs returns node ids in declaration order.
func (d *Definition) NodeIDs() []string {
	ids := make([]string, len(d.Nodes))
	for i, n := range d.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// Validate checks structural integrity: ids, edge endpoints, node types,
// variable names and acyclicity.
func (d *Definition) Validate() error {
	var problems []string

	if strings.TrimSpace(d.ID) == "" {
		problems = append(problems, "workflow id is required")
	}
	if len(d.Nodes) == 0 {
		problems = append(problems, "workflow must have at least one node")
	}

	ids := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if strings.TrimSpace(n.ID) == "" {
			problems = append(problems, "node id is required")
			continue
		}
		if ids[n.ID] {
			problems = append(problems, fmt.Sprintf("duplicate node id: %s", n.ID))
		}
		ids[n.ID] = true
		if !n.Type.Known() {
			problems = append(problems, fmt.Sprintf("node %s: unknown type %q", n.ID, n.Type))
		}
	}

	for i, e := range d.Edges {
		if !ids[e.Source] {
			problems = append(problems, fmt.Sprintf("edge %d: source %q does not exist", i, e.Source))
		}
		if !ids[e.Target] {
			problems = append(problems, fmt.Sprintf("edge %d: target %q does not exist", i, e.Target))
		}
		if e.Source == e.Target && e.Source != "" {
			problems = append(problems, fmt.Sprintf("edge %d: self loop on %q", i, e.Source))
		}
	}

	vars := make(map[string]bool, len(d.Variables))
	for _, v := range d.Variables {
		if strings.TrimSpace(v.Name) == "" {
			problems = append(problems, "variable name is required")
			continue
		}
		if vars[v.Name] {
			problems = append(problems, fmt.Sprintf("duplicate variable: %s", v.Name))
		}
		vars[v.Name] = true
	}

	if len(problems) > 0 {
		return types.Errorf(types.ErrInvalidDefinition, "invalid workflow %q: %s", d.ID, strings.Join(problems, "; "))
	}

	if _, err := TopologicalSort(d.NodeIDs(), d.Edges); err != nil {
		return err
	}
	return nil
}
