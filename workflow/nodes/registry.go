package nodes

import (
	"go.uber.org/zap"

	"github.com/BaSui01/flowagent/agent"
	"github.com/BaSui01/flowagent/llm"
	"github.com/BaSui01/flowagent/notify"
	"github.com/BaSui01/flowagent/workflow"
)

// Deps are the collaborators node handlers need.
type Deps struct {
	// Agents runs agent sessions; required for agent nodes.
	Agents AgentRunner
	// Resolver looks up agent profiles by id; optional.
	Resolver AgentResolver
	// Sessions persists finished sessions; optional.
	Sessions SessionStore
	// Notifier delivers output node messages; defaults to a LogNotifier.
	Notifier notify.Notifier
	// DefaultLimits apply when neither profile nor node config sets limits.
	DefaultLimits agent.SafetyLimits
	// DefaultModel fills model parameters the profile and config leave empty.
	DefaultModel llm.ModelParams
	Logger       *zap.Logger
}

// NewRegistry returns a handler registry with the six built-in node types.
func NewRegistry(deps Deps) (workflow.HandlerMap, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLogNotifier(logger)
	}

	m := workflow.HandlerMap{}
	for t, h := range map[workflow.NodeType]workflow.NodeHandler{
		workflow.NodeTypeTrigger:   TriggerHandler{},
		workflow.NodeTypeAgent:     newAgentHandler(deps, logger),
		workflow.NodeTypeCondition: ConditionHandler{},
		workflow.NodeTypeApproval:  ApprovalHandler{},
		workflow.NodeTypeDelay:     DelayHandler{},
		workflow.NodeTypeOutput:    &OutputHandler{notifier: deps.Notifier},
	} {
		if err := m.Register(t, h); err != nil {
			return nil, err
		}
	}
	return m, nil
}
