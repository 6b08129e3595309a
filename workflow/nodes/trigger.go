package nodes

import (
	"context"

	"github.com/BaSui01/flowagent/workflow"
)

// TriggerHandler passes the trigger payload and run variables through.
type TriggerHandler struct{}

func (TriggerHandler) Execute(_ context.Context, _ map[string]any, _ workflow.NodeInput, rc workflow.RunContext) workflow.Outcome {
	return workflow.Completed(map[string]any{
		"payload":   rc.TriggerPayload,
		"variables": rc.Variables,
	})
}
