package nodes

import (
	"context"

	"github.com/BaSui01/flowagent/workflow"
)

// ApprovalHandler pauses the run the first time it is reached. When the run
// is resumed at this node the decision was an approval, since rejected runs
// are cancelled instead of resumed.
type ApprovalHandler struct{}

func (ApprovalHandler) Execute(_ context.Context, cfg map[string]any, in workflow.NodeInput, rc workflow.RunContext) workflow.Outcome {
	if rc.ResumedNodeID == in.NodeID {
		return workflow.Completed(map[string]any{"approved": true})
	}
	return workflow.Paused(0)
}

// DelayHandler pauses for config.duration × config.unit.
type DelayHandler struct{}

func (DelayHandler) Execute(_ context.Context, cfg map[string]any, in workflow.NodeInput, rc workflow.RunContext) workflow.Outcome {
	d, _ := configNumber(cfg, "duration")
	wait := workflow.DelayDuration(d, configString(cfg, "unit"))
	if rc.ResumedNodeID == in.NodeID {
		return workflow.Completed(map[string]any{"waitedMs": wait.Milliseconds()})
	}
	return workflow.Paused(wait)
}
