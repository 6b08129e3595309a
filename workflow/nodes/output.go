package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/flowagent/notify"
	"github.com/BaSui01/flowagent/workflow"
)

// OutputHandler emits {channel, message} through a Notifier. The message
// defaults to the upstream text.
type OutputHandler struct {
	notifier notify.Notifier
}

func (h *OutputHandler) Execute(ctx context.Context, cfg map[string]any, in workflow.NodeInput, rc workflow.RunContext) workflow.Outcome {
	channel := configString(cfg, "channel")
	if channel == "" {
		channel = "default"
	}
	message := configString(cfg, "message")
	if message == "" {
		message = in.UpstreamText()
	}
	upstream := in.UpstreamData()

	err := h.notifier.Notify(ctx, notify.Message{
		Channel:    channel,
		Text:       message,
		RunID:      rc.RunID,
		WorkflowID: rc.WorkflowID,
		ProjectID:  rc.ProjectID,
		NodeID:     in.NodeID,
		Data:       upstream,
		Timestamp:  time.Now(),
	})
	if err != nil {
		return workflow.Failed(fmt.Errorf("notify %s: %w", channel, err))
	}
	return workflow.Completed(map[string]any{
		"channel":  channel,
		"message":  message,
		"upstream": upstream,
	})
}
