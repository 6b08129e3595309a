package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowagent/tools"
	"github.com/BaSui01/flowagent/types"
)

// ToolCallHandler processes one tool call and reports whether the remaining
// calls of the turn must be dropped.
type ToolCallHandler func(ctx context.Context, call types.ToolCall) (result types.ToolResultBlock, stop bool)

// ToolCallStrategy decides how the tool calls of one model turn are scheduled.
type ToolCallStrategy interface {
	Run(ctx context.Context, calls []types.ToolCall, handle ToolCallHandler) []types.ToolResultBlock
}

// SequentialToolCalls runs tool calls one at a time in request order, which
// the minimum-interval limiter relies on.
type SequentialToolCalls struct{}

func (SequentialToolCalls) Run(ctx context.Context, calls []types.ToolCall, handle ToolCallHandler) []types.ToolResultBlock {
	results := make([]types.ToolResultBlock, 0, len(calls))
	for _, call := range calls {
		res, stop := handle(ctx, call)
		results = append(results, res)
		if stop {
			break
		}
	}
	return results
}

// PausedForReviewMessage is the synthesized result for a tool that needs approval.
const PausedForReviewMessage = "Tool call paused for review: %s requires human approval before it can run."

func (r *sessionRun) handleToolCall(ctx context.Context, call types.ToolCall) (types.ToolResultBlock, bool) {
	errorResult := func(msg string) types.ToolResultBlock {
		return types.ToolResultBlock{ToolCallID: call.ID, Name: call.Name, Content: msg, IsError: true}
	}

	def, ok := r.lookup(call.Name)
	if !ok {
		r.e.metrics.RecordToolCall(call.Name, "not_found")
		r.logger.Warn("unknown tool requested", zap.String("tool", call.Name))
		return errorResult(fmt.Sprintf("Error: tool %q not found", call.Name)), false
	}

	if def.RequiresApproval {
		pending := call
		r.pendingApproval = &pending
		r.e.metrics.RecordToolCall(call.Name, "approval")
		r.abort(types.ErrApprovalRequired, fmt.Sprintf("tool %q requires approval: paused for review", call.Name))
		return types.ToolResultBlock{
			ToolCallID: call.ID,
			Name:       call.Name,
			Content:    fmt.Sprintf(PausedForReviewMessage, call.Name),
		}, true
	}

	if err := r.e.registry.Validate(call.Name, call.Arguments); err != nil {
		r.session.ConsecutiveErrors++
		r.e.metrics.RecordToolCall(call.Name, "invalid")
		return errorResult(fmt.Sprintf("Error: invalid input for tool %q: %v", call.Name, err)), false
	}

	// Keeps ActionCount within the limit when one turn requests several tools.
	if l := r.limits.MaxActionsPerSession; l > 0 && r.session.ActionCount >= l {
		r.abort(types.ErrActionLimit, fmt.Sprintf("action limit reached: %d/%d actions", r.session.ActionCount, l))
		return errorResult("Error: action limit reached"), true
	}

	if err := r.limiter.Wait(ctx); err != nil {
		r.abort(types.ErrCanceled, fmt.Sprintf("tool rate limiter: %v", err))
		return errorResult(err.Error()), true
	}

	start := r.e.now()
	out, err := r.runTool(ctx, def, call)
	elapsed := r.e.now().Sub(start)
	r.session.ActionCount++

	if err != nil {
		r.session.ConsecutiveErrors++
		outcome := "error"
		if types.IsErrorCode(err, types.ErrToolTimeout) {
			outcome = "timeout"
		}
		r.e.metrics.RecordToolCall(call.Name, outcome)
		r.record(ctx, ActionRecord{
			Type:      ActionToolCall,
			ToolName:  call.Name,
			ToolInput: call.Arguments,
			Success:   false,
			Error:     err.Error(),
			Duration:  elapsed,
		})
		return errorResult("Error: " + err.Error()), false
	}

	output := tools.Truncate(tools.Stringify(out), tools.MaxResultChars)
	r.session.ConsecutiveErrors = 0
	r.e.metrics.RecordToolCall(call.Name, "ok")
	r.record(ctx, ActionRecord{
		Type:       ActionToolCall,
		ToolName:   call.Name,
		ToolInput:  call.Arguments,
		ToolOutput: output,
		Success:    true,
		Duration:   elapsed,
	})
	return types.ToolResultBlock{ToolCallID: call.ID, Name: call.Name, Content: output}, false
}

// lookup only resolves tools this agent was given.
func (r *sessionRun) lookup(name string) (*tools.Definition, bool) {
	if r.e.registry == nil {
		return nil, false
	}
	allowed := false
	for _, n := range r.ec.Tools {
		if n == name {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, false
	}
	return r.e.registry.Get(name)
}

type toolOutcome struct {
	out any
	err error
}

// runTool executes the tool under the hard timeout. A tool that ignores
// cancellation is abandoned when the timeout fires.
func (r *sessionRun) runTool(ctx context.Context, def *tools.Definition, call types.ToolCall) (any, error) {
	toolCtx, cancel := context.WithTimeout(ctx, r.e.toolTimeout)
	defer cancel()

	tc := tools.ToolContext{
		SessionID: r.session.ID,
		AgentID:   r.session.AgentID,
		ProjectID: r.session.ProjectID,
	}

	done := make(chan toolOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- toolOutcome{err: fmt.Errorf("tool %s panicked: %v", def.Name, p)}
			}
		}()
		out, err := def.Execute(toolCtx, call.Arguments, tc)
		done <- toolOutcome{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && toolCtx.Err() != nil && ctx.Err() == nil {
			return nil, timeoutError(def.Name, r.e.toolTimeout)
		}
		return res.out, res.err
	case <-toolCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, timeoutError(def.Name, r.e.toolTimeout)
	}
}

func timeoutError(name string, d time.Duration) error {
	return types.Errorf(types.ErrToolTimeout, "tool %s timed out after %s", name, d)
}
