package agent_test

import (
	"context"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/BaSui01/flowagent/agent"
	"github.com/BaSui01/flowagent/llm"
	"github.com/BaSui01/flowagent/testutil/mocks"
	"github.com/BaSui01/flowagent/tools"
	"github.com/BaSui01/flowagent/types"
)

// A model that never stops asking for tools is always cut off by the action
// gate, and never exceeds it, however many calls each turn requests.
func TestProperty_ActionBudgetIsNeverExceeded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("action count stays within the limit", prop.ForAll(
		func(limit int, callsPerTurn int) bool {
			calls := make([]types.ToolCall, callsPerTurn)
			for i := range calls {
				calls[i] = mocks.ToolCall("c", "ping", nil)
			}
			caller := mocks.NewScriptedCaller(mocks.Step{ToolCalls: calls, StopReason: llm.StopToolUse, Tokens: 2}).Repeat()

			reg := tools.NewDefaultRegistry(nil)
			if err := reg.Register(mocks.StaticTool("ping", "pong", nil)); err != nil {
				t.Logf("register: %v", err)
				return false
			}
			exec := agent.NewExecutor(caller, reg)

			res := exec.Execute(context.Background(), agent.ExecutionContext{
				TriggerPayload: "loop forever",
				Tools:          []string{"ping"},
			}, agent.NewSession("looper", "p"), agent.SafetyLimits{MaxActionsPerSession: limit})

			if res.ActionCount > limit || len(res.Actions) > limit {
				t.Logf("limit %d exceeded: %d actions", limit, res.ActionCount)
				return false
			}
			if res.Status != agent.StatusAborted || !strings.Contains(res.AbortReason, "action limit") {
				t.Logf("unexpected end: %s %q", res.Status, res.AbortReason)
				return false
			}
			return res.ActionCount == limit
		},
		gen.IntRange(1, 12),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}
