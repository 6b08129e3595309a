// Package fixtures 提供测试用的工作流定义与 Agent 配置。
package fixtures

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowagent/workflow"
)

// ApprovalWorkflowYAML 触发 → 审批 → 输出
const ApprovalWorkflowYAML = `
id: review
name: Ticket review
nodes:
  - id: start
    type: trigger
  - id: gate
    type: approval
  - id: notify
    type: output
    config:
      channel: "#ops"
      message: "approved: {{ticket}}"
edges:
  - {source: start, target: gate}
  - {source: gate, target: notify}
variables:
  - name: ticket
    default: T-1
`

// DelayWorkflowYAML 触发 → 延迟 5 分钟 → 输出
const DelayWorkflowYAML = `
id: reminder
name: Reminder
nodes:
  - id: start
    type: trigger
  - id: wait
    type: delay
    config:
      duration: 5
      unit: minutes
  - id: remind
    type: output
    config:
      channel: "#reminders"
edges:
  - {source: start, target: wait}
  - {source: wait, target: remind}
`

// AgentWorkflowYAML 触发 → Agent → 条件分支 → 两个输出
const AgentWorkflowYAML = `
id: triage
name: Ticket triage
nodes:
  - id: start
    type: trigger
  - id: classify
    type: agent
    config:
      agentId: classifier
  - id: urgent
    type: condition
    config:
      expression: "input.text == 'urgent'"
  - id: page
    type: output
    config:
      channel: "#pager"
  - id: log
    type: output
    config:
      channel: "#log"
edges:
  - {source: start, target: classify}
  - {source: classify, target: urgent}
  - {source: urgent, target: page, label: "yes"}
  - {source: urgent, target: log, label: "no"}
`

// AgentProfilesYAML 定义 AgentWorkflowYAML 使用的 classifier
const AgentProfilesYAML = `
agents:
  - id: classifier
    name: Classifier
    system_prompt: "Answer urgent or routine."
    model:
      model: test-model
      temperature: 0.1
    limits:
      max_actions_per_session: 5
      max_consecutive_errors: 2
    memory:
      team: ops
`

// Definition 解析 YAML 定义，失败时终止测试
func Definition(t testing.TB, src string) *workflow.Definition {
	t.Helper()
	def, err := workflow.ParseDefinition([]byte(src), workflow.FormatYAML)
	require.NoError(t, err)
	return def
}

// Catalog 返回包含给定定义的目录
func Catalog(t testing.TB, srcs ...string) *workflow.Catalog {
	t.Helper()
	c := workflow.NewCatalog(nil)
	for _, src := range srcs {
		require.NoError(t, c.Put(Definition(t, src)))
	}
	return c
}
