package nodes_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowagent/agent"
	"github.com/BaSui01/flowagent/llm"
	"github.com/BaSui01/flowagent/notify"
	"github.com/BaSui01/flowagent/testutil"
	"github.com/BaSui01/flowagent/testutil/mocks"
	"github.com/BaSui01/flowagent/tools"
	"github.com/BaSui01/flowagent/workflow"
	"github.com/BaSui01/flowagent/workflow/nodes"
)

type capturedNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (c *capturedNotifier) Notify(_ context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

type staticResolver map[string]*nodes.AgentProfile

func (r staticResolver) ResolveAgent(_ context.Context, _ string, id string) (*nodes.AgentProfile, error) {
	if p, ok := r[id]; ok {
		return p, nil
	}
	return nil, errors.New("agent not found")
}

type sessionLog struct {
	mu       sync.Mutex
	sessions []agent.Session
}

func (s *sessionLog) SaveSession(_ context.Context, session agent.Session, _ *agent.ExecutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, session)
	return nil
}

func completedUpstream(id string, data any) map[string]workflow.NodeOutput {
	return map[string]workflow.NodeOutput{id: {NodeID: id, Status: workflow.NodeCompleted, Data: data}}
}

func TestNewRegistry_HasAllTypes(t *testing.T) {
	t.Parallel()

	reg, err := nodes.NewRegistry(nodes.Deps{})
	require.NoError(t, err)
	for _, typ := range workflow.NodeTypes {
		h, ok := reg.Handler(typ)
		assert.True(t, ok, typ)
		assert.NotNil(t, h, typ)
	}
	assert.Error(t, reg.Register("webhook", nodes.TriggerHandler{}))
	assert.Error(t, reg.Register(workflow.NodeTypeTrigger, nodes.TriggerHandler{}))
}

func TestTriggerHandler(t *testing.T) {
	t.Parallel()

	rc := workflow.RunContext{TriggerPayload: "new ticket", Variables: map[string]any{"x": 1}}
	out := nodes.TriggerHandler{}.Execute(context.Background(), nil, workflow.NodeInput{NodeID: "t"}, rc)
	require.Equal(t, workflow.OutcomeCompleted, out.Kind)
	assert.Equal(t, map[string]any{"payload": "new ticket", "variables": map[string]any{"x": 1}}, out.Data)
}

func TestApprovalHandler(t *testing.T) {
	t.Parallel()

	in := workflow.NodeInput{NodeID: "gate"}
	out := nodes.ApprovalHandler{}.Execute(context.Background(), nil, in, workflow.RunContext{})
	assert.Equal(t, workflow.OutcomePaused, out.Kind)
	assert.Zero(t, out.ResumeAfter)

	out = nodes.ApprovalHandler{}.Execute(context.Background(), nil, in, workflow.RunContext{ResumedNodeID: "other"})
	assert.Equal(t, workflow.OutcomePaused, out.Kind)

	out = nodes.ApprovalHandler{}.Execute(context.Background(), nil, in, workflow.RunContext{ResumedNodeID: "gate"})
	assert.Equal(t, workflow.OutcomeCompleted, out.Kind)
	assert.Equal(t, map[string]any{"approved": true}, out.Data)
}

func TestDelayHandler(t *testing.T) {
	t.Parallel()

	in := workflow.NodeInput{NodeID: "wait"}
	tests := []struct {
		cfg  map[string]any
		want time.Duration
	}{
		{map[string]any{"duration": 5, "unit": "minutes"}, 300000 * time.Millisecond},
		{map[string]any{"duration": float64(2), "unit": "hours"}, 2 * time.Hour},
		{map[string]any{"duration": "1", "unit": "days"}, 24 * time.Hour},
		{map[string]any{"duration": 10, "unit": "weeks"}, 10 * time.Minute},
	}
	for _, tt := range tests {
		out := nodes.DelayHandler{}.Execute(context.Background(), tt.cfg, in, workflow.RunContext{})
		assert.Equal(t, workflow.OutcomePaused, out.Kind)
		assert.Equal(t, tt.want, out.ResumeAfter, "%v", tt.cfg)
	}

	out := nodes.DelayHandler{}.Execute(context.Background(), tests[0].cfg, in, workflow.RunContext{ResumedNodeID: "wait"})
	assert.Equal(t, workflow.OutcomeCompleted, out.Kind)
	assert.Equal(t, map[string]any{"waitedMs": int64(300000)}, out.Data)
}

func TestConditionHandler(t *testing.T) {
	t.Parallel()

	in := workflow.NodeInput{
		NodeID:    "c",
		Upstream:  completedUpstream("score", map[string]any{"score": float64(7), "label": "spam"}),
		Variables: map[string]any{"threshold": 5},
	}

	tests := []struct {
		expr string
		want bool
	}{
		{"input.score > vars.threshold", true},
		{"upstream.score.label == 'ham'", false},
		{"string.find(input.label, 'sp') ~= nil", true},
		{"input.missing == nil and true", true},
	}
	for _, tt := range tests {
		out := nodes.ConditionHandler{}.Execute(context.Background(), map[string]any{"expression": tt.expr}, in, workflow.RunContext{})
		require.Equal(t, workflow.OutcomeCompleted, out.Kind, "%s: %v", tt.expr, out.Err)
		assert.Equal(t, tt.want, out.Data.(map[string]any)["result"], tt.expr)
	}
}

func TestConditionHandler_Failures(t *testing.T) {
	t.Parallel()

	in := workflow.NodeInput{NodeID: "c", Upstream: completedUpstream("a", map[string]any{"n": 1})}
	for name, cfg := range map[string]map[string]any{
		"missing expression": {},
		"not boolean":        {"expression": "input.n + 1"},
		"syntax error":       {"expression": "input.n >"},
		"sandboxed io":       {"expression": "io.open('/etc/passwd') ~= nil"},
		"sandboxed dofile":   {"expression": "dofile('/etc/passwd')"},
		"runaway loop":       {"expression": "(function() while true do end end)()", "timeoutMs": 50},
	} {
		out := nodes.ConditionHandler{}.Execute(context.Background(), cfg, in, workflow.RunContext{})
		assert.Equal(t, workflow.OutcomeFailed, out.Kind, name)
		assert.Error(t, out.Err, name)
	}
}

func TestEvalCondition_MergesMultipleUpstreams(t *testing.T) {
	t.Parallel()

	in := workflow.NodeInput{
		NodeID: "c",
		Upstream: map[string]workflow.NodeOutput{
			"a": {Status: workflow.NodeCompleted, Data: map[string]any{"x": 1}},
			"b": {Status: workflow.NodeCompleted, Data: map[string]any{"y": 2}},
			"s": {Status: workflow.NodeSkipped},
		},
	}
	out := nodes.ConditionHandler{}.Execute(context.Background(), map[string]any{"expression": "input.x + input.y == 3 and upstream.s == nil"}, in, workflow.RunContext{})
	require.Equal(t, workflow.OutcomeCompleted, out.Kind, "%v", out.Err)
	assert.Equal(t, true, out.Data.(map[string]any)["result"])
}

func TestOutputHandler(t *testing.T) {
	t.Parallel()

	n := &capturedNotifier{}
	reg, err := nodes.NewRegistry(nodes.Deps{Notifier: n})
	require.NoError(t, err)
	h, _ := reg.Handler(workflow.NodeTypeOutput)

	rc := workflow.RunContext{RunID: "r1", WorkflowID: "wf", ProjectID: "p"}
	in := workflow.NodeInput{NodeID: "out", Upstream: completedUpstream("summarize", map[string]any{"text": "all good"})}

	out := h.Execute(context.Background(), map[string]any{"channel": "#ops"}, in, rc)
	require.Equal(t, workflow.OutcomeCompleted, out.Kind)
	data := out.Data.(map[string]any)
	assert.Equal(t, "#ops", data["channel"])
	assert.Equal(t, "all good", data["message"])

	require.Len(t, n.msgs, 1)
	assert.Equal(t, "r1", n.msgs[0].RunID)
	assert.Equal(t, "out", n.msgs[0].NodeID)
	assert.Equal(t, "all good", n.msgs[0].Text)

	n.err = errors.New("slack down")
	out = h.Execute(context.Background(), map[string]any{"channel": "#ops", "message": "x"}, in, rc)
	assert.Equal(t, workflow.OutcomeFailed, out.Kind)
	assert.Contains(t, out.Err.Error(), "slack down")
}

func newAgentRegistry(t *testing.T, caller llm.Caller, resolver nodes.AgentResolver, sessions nodes.SessionStore, extra ...tools.Definition) workflow.HandlerMap {
	t.Helper()
	toolReg := tools.NewDefaultRegistry(nil)
	require.NoError(t, tools.RegisterBuiltins(toolReg))
	for _, d := range extra {
		require.NoError(t, toolReg.Register(d))
	}
	deps := nodes.Deps{
		Agents:        agent.NewExecutor(caller, toolReg),
		Resolver:      resolver,
		Sessions:      sessions,
		DefaultLimits: agent.SafetyLimits{MaxActionsPerSession: 10},
		DefaultModel:  llm.ModelParams{Model: "default-model", MaxTokens: 256},
	}
	reg, err := nodes.NewRegistry(deps)
	require.NoError(t, err)
	return reg
}

func TestAgentHandler_UsesUpstreamTextAndProfile(t *testing.T) {
	t.Parallel()

	caller := mocks.NewScriptedCaller(mocks.TextStep("Summary: ok"))
	sessions := &sessionLog{}
	resolver := staticResolver{"summarizer": {
		ID:           "summarizer",
		SystemPrompt: "Summarize.",
		Model:        llm.ModelParams{Model: "profile-model", Temperature: 0.2},
		Memory:       map[string]string{"tone": "brief"},
	}}
	reg := newAgentRegistry(t, caller, resolver, sessions)
	h, _ := reg.Handler(workflow.NodeTypeAgent)

	in := workflow.NodeInput{NodeID: "sum", Upstream: completedUpstream("t", map[string]any{"payload": "ticket body"})}
	out := h.Execute(testutil.TestContext(t), map[string]any{"agentId": "summarizer", "maxTokens": 99}, in, workflow.RunContext{ProjectID: "p"})

	require.Equal(t, workflow.OutcomeCompleted, out.Kind, "%v", out.Err)
	data := out.Data.(map[string]any)
	assert.Equal(t, "Summary: ok", data["text"])
	assert.Equal(t, "completed", data["status"])
	assert.Equal(t, 1, data["actions"])

	req := caller.LastRequest()
	assert.Equal(t, "Summarize.", req.SystemPrompt)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "Relevant memory:\n- tone: brief\n\nticket body", req.Messages[0].Content)

	require.Len(t, sessions.sessions, 1)
	assert.Equal(t, "summarizer", sessions.sessions[0].AgentID)
	assert.Equal(t, "p", sessions.sessions[0].ProjectID)
}

func TestAgentHandler_ApprovalAbortFailsNode(t *testing.T) {
	t.Parallel()

	caller := mocks.NewScriptedCaller(mocks.ToolStep("c1", "send_email", nil))
	reg := newAgentRegistry(t, caller, nil, nil, mocks.ApprovalTool("send_email", nil))
	h, _ := reg.Handler(workflow.NodeTypeAgent)

	out := h.Execute(testutil.TestContext(t), map[string]any{"tools": []any{"send_email"}, "prompt": "email ops"},
		workflow.NodeInput{NodeID: "mailer"}, workflow.RunContext{})

	require.Equal(t, workflow.OutcomeFailed, out.Kind)
	assert.Contains(t, out.Err.Error(), "send_email")
	assert.Contains(t, out.Err.Error(), "approval")
	assert.Equal(t, "aborted", out.Data.(map[string]any)["status"])
}

func TestAgentHandler_Errors(t *testing.T) {
	t.Parallel()

	reg, err := nodes.NewRegistry(nodes.Deps{})
	require.NoError(t, err)
	h, _ := reg.Handler(workflow.NodeTypeAgent)
	out := h.Execute(context.Background(), nil, workflow.NodeInput{NodeID: "a"}, workflow.RunContext{})
	assert.Equal(t, workflow.OutcomeFailed, out.Kind)

	reg = newAgentRegistry(t, mocks.NewScriptedCaller(), staticResolver{}, nil)
	h, _ = reg.Handler(workflow.NodeTypeAgent)
	out = h.Execute(context.Background(), map[string]any{"agentId": "ghost"}, workflow.NodeInput{NodeID: "a"}, workflow.RunContext{})
	assert.Equal(t, workflow.OutcomeFailed, out.Kind)
	assert.Contains(t, out.Err.Error(), "ghost")
}

func TestWorkflowWithBuiltinNodes(t *testing.T) {
	t.Parallel()

	def, err := workflow.ParseDefinition([]byte(`
id: triage
nodes:
  - id: start
    type: trigger
  - id: classify
    type: agent
    config:
      systemPrompt: "Answer urgent or routine."
  - id: urgent
    type: condition
    config:
      expression: "input.text == 'urgent'"
  - id: page
    type: output
    config:
      channel: "{{pager}}"
      message: "Urgent: {{title}}"
  - id: log
    type: output
    config:
      channel: "#log"
edges:
  - {source: start, target: classify}
  - {source: classify, target: urgent}
  - {source: urgent, target: page, label: "yes"}
  - {source: urgent, target: log, label: "no"}
variables:
  - name: pager
    default: "#pager"
  - name: title
    required: true
`), workflow.FormatYAML)
	require.NoError(t, err)

	notifier := &capturedNotifier{}
	toolReg := tools.NewDefaultRegistry(nil)
	reg, err := nodes.NewRegistry(nodes.Deps{
		Agents:   agent.NewExecutor(mocks.NewScriptedCaller(mocks.TextStep("urgent")), toolReg),
		Notifier: notifier,
	})
	require.NoError(t, err)

	res, err := workflow.NewExecutor(reg).Execute(testutil.TestContext(t), def, workflow.RunContext{
		RunID:          "r1",
		TriggerPayload: "database is down",
		Variables:      map[string]any{"title": "db outage"},
	}, workflow.ExecuteOptions{})
	require.NoError(t, err)

	require.Equal(t, workflow.ResultCompleted, res.Status, res.Error)
	assert.Equal(t, workflow.NodeSkipped, res.Outputs["log"].Status)
	require.Len(t, notifier.msgs, 1)
	assert.Equal(t, "#pager", notifier.msgs[0].Channel)
	assert.Equal(t, "Urgent: db outage", notifier.msgs[0].Text)
}
