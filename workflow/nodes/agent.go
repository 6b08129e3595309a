package nodes

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowagent/agent"
	"github.com/BaSui01/flowagent/llm"
	"github.com/BaSui01/flowagent/tools"
	"github.com/BaSui01/flowagent/types"
	"github.com/BaSui01/flowagent/workflow"
)

// AgentProfile is the stored configuration of an agent.
type AgentProfile struct {
	ID           string              `json:"id" yaml:"id"`
	ProjectID    string              `json:"project_id" yaml:"project_id"`
	Name         string              `json:"name" yaml:"name"`
	SystemPrompt string              `json:"system_prompt" yaml:"system_prompt"`
	Model        llm.ModelParams     `json:"model" yaml:"model"`
	Tools        []string            `json:"tools,omitempty" yaml:"tools"`
	Limits       *agent.SafetyLimits `json:"limits,omitempty" yaml:"limits"`
	Memory       map[string]string   `json:"memory,omitempty" yaml:"memory"`
}

// AgentResolver looks up agent profiles.
type AgentResolver interface {
	ResolveAgent(ctx context.Context, projectID, agentID string) (*AgentProfile, error)
}

// AgentRunner runs one agent session; *agent.Executor implements it.
type AgentRunner interface {
	Execute(ctx context.Context, ec agent.ExecutionContext, session *agent.Session, limits agent.SafetyLimits) *agent.ExecutionResult
}

// SessionStore persists a finished session.
type SessionStore interface {
	SaveSession(ctx context.Context, session agent.Session, result *agent.ExecutionResult) error
}

// AgentHandler runs an agent session with the upstream text as trigger
// payload. Config keys: agentId, systemPrompt, prompt, model, temperature,
// maxTokens, tools, memory and limits (maxActions, maxTokens,
// maxDurationSeconds, maxConsecutiveErrors, toolCallMinIntervalMs).
type AgentHandler struct {
	runner   AgentRunner
	resolver AgentResolver
	sessions SessionStore
	limits   agent.SafetyLimits
	model    llm.ModelParams
	logger   *zap.Logger
}

func newAgentHandler(deps Deps, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{
		runner:   deps.Agents,
		resolver: deps.Resolver,
		sessions: deps.Sessions,
		limits:   deps.DefaultLimits,
		model:    deps.DefaultModel,
		logger:   logger.With(zap.String("component", "agent_node")),
	}
}

func (h *AgentHandler) Execute(ctx context.Context, cfg map[string]any, in workflow.NodeInput, rc workflow.RunContext) workflow.Outcome {
	if h.runner == nil {
		return workflow.Failed(types.NewError(types.ErrNodeFailed, "no agent executor configured"))
	}

	agentID := configString(cfg, "agentId")
	profile := &AgentProfile{ID: agentID}
	if h.resolver != nil && agentID != "" {
		p, err := h.resolver.ResolveAgent(ctx, rc.ProjectID, agentID)
		if err != nil {
			return workflow.Failed(fmt.Errorf("resolve agent %s: %w", agentID, err))
		}
		profile = p
	}

	ec := agent.ExecutionContext{
		TriggerPayload: triggerText(cfg, in, rc),
		SystemPrompt:   profile.SystemPrompt,
		Tools:          profile.Tools,
		Model:          h.modelParams(profile, cfg),
		Memory:         mergeMemory(profile.Memory, configMap(cfg, "memory")),
	}
	if s := configString(cfg, "systemPrompt"); s != "" {
		ec.SystemPrompt = s
	}
	if names, ok := configStrings(cfg, "tools"); ok {
		ec.Tools = names
	}

	limits := h.limits
	if profile.Limits != nil {
		limits = *profile.Limits
	}
	limits = applyLimitOverrides(limits, configMap(cfg, "limits"))

	sessionAgent := agentID
	if sessionAgent == "" {
		sessionAgent = in.NodeID
	}
	session := agent.NewSession(sessionAgent, rc.ProjectID)
	res := h.runner.Execute(ctx, ec, session, limits)

	if h.sessions != nil {
		if err := h.sessions.SaveSession(ctx, *session, res); err != nil {
			h.logger.Warn("save session failed", zap.String("session_id", session.ID), zap.Error(err))
		}
	}

	text := ""
	if res.FinalResponse != nil {
		text = *res.FinalResponse
	}
	data := map[string]any{
		"text":        text,
		"sessionId":   res.SessionID,
		"status":      string(res.Status),
		"actions":     res.ActionCount,
		"tokens":      res.TotalTokens,
		"costUsd":     res.TotalCostUSD,
		"abortReason": res.AbortReason,
	}

	if res.Status != agent.StatusCompleted {
		h.logger.Info("agent session did not complete",
			zap.String("run_id", rc.RunID),
			zap.String("node_id", in.NodeID),
			zap.String("session_id", res.SessionID),
			zap.String("status", string(res.Status)),
			zap.String("reason", res.AbortReason),
		)
		return workflow.Outcome{
			Kind: workflow.OutcomeFailed,
			Data: data,
			Err:  types.Errorf(types.ErrNodeFailed, "agent session %s %s: %s", res.SessionID, res.Status, res.AbortReason),
		}
	}
	return workflow.Completed(data)
}

func (h *AgentHandler) modelParams(profile *AgentProfile, cfg map[string]any) llm.ModelParams {
	m := h.model
	if profile.Model.Model != "" {
		m.Model = profile.Model.Model
	}
	if profile.Model.Temperature != 0 {
		m.Temperature = profile.Model.Temperature
	}
	if profile.Model.MaxTokens != 0 {
		m.MaxTokens = profile.Model.MaxTokens
	}
	if s := configString(cfg, "model"); s != "" {
		m.Model = s
	}
	if f, ok := configNumber(cfg, "temperature"); ok {
		m.Temperature = float32(f)
	}
	if f, ok := configNumber(cfg, "maxTokens"); ok {
		m.MaxTokens = int(f)
	}
	return m
}

// triggerText is the upstream text, else config.prompt, else the run's
// trigger payload.
func triggerText(cfg map[string]any, in workflow.NodeInput, rc workflow.RunContext) string {
	if s := in.UpstreamText(); s != "" {
		return s
	}
	if s := configString(cfg, "prompt"); s != "" {
		return s
	}
	if rc.TriggerPayload == nil {
		return ""
	}
	return tools.Stringify(rc.TriggerPayload)
}

func mergeMemory(base map[string]string, extra map[string]any) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = tools.Stringify(v)
	}
	return out
}

func applyLimitOverrides(l agent.SafetyLimits, cfg map[string]any) agent.SafetyLimits {
	if cfg == nil {
		return l
	}
	if f, ok := configNumber(cfg, "maxActions"); ok {
		l.MaxActionsPerSession = int(f)
	}
	if f, ok := configNumber(cfg, "maxTokens"); ok {
		l.MaxTokensPerSession = int(f)
	}
	if f, ok := configNumber(cfg, "maxDurationSeconds"); ok {
		l.MaxDuration = time.Duration(f * float64(time.Second))
	}
	if f, ok := configNumber(cfg, "maxConsecutiveErrors"); ok {
		l.MaxConsecutiveErrors = int(f)
	}
	if f, ok := configNumber(cfg, "toolCallMinIntervalMs"); ok {
		l.ToolCallMinInterval = time.Duration(f * float64(time.Millisecond))
	}
	return l
}
