package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/flowagent/agent"
	"github.com/BaSui01/flowagent/llm"
	"github.com/BaSui01/flowagent/types"
	"github.com/BaSui01/flowagent/workflow/nodes"
)

// SessionRequest runs one agent outside a workflow.
type SessionRequest struct {
	AgentID   string          `json:"agent_id"`
	ProjectID string          `json:"project_id,omitempty"`
	Payload   string          `json:"payload"`
	History   []types.Message `json:"history,omitempty"`
}

// SessionService runs standalone agent sessions.
type SessionService struct {
	resolver nodes.AgentResolver
	runner   nodes.AgentRunner
	sessions nodes.SessionStore
	limits   agent.SafetyLimits
	model    llm.ModelParams
	logger   *zap.Logger
}

// NewSessionService uses the same collaborators as agent workflow nodes.
func NewSessionService(deps nodes.Deps) *SessionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		resolver: deps.Resolver,
		runner:   deps.Agents,
		sessions: deps.Sessions,
		limits:   deps.DefaultLimits,
		model:    deps.DefaultModel,
		logger:   logger.With(zap.String("component", "session_service")),
	}
}

// Run resolves the agent, executes a session and stores its summary. The
// returned error covers resolution only; aborted sessions are reported in
// the result.
func (s *SessionService) Run(ctx context.Context, req SessionRequest) (*agent.ExecutionResult, error) {
	if s.runner == nil {
		return nil, fmt.Errorf("no agent executor configured")
	}
	if s.resolver == nil {
		return nil, types.Errorf(types.ErrNotFound, "agent %s not found", req.AgentID)
	}
	profile, err := s.resolver.ResolveAgent(ctx, req.ProjectID, req.AgentID)
	if err != nil {
		return nil, err
	}

	model := s.model
	if profile.Model.Model != "" {
		model.Model = profile.Model.Model
	}
	if profile.Model.Temperature != 0 {
		model.Temperature = profile.Model.Temperature
	}
	if profile.Model.MaxTokens != 0 {
		model.MaxTokens = profile.Model.MaxTokens
	}
	limits := s.limits
	if profile.Limits != nil {
		limits = *profile.Limits
	}

	projectID := req.ProjectID
	if projectID == "" {
		projectID = profile.ProjectID
	}
	session := agent.NewSession(profile.ID, projectID)
	res := s.runner.Execute(ctx, agent.ExecutionContext{
		History:        req.History,
		Memory:         profile.Memory,
		TriggerPayload: req.Payload,
		SystemPrompt:   profile.SystemPrompt,
		Tools:          profile.Tools,
		Model:          model,
	}, session, limits)

	if s.sessions != nil {
		if err := s.sessions.SaveSession(ctx, *session, res); err != nil {
			s.logger.Warn("save session failed", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	s.logger.Info("session finished",
		zap.String("session_id", res.SessionID),
		zap.String("agent_id", profile.ID),
		zap.String("status", string(res.Status)),
		zap.Int("actions", res.ActionCount),
	)
	return res, nil
}
