package service_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowagent/agent"
	"github.com/BaSui01/flowagent/llm"
	"github.com/BaSui01/flowagent/service"
	"github.com/BaSui01/flowagent/testutil/fixtures"
	"github.com/BaSui01/flowagent/testutil/mocks"
	"github.com/BaSui01/flowagent/tools"
	"github.com/BaSui01/flowagent/types"
	"github.com/BaSui01/flowagent/workflow/nodes"
)

type savedSessions struct {
	mu       sync.Mutex
	sessions []agent.Session
}

func (s *savedSessions) SaveSession(_ context.Context, session agent.Session, _ *agent.ExecutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, session)
	return nil
}

func TestParseProfiles(t *testing.T) {
	t.Parallel()

	set, err := service.ParseProfiles([]byte(fixtures.AgentProfilesYAML))
	require.NoError(t, err)
	require.Contains(t, set, "classifier")
	p := set["classifier"]
	assert.Equal(t, "Answer urgent or routine.", p.SystemPrompt)
	assert.Equal(t, "test-model", p.Model.Model)
	require.NotNil(t, p.Limits)
	assert.Equal(t, 5, p.Limits.MaxActionsPerSession)
	assert.Equal(t, map[string]string{"team": "ops"}, p.Memory)

	tests := []struct {
		name string
		src  string
	}{
		{"missing id", "agents:\n  - name: nameless\n"},
		{"duplicate id", "agents:\n  - id: a\n  - id: a\n"},
		{"not yaml", "agents: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ParseProfiles([]byte(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestLoadProfiles(t *testing.T) {
	t.Parallel()

	empty, err := service.LoadProfiles("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = service.LoadProfiles(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtures.AgentProfilesYAML), 0o600))
	set, err := service.LoadProfiles(path)
	require.NoError(t, err)
	assert.Len(t, set, 1)
}

func TestProfileSet_ResolveAgent(t *testing.T) {
	t.Parallel()
	set, err := service.ParseProfiles([]byte("agents:\n  - id: scoped\n    project_id: p1\n  - id: shared\n"))
	require.NoError(t, err)
	ctx := context.Background()

	p, err := set.ResolveAgent(ctx, "p1", "scoped")
	require.NoError(t, err)
	p.SystemPrompt = "mutated"
	assert.Empty(t, set["scoped"].SystemPrompt, "resolved profiles are copies")

	_, err = set.ResolveAgent(ctx, "p2", "scoped")
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))

	_, err = set.ResolveAgent(ctx, "p2", "shared")
	assert.NoError(t, err)

	_, err = set.ResolveAgent(ctx, "p1", "ghost")
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
}

func TestSessionService_Run(t *testing.T) {
	t.Parallel()

	set, err := service.ParseProfiles([]byte(fixtures.AgentProfilesYAML))
	require.NoError(t, err)
	caller := mocks.NewScriptedCaller(mocks.TextStep("routine"))
	saved := &savedSessions{}
	svc := service.NewSessionService(nodes.Deps{
		Agents:       agent.NewExecutor(caller, tools.NewDefaultRegistry(nil)),
		Resolver:     set,
		Sessions:     saved,
		DefaultModel: llm.ModelParams{Model: "fallback", MaxTokens: 256},
	})

	res, err := svc.Run(context.Background(), service.SessionRequest{AgentID: "classifier", Payload: "printer jam"})
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, res.Status)
	require.NotNil(t, res.FinalResponse)
	assert.Equal(t, "routine", *res.FinalResponse)

	req := caller.LastRequest()
	assert.Equal(t, "Answer urgent or routine.", req.SystemPrompt)
	require.NotEmpty(t, req.Messages)
	assert.Equal(t, types.RoleUser, req.Messages[0].Role)
	assert.Equal(t, "Relevant memory:\n- team: ops\n\nprinter jam", req.Messages[0].Content)

	params := caller.LastParams()
	assert.Equal(t, "test-model", params.Model)
	assert.Equal(t, 256, params.MaxTokens)

	require.Len(t, saved.sessions, 1)
	assert.Equal(t, "classifier", saved.sessions[0].AgentID)
	assert.Equal(t, res.SessionID, saved.sessions[0].ID)
}

func TestSessionService_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, err := service.NewSessionService(nodes.Deps{}).Run(ctx, service.SessionRequest{AgentID: "a"})
	assert.Error(t, err)

	svc := service.NewSessionService(nodes.Deps{
		Agents:   agent.NewExecutor(mocks.NewScriptedCaller(), tools.NewDefaultRegistry(nil)),
		Resolver: service.ProfileSet{},
	})
	_, err = svc.Run(ctx, service.SessionRequest{AgentID: "ghost"})
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
}
