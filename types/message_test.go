package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendUserTurn_NewTurn(t *testing.T) {
	t.Parallel()

	history := []Message{NewAssistantMessage("hi")}
	out := AppendUserTurn(history, "payload")

	assert.Len(t, out, 2)
	assert.Equal(t, RoleUser, out[1].Role)
	assert.Equal(t, "payload", out[1].Content)
	assert.Len(t, history, 1, "input slice must not be mutated")
}

func TestAppendUserTurn_CoalescesTrailingUser(t *testing.T) {
	t.Parallel()

	history := []Message{NewUserMessage("earlier question")}
	out := AppendUserTurn(history, "payload")

	assert.Len(t, out, 1)
	assert.Equal(t, "earlier question\n\npayload", out[0].Content)
	assert.Equal(t, "earlier question", history[0].Content)
}

func TestAppendUserTurn_ToolResultTurnKeepsResults(t *testing.T) {
	t.Parallel()

	history := []Message{NewToolResultsMessage([]ToolResultBlock{{ToolCallID: "1", Name: "x", Content: "ok"}})}
	out := AppendUserTurn(history, "payload")

	assert.Len(t, out, 1)
	assert.Equal(t, "payload", out[0].Content)
	assert.Len(t, out[0].ToolResults, 1)
}

func TestAppendUserTurn_ToolResultTurnWithTextIsJoined(t *testing.T) {
	t.Parallel()

	turn := NewToolResultsMessage([]ToolResultBlock{{ToolCallID: "1", Name: "x", Content: "ok"}})
	turn.Content = "note"
	history := []Message{NewAssistantMessage("calling"), turn}
	out := AppendUserTurn(history, "payload")

	assert.Len(t, out, 2)
	assert.Equal(t, "note\n\npayload", out[1].Content)
	assert.Len(t, out[1].ToolResults, 1)
	assert.Equal(t, "note", history[1].Content)
}
