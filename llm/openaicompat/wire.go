package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/flowagent/llm"
	"github.com/BaSui01/flowagent/types"
)

type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type toolCall struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Function function `json:"function"`
}

type function struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type toolDef struct {
	Type     string  `json:"type"`
	Function toolFun `json:"function"`
}

type toolFun struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []toolDef     `json:"tools,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		FinishReason string      `json:"finish_reason"`
		Message      chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

// toWireMessages flattens the conversation into the OpenAI message list.
// A user turn carrying tool results becomes one "tool" message per result.
func toWireMessages(systemPrompt string, msgs []types.Message) []chatMessage {
	out := make([]chatMessage, 0, len(msgs)+1)
	if systemPrompt != "" {
		out = append(out, chatMessage{Role: "system", Content: systemPrompt})
	}
	for _, m := range msgs {
		for _, tr := range m.ToolResults {
			content := tr.Content
			if tr.IsError {
				content = "Error: " + content
			}
			out = append(out, chatMessage{Role: "tool", ToolCallID: tr.ToolCallID, Content: content})
		}
		if len(m.ToolResults) > 0 && m.Content == "" {
			continue
		}
		cm := chatMessage{Role: string(m.Role), Content: m.Content}
		for _, tc := range m.ToolCalls {
			args := string(tc.Arguments)
			if args == "" {
				args = "{}"
			}
			cm.ToolCalls = append(cm.ToolCalls, toolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: function{Name: tc.Name, Arguments: args},
			})
		}
		out = append(out, cm)
	}
	return out
}

func toWireTools(schemas []llm.ToolSchema) []toolDef {
	if len(schemas) == 0 {
		return nil
	}
	out := make([]toolDef, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, toolDef{
			Type:     "function",
			Function: toolFun{Name: s.Name, Description: s.Description, Parameters: s.Parameters},
		})
	}
	return out
}

func stopReason(finish string) llm.StopReason {
	switch finish {
	case "length":
		return llm.StopMaxTokens
	case "tool_calls", "function_call":
		return llm.StopToolUse
	default:
		return llm.StopEndTurn
	}
}

func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return strings.TrimSpace(string(data))
}

// mapHTTPError 将 HTTP 状态码映射为 llm.Error
func mapHTTPError(status int, msg, provider string) *llm.Error {
	e := &llm.Error{Message: msg, HTTPStatus: status, Provider: provider}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Code = llm.ErrUnauthorized
	case status == http.StatusTooManyRequests:
		e.Code, e.Retryable = llm.ErrRateLimited, true
	case status == http.StatusBadRequest:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "credit") {
			e.Code = llm.ErrQuotaExceeded
		} else {
			e.Code = llm.ErrInvalidRequest
		}
	case status == http.StatusGatewayTimeout:
		e.Code, e.Retryable = llm.ErrUpstreamTimeout, true
	case status == 529:
		e.Code, e.Retryable = llm.ErrModelOverloaded, true
	case status >= 500:
		e.Code, e.Retryable = llm.ErrProviderUnavailable, true
	default:
		e.Code = llm.ErrInvalidRequest
	}
	return e
}
