// Package types provides core types used across the flowagent engines.
// This package has ZERO dependencies on other flowagent packages to avoid circular imports.
package types

import (
	"encoding/json"
	"strings"
	"time"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolCall represents a tool invocation request from the LLM.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResultBlock is one tool result fed back to the model inside a user turn.
type ToolResultBlock struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Message represents a conversation message.
// User turns may carry tool results; assistant turns may carry tool calls.
type Message struct {
	Role        Role              `json:"role"`
	Content     string            `json:"content,omitempty"`
	ToolCalls   []ToolCall        `json:"tool_calls,omitempty"`
	ToolResults []ToolResultBlock `json:"tool_results,omitempty"`
	Timestamp   time.Time         `json:"timestamp,omitempty"`
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// NewToolResultsMessage wraps tool results into a single user turn.
func NewToolResultsMessage(results []ToolResultBlock) Message {
	return Message{
		Role:        RoleUser,
		ToolResults: results,
		Timestamp:   time.Now(),
	}
}

// WithToolCalls adds tool calls to the message.
func (m Message) WithToolCalls(calls []ToolCall) Message {
	m.ToolCalls = calls
	return m
}

// AppendUserTurn appends content as a user turn. Providers reject two
// consecutive user turns, so any trailing user turn is extended instead,
// including one that carries tool results: its ToolResults are kept and
// content becomes its text. history is not modified.
func AppendUserTurn(history []Message, content string) []Message {
	out := make([]Message, len(history), len(history)+1)
	copy(out, history)

	if n := len(out); n > 0 && out[n-1].Role == RoleUser {
		last := out[n-1]
		if strings.TrimSpace(last.Content) == "" {
			last.Content = content
		} else {
			last.Content = last.Content + "\n\n" + content
		}
		out[n-1] = last
		return out
	}
	return append(out, NewUserMessage(content))
}
