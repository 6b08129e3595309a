package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/flowagent/types"
)

// 统一的 LLM 错误码，用于区分"Provider 不可用"与"请求无效"。
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "LLM_INVALID_REQUEST"      // 参数/格式错误
	ErrUnauthorized        ErrorCode = "LLM_UNAUTHORIZED"         // 未授权或密钥失效
	ErrRateLimited         ErrorCode = "LLM_RATE_LIMITED"         // 上游或本地限流
	ErrQuotaExceeded       ErrorCode = "LLM_QUOTA_EXCEEDED"       // 额度/配额用尽
	ErrModelOverloaded     ErrorCode = "LLM_MODEL_OVERLOADED"     // 模型过载
	ErrUpstreamTimeout     ErrorCode = "LLM_UPSTREAM_TIMEOUT"     // 上游超时
	ErrUpstreamError       ErrorCode = "LLM_UPSTREAM_ERROR"       // 上游 5xx/网络错误
	ErrProviderUnavailable ErrorCode = "LLM_PROVIDER_UNAVAILABLE" // Provider 不可用
)

type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unavailable reports whether err means the provider could not serve the
// request at all, as opposed to rejecting the request itself.
func Unavailable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case ErrProviderUnavailable, ErrUpstreamError, ErrUpstreamTimeout, ErrModelOverloaded, ErrRateLimited:
		return true
	}
	return e.Retryable
}

// ModelParams selects the model and its sampling parameters.
type ModelParams struct {
	Model       string  `json:"model" yaml:"model"`
	Temperature float32 `json:"temperature,omitempty" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens"`
}

// ToolSchema is a tool as advertised to the model.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// CallRequest is the per-call context handed to a Caller.
type CallRequest struct {
	SystemPrompt string          `json:"system_prompt,omitempty"`
	Messages     []types.Message `json:"messages"`
	Tools        []ToolSchema    `json:"tools,omitempty"`
}

// StopReason explains why the model stopped producing output.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// Response is the model's answer for one call.
type Response struct {
	Text       string           `json:"text"`
	ToolCalls  []types.ToolCall `json:"tool_calls,omitempty"`
	StopReason StopReason       `json:"stop_reason,omitempty"`
}

// Metadata is the accounting for one call.
type Metadata struct {
	Provider     string        `json:"provider,omitempty"`
	Model        string        `json:"model,omitempty"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	CostUSD      float64       `json:"cost_usd"`
	Duration     time.Duration `json:"duration"`
}

// TotalTokens returns input plus output tokens.
func (m Metadata) TotalTokens() int { return m.InputTokens + m.OutputTokens }

// CallResult pairs a response with its metadata.
type CallResult struct {
	Response Response `json:"response"`
	Metadata Metadata `json:"metadata"`
}

// Caller is the LLM call wrapper consumed by the agent executor.
type Caller interface {
	Call(ctx context.Context, params ModelParams, req CallRequest) (*CallResult, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, params ModelParams, req CallRequest) (*CallResult, error)

func (f CallerFunc) Call(ctx context.Context, params ModelParams, req CallRequest) (*CallResult, error) {
	return f(ctx, params, req)
}
