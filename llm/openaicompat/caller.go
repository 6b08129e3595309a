package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowagent/internal/tlsutil"
	"github.com/BaSui01/flowagent/llm"
	"github.com/BaSui01/flowagent/types"
)

// Config holds the configuration for an OpenAI-compatible endpoint.
type Config struct {
	// ProviderName identifies the provider in errors and metadata (e.g. "deepseek").
	ProviderName string `yaml:"name" json:"name"`
	APIKey       string `yaml:"api_key" json:"api_key"`
	BaseURL      string `yaml:"base_url" json:"base_url"`
	// DefaultModel is used when ModelParams.Model is empty.
	DefaultModel string `yaml:"default_model" json:"default_model"`
	// EndpointPath defaults to "/v1/chat/completions".
	EndpointPath string        `yaml:"endpoint_path" json:"endpoint_path"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
}

// Caller calls one OpenAI-compatible endpoint.
type Caller struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates a Caller. Timeout defaults to 120s.
func New(cfg Config, logger *zap.Logger) *Caller {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openai"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caller{
		cfg:    cfg,
		client: tlsutil.HTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "llm_openaicompat"), zap.String("provider", cfg.ProviderName)),
	}
}

// Name returns the provider name.
func (c *Caller) Name() string { return c.cfg.ProviderName }

// Call implements llm.Caller.
func (c *Caller) Call(ctx context.Context, params llm.ModelParams, req llm.CallRequest) (*llm.CallResult, error) {
	model := params.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}
	if model == "" {
		return nil, &llm.Error{Code: llm.ErrInvalidRequest, Message: "model is required", Provider: c.Name()}
	}

	body := chatRequest{
		Model:       model,
		Messages:    toWireMessages(req.SystemPrompt, req.Messages),
		Tools:       toWireTools(req.Tools),
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &llm.Error{Code: llm.ErrInvalidRequest, Message: fmt.Sprintf("marshal request: %v", err), Provider: c.Name()}
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + c.cfg.EndpointPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &llm.Error{Code: llm.ErrInvalidRequest, Message: err.Error(), Provider: c.Name()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		code := llm.ErrProviderUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			code = llm.ErrUpstreamTimeout
		}
		return nil, &llm.Error{Code: code, Message: err.Error(), Retryable: true, Provider: c.Name()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		e := mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body), c.Name())
		c.logger.Debug("completion failed", zap.Int("status", resp.StatusCode), zap.String("code", string(e.Code)))
		return nil, e
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: fmt.Sprintf("decode response: %v", err), Retryable: true, Provider: c.Name()}
	}
	if len(out.Choices) == 0 {
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: "response has no choices", Retryable: true, Provider: c.Name()}
	}

	choice := out.Choices[0]
	result := &llm.CallResult{
		Response: llm.Response{
			Text:       choice.Message.Content,
			StopReason: stopReason(choice.FinishReason),
		},
		Metadata: llm.Metadata{
			Provider: c.Name(),
			Model:    out.Model,
			Duration: time.Since(start),
		},
	}
	if result.Metadata.Model == "" {
		result.Metadata.Model = model
	}
	for _, tc := range choice.Message.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		result.Response.ToolCalls = append(result.Response.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	if out.Usage != nil {
		result.Metadata.InputTokens = out.Usage.PromptTokens
		result.Metadata.OutputTokens = out.Usage.CompletionTokens
	}
	return result, nil
}
