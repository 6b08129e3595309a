// ScriptedCaller 是按脚本回放响应的 llm.Caller 模拟实现。
//
// 支持固定响应、工具调用、错误注入与请求记录。
package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/BaSui01/flowagent/llm"
	"github.com/BaSui01/flowagent/types"
)

// Step 是脚本中的一次调用结果
type Step struct {
	Text       string
	ToolCalls  []types.ToolCall
	StopReason llm.StopReason
	Err        error
	// Tokens 拆成输入/输出各一半记入 Metadata
	Tokens  int
	CostUSD float64
}

// TextStep 返回纯文本响应
func TextStep(text string) Step {
	return Step{Text: text, StopReason: llm.StopEndTurn, Tokens: 10}
}

// ToolStep 返回请求调用 name 的响应
func ToolStep(id, name string, args any) Step {
	return Step{
		ToolCalls:  []types.ToolCall{ToolCall(id, name, args)},
		StopReason: llm.StopToolUse,
		Tokens:     10,
	}
}

// ErrorStep 返回错误
func ErrorStep(err error) Step {
	return Step{Err: err}
}

// ToolCall 构造工具调用
func ToolCall(id, name string, args any) types.ToolCall {
	raw := json.RawMessage(`{}`)
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			panic(err)
		}
		raw = b
	}
	return types.ToolCall{ID: id, Name: name, Arguments: raw}
}

// ScriptedCaller 按顺序回放 Step；脚本耗尽后重复最后一步（Repeat）或返回错误
type ScriptedCaller struct {
	mu       sync.Mutex
	steps    []Step
	repeat   bool
	requests []llm.CallRequest
	params   []llm.ModelParams
}

// NewScriptedCaller 创建脚本化调用器
func NewScriptedCaller(steps ...Step) *ScriptedCaller {
	return &ScriptedCaller{steps: steps}
}

// Repeat 在脚本耗尽后一直重复最后一步
func (c *ScriptedCaller) Repeat() *ScriptedCaller {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repeat = true
	return c
}

// Call 实现 llm.Caller
func (c *ScriptedCaller) Call(ctx context.Context, params llm.ModelParams, req llm.CallRequest) (*llm.CallResult, error) {
	c.mu.Lock()
	i := len(c.requests)
	msgs := make([]types.Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	c.requests = append(c.requests, req)
	c.params = append(c.params, params)

	var step Step
	switch {
	case i < len(c.steps):
		step = c.steps[i]
	case c.repeat && len(c.steps) > 0:
		step = c.steps[len(c.steps)-1]
	default:
		c.mu.Unlock()
		return nil, errors.New("scripted caller: script exhausted")
	}
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if step.Err != nil {
		return nil, step.Err
	}

	calls := step.ToolCalls
	if len(calls) > 0 && c.repeat && i >= len(c.steps)-1 {
		// 重复回放时生成唯一的调用 ID
		calls = make([]types.ToolCall, len(step.ToolCalls))
		for j, tc := range step.ToolCalls {
			tc.ID = fmt.Sprintf("%s-%d", tc.ID, i)
			calls[j] = tc
		}
	}

	return &llm.CallResult{
		Response: llm.Response{Text: step.Text, ToolCalls: calls, StopReason: step.StopReason},
		Metadata: llm.Metadata{
			Provider:     "mock",
			Model:        params.Model,
			InputTokens:  step.Tokens / 2,
			OutputTokens: step.Tokens - step.Tokens/2,
			CostUSD:      step.CostUSD,
		},
	}, nil
}

// Calls 返回调用次数
func (c *ScriptedCaller) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Requests 返回记录的请求
func (c *ScriptedCaller) Requests() []llm.CallRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.CallRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// LastRequest 返回最后一次请求
func (c *ScriptedCaller) LastRequest() llm.CallRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return llm.CallRequest{}
	}
	return c.requests[len(c.requests)-1]
}

// LastParams 返回最后一次调用的模型参数
func (c *ScriptedCaller) LastParams() llm.ModelParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.params) == 0 {
		return llm.ModelParams{}
	}
	return c.params[len(c.params)-1]
}

// GatedCaller 在每次调用前阻塞直到 Open，用于在 LLM 调用进行中插入操作
type GatedCaller struct {
	next     llm.Caller
	entered  chan struct{}
	gate     chan struct{}
	once     sync.Once
	honorCtx bool
}

// NewGatedCaller 包装 next；默认忽略调用方 context 的取消
func NewGatedCaller(next llm.Caller) *GatedCaller {
	return &GatedCaller{
		next:    next,
		entered: make(chan struct{}, 16),
		gate:    make(chan struct{}),
	}
}

// HonorContext 让阻塞中的调用在 context 取消时返回其错误
func (c *GatedCaller) HonorContext() *GatedCaller {
	c.honorCtx = true
	return c
}

// Entered 每次调用开始阻塞时收到一个信号
func (c *GatedCaller) Entered() <-chan struct{} { return c.entered }

// Open 放行所有当前和之后的调用
func (c *GatedCaller) Open() {
	c.once.Do(func() { close(c.gate) })
}

// Call 实现 llm.Caller
func (c *GatedCaller) Call(ctx context.Context, params llm.ModelParams, req llm.CallRequest) (*llm.CallResult, error) {
	select {
	case c.entered <- struct{}{}:
	default:
	}
	if c.honorCtx {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return c.next.Call(ctx, params, req)
	}
	<-c.gate
	return c.next.Call(context.WithoutCancel(ctx), params, req)
}
