package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/flowagent/internal/metrics"
	"github.com/BaSui01/flowagent/llm"
	"github.com/BaSui01/flowagent/tools"
	"github.com/BaSui01/flowagent/types"
)

const instrumentationName = "github.com/BaSui01/flowagent/agent"

// DefaultToolTimeout is the hard ceiling on a single tool execution.
const DefaultToolTimeout = 60 * time.Second

// ExecutionResult is the terminal summary of one session.
type ExecutionResult struct {
	SessionID     string         `json:"session_id"`
	Status        Status         `json:"status"`
	Actions       []ActionRecord `json:"actions"`
	FinalResponse *string        `json:"final_response"`
	ActionCount   int            `json:"action_count"`
	TotalTokens   int            `json:"total_tokens"`
	TotalCostUSD  float64        `json:"total_cost_usd"`
	Duration      time.Duration  `json:"duration"`
	AbortReason   string         `json:"abort_reason,omitempty"`
	// AbortCode classifies AbortReason (budget gate, approval, truncation).
	AbortCode       types.ErrorCode `json:"abort_code,omitempty"`
	PendingApproval *types.ToolCall `json:"pending_approval,omitempty"`
	Messages        []types.Message `json:"messages,omitempty"`
}

// Executor runs agent sessions. It holds no per-session state and is safe
// for concurrent use.
type Executor struct {
	caller      llm.Caller
	registry    tools.Registry
	audit       AuditSink
	strategy    ToolCallStrategy
	metrics     *metrics.Collector
	tracer      trace.Tracer
	logger      *zap.Logger
	now         func() time.Time
	toolTimeout time.Duration
	llmTimeout  time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithAuditSink mirrors every action record to sink.
func WithAuditSink(sink AuditSink) Option {
	return func(e *Executor) {
		if sink != nil {
			e.audit = sink
		}
	}
}

// WithToolCallStrategy replaces the sequential tool-call strategy.
func WithToolCallStrategy(s ToolCallStrategy) Option {
	return func(e *Executor) {
		if s != nil {
			e.strategy = s
		}
	}
}

// WithMetrics records Prometheus metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Executor) { e.metrics = c }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock injects the wall clock used for gates and action durations.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithToolTimeout overrides DefaultToolTimeout.
func WithToolTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.toolTimeout = d
		}
	}
}

// WithLLMTimeout bounds each model call. Zero leaves it to the caller's context.
func WithLLMTimeout(d time.Duration) Option {
	return func(e *Executor) { e.llmTimeout = d }
}

// NewExecutor creates an executor over the given model wrapper and tool registry.
func NewExecutor(caller llm.Caller, registry tools.Registry, opts ...Option) *Executor {
	e := &Executor{
		caller:      caller,
		registry:    registry,
		audit:       nopAuditSink{},
		strategy:    SequentialToolCalls{},
		tracer:      otel.Tracer(instrumentationName),
		logger:      zap.NewNop(),
		now:         time.Now,
		toolTimeout: DefaultToolTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "agent_executor"))
	return e
}

// sessionRun is the mutable state of one Execute call.
type sessionRun struct {
	e        *Executor
	ec       ExecutionContext
	session  *Session
	limits   SafetyLimits
	logger   *zap.Logger
	limiter  *rate.Limiter
	messages []types.Message
	actions  []ActionRecord
	schemas  []llm.ToolSchema

	finalResponse   *string
	abortCode       types.ErrorCode
	pendingApproval *types.ToolCall
}

// Execute runs the session loop to a terminal state. It never returns an
// error: every failure is folded into the result.
func (e *Executor) Execute(ctx context.Context, ec ExecutionContext, session *Session, limits SafetyLimits) *ExecutionResult {
	if session.ID == "" {
		fresh := NewSession(session.AgentID, session.ProjectID)
		session.ID = fresh.ID
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = e.now()
	}
	session.Status = StatusRunning

	ctx = types.WithSessionID(ctx, session.ID)
	ctx, span := e.tracer.Start(ctx, "agent.session", trace.WithAttributes(
		attribute.String("session.id", session.ID),
		attribute.String("agent.id", session.AgentID),
		attribute.String("project.id", session.ProjectID),
	))
	defer span.End()

	run := &sessionRun{
		e:        e,
		ec:       ec,
		session:  session,
		limits:   limits,
		logger:   e.logger.With(zap.String("session_id", session.ID), zap.String("agent_id", session.AgentID)),
		limiter:  newToolLimiter(limits.ToolCallMinInterval),
		messages: ec.initialMessages(),
		schemas:  e.toolSchemas(ec.Tools),
	}

	run.logger.Info("session started",
		zap.String("model", ec.Model.Model),
		zap.Int("tools", len(run.schemas)),
	)

	run.safeLoop(ctx)

	if session.Status == StatusRunning {
		session.Status = StatusCompleted
	}

	duration := e.now().Sub(session.StartedAt)
	result := &ExecutionResult{
		SessionID:       session.ID,
		Status:          session.Status,
		Actions:         run.actions,
		FinalResponse:   run.finalResponse,
		ActionCount:     session.ActionCount,
		TotalTokens:     session.TotalTokens,
		TotalCostUSD:    session.TotalCostUSD,
		Duration:        duration,
		AbortReason:     session.AbortReason,
		AbortCode:       run.abortCode,
		PendingApproval: run.pendingApproval,
		Messages:        run.messages,
	}

	span.SetAttributes(
		attribute.String("session.status", string(session.Status)),
		attribute.Int("session.actions", session.ActionCount),
		attribute.Int("session.tokens", session.TotalTokens),
	)
	if session.Status == StatusError {
		span.SetStatus(codes.Error, session.AbortReason)
	}
	e.metrics.RecordSession(session.AgentID, string(session.Status), duration)

	run.logger.Info("session finished",
		zap.String("status", string(session.Status)),
		zap.Int("actions", session.ActionCount),
		zap.Int("tokens", session.TotalTokens),
		zap.Float64("cost_usd", session.TotalCostUSD),
		zap.Duration("duration", duration),
		zap.String("abort_reason", session.AbortReason),
	)
	return result
}

func (e *Executor) toolSchemas(names []string) []llm.ToolSchema {
	if len(names) == 0 || e.registry == nil {
		return nil
	}
	schemas := e.registry.Schemas(names)
	out := make([]llm.ToolSchema, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, llm.ToolSchema{Name: s.Name, Description: s.Description, Parameters: s.InputSchema})
	}
	return out
}

func newToolLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// safeLoop converts an unexpected panic into an error-status session.
func (r *sessionRun) safeLoop(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("session panicked",
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			r.session.Status = StatusError
			r.session.AbortReason = fmt.Sprintf("internal error: %v", rec)
			r.abortCode = types.ErrInternal
		}
	}()
	r.loop(ctx)
}

func (r *sessionRun) loop(ctx context.Context) {
	for r.session.Status == StatusRunning {
		if r.checkGates() {
			return
		}
		if err := ctx.Err(); err != nil {
			r.abort(types.ErrCanceled, err.Error())
			return
		}

		res, ok := r.callModel(ctx)
		if !ok {
			continue
		}

		text := res.Response.Text
		if text != "" || len(res.Response.ToolCalls) == 0 {
			r.finalResponse = &text
		}

		if res.Response.StopReason == llm.StopMaxTokens {
			r.abort(types.ErrResponseTruncated, "response truncated by provider token limit")
			return
		}

		if len(res.Response.ToolCalls) == 0 {
			r.session.Status = StatusCompleted
			r.messages = append(r.messages, types.NewAssistantMessage(text))
			return
		}

		r.messages = append(r.messages, types.NewAssistantMessage(text).WithToolCalls(res.Response.ToolCalls))

		results := r.e.strategy.Run(ctx, res.Response.ToolCalls, r.handleToolCall)
		if r.session.Status != StatusRunning {
			return
		}
		r.messages = append(r.messages, types.NewToolResultsMessage(results))
	}
}

// checkGates applies the four safety gates in order and reports whether the
// session was stopped.
func (r *sessionRun) checkGates() bool {
	s, l := r.session, r.limits

	if l.MaxActionsPerSession > 0 && s.ActionCount >= l.MaxActionsPerSession {
		r.abort(types.ErrActionLimit, fmt.Sprintf("action limit reached: %d/%d actions", s.ActionCount, l.MaxActionsPerSession))
		return true
	}
	if l.MaxTokensPerSession > 0 && s.TotalTokens >= l.MaxTokensPerSession {
		r.abort(types.ErrTokenLimit, fmt.Sprintf("token budget exhausted: %d/%d tokens", s.TotalTokens, l.MaxTokensPerSession))
		return true
	}
	if l.MaxDuration > 0 {
		if elapsed := r.e.now().Sub(s.StartedAt); elapsed >= l.MaxDuration {
			r.abort(types.ErrDurationLimit, fmt.Sprintf("duration limit reached: %s elapsed of %s", elapsed.Round(time.Millisecond), l.MaxDuration))
			return true
		}
	}
	if l.MaxConsecutiveErrors > 0 && s.ConsecutiveErrors >= l.MaxConsecutiveErrors {
		r.abort(types.ErrConsecutiveErrors, fmt.Sprintf("too many consecutive errors: %d", s.ConsecutiveErrors))
		return true
	}
	return false
}

func (r *sessionRun) abort(code types.ErrorCode, reason string) {
	r.session.abort(reason)
	r.abortCode = code
	r.logger.Warn("session aborted", zap.String("code", string(code)), zap.String("reason", reason))
}

// callModel performs one LLM call and charges it to the session.
func (r *sessionRun) callModel(ctx context.Context) (*llm.CallResult, bool) {
	callCtx := ctx
	if r.e.llmTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.e.llmTimeout)
		defer cancel()
	}

	req := llm.CallRequest{
		SystemPrompt: r.ec.SystemPrompt,
		Messages:     r.messages,
		Tools:        r.schemas,
	}

	start := r.e.now()
	res, err := r.invokeModel(callCtx, req)
	elapsed := r.e.now().Sub(start)

	r.session.ActionCount++
	if err != nil {
		r.session.ConsecutiveErrors++
		r.record(ctx, ActionRecord{
			Type:     ActionLLMCall,
			Success:  false,
			Error:    err.Error(),
			Duration: elapsed,
		})
		r.e.metrics.RecordLLMCall(providerOf(err), r.ec.Model.Model, "error", elapsed, 0, 0, 0)
		r.logger.Warn("llm call failed",
			zap.Int("consecutive_errors", r.session.ConsecutiveErrors),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			r.abort(types.ErrCanceled, ctx.Err().Error())
		}
		return nil, false
	}

	md := res.Metadata
	if md.Duration == 0 {
		md.Duration = elapsed
	}
	r.session.ConsecutiveErrors = 0
	r.session.TotalTokens += md.TotalTokens()
	r.session.TotalCostUSD += md.CostUSD
	r.record(ctx, ActionRecord{
		Type:         ActionLLMCall,
		Success:      true,
		Duration:     md.Duration,
		InputTokens:  md.InputTokens,
		OutputTokens: md.OutputTokens,
		CostUSD:      md.CostUSD,
	})
	r.e.metrics.RecordLLMCall(md.Provider, r.ec.Model.Model, "ok", md.Duration, md.InputTokens, md.OutputTokens, md.CostUSD)
	return res, true
}

// invokeModel shields the loop from a panicking caller and a nil result.
func (r *sessionRun) invokeModel(ctx context.Context, req llm.CallRequest) (res *llm.CallResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res, err = nil, fmt.Errorf("llm caller panicked: %v", rec)
		}
	}()
	res, err = r.e.caller.Call(ctx, r.ec.Model, req)
	if err == nil && res == nil {
		err = errors.New("llm caller returned no result")
	}
	return res, err
}

func (r *sessionRun) record(ctx context.Context, rec ActionRecord) {
	rec.SessionID = r.session.ID
	rec.Sequence = len(r.actions) + 1
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.e.now()
	}
	r.actions = append(r.actions, rec)

	if err := r.mirror(ctx, rec); err != nil {
		r.logger.Warn("audit write failed",
			zap.Int("sequence", rec.Sequence),
			zap.String("type", string(rec.Type)),
			zap.Error(err),
		)
	}
}

func (r *sessionRun) mirror(ctx context.Context, rec ActionRecord) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("audit sink panicked: %v", p)
		}
	}()
	return r.e.audit.RecordAction(ctx, *r.session, rec)
}

func providerOf(err error) string {
	var le *llm.Error
	if errors.As(err, &le) && le.Provider != "" {
		return le.Provider
	}
	return "unknown"
}
