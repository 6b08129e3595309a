package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/flowagent/internal/metrics"
	"github.com/BaSui01/flowagent/types"
)

const instrumentationName = "github.com/BaSui01/flowagent/workflow"

// ResultStatus is the outcome of one Execute call.
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultFailed    ResultStatus = "failed"
	ResultPaused    ResultStatus = "paused"
)

// PauseKind tells the caller how to continue a paused run.
type PauseKind string

const (
	// PauseApproval waits for an external approve/reject decision
	PauseApproval PauseKind = "approval"
	// PauseDelay is resumed automatically after ResumeAfter
	PauseDelay PauseKind = "delay"
)

// Result is what Execute returns for a valid definition.
type Result struct {
	Status         ResultStatus  `json:"status"`
	Outputs        Outputs       `json:"outputs"`
	PausedAtNodeID string        `json:"paused_at_node_id,omitempty"`
	PauseKind      PauseKind     `json:"pause_kind,omitempty"`
	ResumeAfter    time.Duration `json:"resume_after,omitempty"`
	FailedNodeID   string        `json:"failed_node_id,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// ExecuteOptions resumes a previously paused run.
type ExecuteOptions struct {
	// ResumeFromNodeID is the node the run paused at; nodes before it in
	// topological order are never executed.
	ResumeFromNodeID string
	// ExistingOutputs are outputs recorded by earlier invocations; their
	// nodes are never executed again.
	ExistingOutputs Outputs
}

// RunRecorder persists node runs and accumulated outputs. Errors are logged
// and never change the run result.
type RunRecorder interface {
	RecordNodeRun(ctx context.Context, rc RunContext, out NodeOutput, duration time.Duration) error
	SaveOutputs(ctx context.Context, rc RunContext, outputs Outputs) error
}

type nopRecorder struct{}

func (nopRecorder) RecordNodeRun(context.Context, RunContext, NodeOutput, time.Duration) error {
	return nil
}
func (nopRecorder) SaveOutputs(context.Context, RunContext, Outputs) error { return nil }

// Strategy drives the walk over the topological order. visit returns false
// to stop the walk.
type Strategy interface {
	Walk(ctx context.Context, order []string, visit func(ctx context.Context, nodeID string) bool)
}

// SequentialStrategy visits nodes one at a time in order.
type SequentialStrategy struct{}

func (SequentialStrategy) Walk(ctx context.Context, order []string, visit func(ctx context.Context, nodeID string) bool) {
	for _, id := range order {
		if !visit(ctx, id) {
			return
		}
	}
}

// Executor walks workflow definitions. It keeps no per-run state and is safe
// for concurrent use.
type Executor struct {
	handlers HandlerRegistry
	recorder RunRecorder
	strategy Strategy
	metrics  *metrics.Collector
	tracer   trace.Tracer
	logger   *zap.Logger
	now      func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRecorder persists node runs and outputs through r.
func WithRecorder(r RunRecorder) ExecutorOption {
	return func(e *Executor) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithStrategy replaces the sequential walk.
func WithStrategy(s Strategy) ExecutorOption {
	return func(e *Executor) {
		if s != nil {
			e.strategy = s
		}
	}
}

// WithExecutorMetrics records Prometheus metrics.
func WithExecutorMetrics(c *metrics.Collector) ExecutorOption {
	return func(e *Executor) { e.metrics = c }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(logger *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithExecutorClock injects the clock used for CompletedAt stamps.
func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExecutor creates an executor dispatching to handlers.
func NewExecutor(handlers HandlerRegistry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		handlers: handlers,
		recorder: nopRecorder{},
		strategy: SequentialStrategy{},
		tracer:   otel.Tracer(instrumentationName),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "workflow_executor"))
	return e
}

// runWalk is the mutable state of one Execute call.
type runWalk struct {
	e       *Executor
	def     *Definition
	rc      RunContext
	nodes   map[string]Node
	order   []string
	outputs Outputs
	result  *Result
	logger  *zap.Logger
}

// Execute walks def in topological order. It returns an error only when the
// definition itself is unusable; node failures and pauses are reported in
// the Result.
func (e *Executor) Execute(ctx context.Context, def *Definition, rc RunContext, opts ExecuteOptions) (*Result, error) {
	if def == nil {
		return nil, types.NewError(types.ErrInvalidDefinition, "workflow definition is nil")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	order, err := TopologicalSort(def.NodeIDs(), def.Edges)
	if err != nil {
		return nil, err
	}
	if opts.ResumeFromNodeID != "" {
		if _, ok := def.Node(opts.ResumeFromNodeID); !ok {
			return nil, types.Errorf(types.ErrInvalidRunState, "resume node %q not found in workflow %s", opts.ResumeFromNodeID, def.ID)
		}
	}

	if rc.WorkflowID == "" {
		rc.WorkflowID = def.ID
	}
	rc.ResumedNodeID = opts.ResumeFromNodeID

	ctx = types.WithRunID(ctx, rc.RunID)
	ctx, span := e.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("run.id", rc.RunID),
		attribute.String("workflow.id", rc.WorkflowID),
		attribute.String("resume.node_id", opts.ResumeFromNodeID),
	))
	defer span.End()

	w := &runWalk{
		e:       e,
		def:     def,
		rc:      rc,
		nodes:   make(map[string]Node, len(def.Nodes)),
		order:   order,
		outputs: opts.ExistingOutputs.Clone(),
		logger: e.logger.With(
			zap.String("run_id", rc.RunID),
			zap.String("workflow_id", rc.WorkflowID),
		),
	}
	for _, n := range def.Nodes {
		w.nodes[n.ID] = n
	}

	vars, err := ResolveVariables(def.Variables, rc.Variables)
	if err != nil {
		w.result = &Result{Status: ResultFailed, Error: err.Error()}
	} else {
		w.rc.Variables = vars
		w.logger.Info("workflow run started",
			zap.Int("nodes", len(order)),
			zap.String("resume_from", opts.ResumeFromNodeID),
			zap.Int("existing_outputs", len(w.outputs)),
		)
		w.walk(ctx, opts.ResumeFromNodeID)
	}

	res := w.result
	if res == nil {
		res = &Result{Status: ResultCompleted}
	}
	res.Outputs = w.outputs

	span.SetAttributes(attribute.String("run.status", string(res.Status)))
	if res.Status == ResultFailed {
		span.SetStatus(codes.Error, res.Error)
	}
	e.metrics.RecordRun(rc.WorkflowID, string(res.Status))
	w.logger.Info("workflow run finished",
		zap.String("status", string(res.Status)),
		zap.String("paused_at", res.PausedAtNodeID),
		zap.String("failed_node", res.FailedNodeID),
		zap.String("error", res.Error),
	)
	return res, nil
}

func (w *runWalk) walk(ctx context.Context, resumeFrom string) {
	started := resumeFrom == ""
	w.e.strategy.Walk(ctx, w.order, func(ctx context.Context, id string) bool {
		if !started {
			if id != resumeFrom {
				return true
			}
			started = true
		}
		if _, done := w.outputs[id]; done {
			return true
		}
		if err := ctx.Err(); err != nil {
			w.result = &Result{Status: ResultFailed, Error: err.Error()}
			return false
		}
		return w.step(ctx, w.nodes[id])
	})
}

// step runs one node and reports whether the walk continues.
func (w *runWalk) step(ctx context.Context, node Node) bool {
	if decider, skip := w.skipCause(node.ID); skip {
		w.skip(ctx, node, decider)
		return true
	}

	ctx, span := w.e.tracer.Start(ctx, "workflow.node", trace.WithAttributes(
		attribute.String("node.id", node.ID),
		attribute.String("node.type", string(node.Type)),
	))
	defer span.End()

	start := w.e.now()
	outcome := w.invoke(ctx, node)
	elapsed := w.e.now().Sub(start)

	switch outcome.Kind {
	case OutcomeCompleted:
		var branch bool
		if node.Type == NodeTypeCondition {
			b, ok := conditionResult(outcome.Data)
			if !ok {
				return w.fail(ctx, node, errors.New("condition node produced no boolean result"), elapsed)
			}
			branch = b
		}

		out := NodeOutput{
			NodeID:      node.ID,
			NodeType:    node.Type,
			Status:      NodeCompleted,
			Data:        outcome.Data,
			CompletedAt: w.e.now(),
		}
		w.outputs[node.ID] = out
		w.persistNode(ctx, out, elapsed)
		w.persistOutputs(ctx)
		w.e.metrics.RecordNode(string(node.Type), string(NodeCompleted), elapsed)
		w.logger.Debug("node completed",
			zap.String("node_id", node.ID),
			zap.String("node_type", string(node.Type)),
			zap.Duration("duration", elapsed),
		)

		if node.Type == NodeTypeCondition {
			w.propagateSkips(ctx, node.ID, branch)
		}
		return true

	case OutcomePaused:
		var kind PauseKind
		switch node.Type {
		case NodeTypeApproval:
			kind = PauseApproval
		case NodeTypeDelay:
			kind = PauseDelay
		default:
			return w.fail(ctx, node, fmt.Errorf("node type %s cannot pause a run", node.Type), elapsed)
		}
		w.result = &Result{
			Status:         ResultPaused,
			PausedAtNodeID: node.ID,
			PauseKind:      kind,
			ResumeAfter:    outcome.ResumeAfter,
		}
		w.e.metrics.RecordNode(string(node.Type), "paused", elapsed)
		span.SetAttributes(attribute.String("pause.kind", string(kind)))
		w.logger.Info("workflow run paused",
			zap.String("node_id", node.ID),
			zap.String("kind", string(kind)),
			zap.Duration("resume_after", outcome.ResumeAfter),
		)
		return false

	default:
		err := outcome.Err
		if err == nil {
			err = errors.New("node failed")
		}
		span.SetStatus(codes.Error, err.Error())
		return w.fail(ctx, node, err, elapsed)
	}
}

// invoke calls the handler with the node's resolved config. A panicking
// handler is reported as a failure.
func (w *runWalk) invoke(ctx context.Context, node Node) (outcome Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error("node handler panicked",
				zap.String("node_id", node.ID),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			outcome = Failed(fmt.Errorf("node handler panicked: %v", rec))
		}
	}()

	h, ok := w.e.handlers.Handler(node.Type)
	if !ok || h == nil {
		return Failed(types.Errorf(types.ErrUnknownNodeType, "no handler for node type %s", node.Type))
	}

	in := NodeInput{
		NodeID:    node.ID,
		NodeType:  node.Type,
		Upstream:  UpstreamOutputs(node.ID, w.def.Edges, w.outputs),
		Variables: w.rc.Variables,
	}
	return h.Execute(ctx, ResolveConfig(node.Config, w.rc.Variables), in, w.rc)
}

func (w *runWalk) fail(ctx context.Context, node Node, err error, elapsed time.Duration) bool {
	out := NodeOutput{
		NodeID:      node.ID,
		NodeType:    node.Type,
		Status:      NodeFailed,
		Error:       err.Error(),
		CompletedAt: w.e.now(),
	}
	w.outputs[node.ID] = out
	w.persistNode(ctx, out, elapsed)
	w.e.metrics.RecordNode(string(node.Type), string(NodeFailed), elapsed)
	w.logger.Warn("node failed",
		zap.String("node_id", node.ID),
		zap.String("node_type", string(node.Type)),
		zap.Error(err),
	)
	w.result = &Result{
		Status:       ResultFailed,
		FailedNodeID: node.ID,
		Error:        fmt.Sprintf("node %s failed: %s", node.ID, err.Error()),
	}
	return false
}

func (w *runWalk) skip(ctx context.Context, node Node, decider string) {
	out := NodeOutput{
		NodeID:      node.ID,
		NodeType:    node.Type,
		Status:      NodeSkipped,
		Data:        map[string]any{"reason": fmt.Sprintf("branch not taken at condition %s", decider)},
		SkippedBy:   decider,
		CompletedAt: w.e.now(),
	}
	w.outputs[node.ID] = out
	w.persistNode(ctx, out, 0)
	w.e.metrics.RecordNode(string(node.Type), string(NodeSkipped), 0)
	w.logger.Debug("node skipped", zap.String("node_id", node.ID), zap.String("skipped_by", decider))
}

// propagateSkips marks every later node whose incoming edges are all dead,
// walking forward in topological order so skips cascade.
func (w *runWalk) propagateSkips(ctx context.Context, conditionID string, result bool) {
	pos := -1
	for i, id := range w.order {
		if id == conditionID {
			pos = i
			break
		}
	}
	skipped := 0
	for _, id := range w.order[pos+1:] {
		if _, done := w.outputs[id]; done {
			continue
		}
		if decider, skip := w.skipCause(id); skip {
			w.skip(ctx, w.nodes[id], decider)
			skipped++
		}
	}
	w.logger.Debug("condition evaluated",
		zap.String("node_id", conditionID),
		zap.Bool("result", result),
		zap.Int("skipped", skipped),
	)
}

// skipCause reports whether every incoming edge of nodeID is dead, and which
// condition decided it. Nodes without incoming edges are never skipped.
func (w *runWalk) skipCause(nodeID string) (string, bool) {
	in := incoming(nodeID, w.def.Edges)
	if len(in) == 0 {
		return "", false
	}
	decider := ""
	for _, e := range in {
		dead, by := w.edgeDead(e)
		if !dead {
			return "", false
		}
		if decider == "" {
			decider = by
		}
	}
	return decider, true
}

// edgeDead: the source was skipped, or it is an evaluated condition and the
// edge carries the label of the branch not taken.
func (w *runWalk) edgeDead(e Edge) (bool, string) {
	src, ok := w.outputs[e.Source]
	if !ok {
		return false, ""
	}
	if src.Status == NodeSkipped {
		return true, src.SkippedBy
	}
	if src.NodeType == NodeTypeCondition && src.Status == NodeCompleted {
		if result, ok := conditionResult(src.Data); ok && untaken(e.Label, result) {
			return true, e.Source
		}
	}
	return false, ""
}

func untaken(label string, result bool) bool {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case LabelYes, "true":
		return !result
	case LabelNo, "false":
		return result
	default:
		return false
	}
}

func conditionResult(data any) (bool, bool) {
	switch t := data.(type) {
	case bool:
		return t, true
	case map[string]any:
		b, ok := t["result"].(bool)
		return b, ok
	default:
		return false, false
	}
}

func (w *runWalk) persistNode(ctx context.Context, out NodeOutput, elapsed time.Duration) {
	if err := w.e.recorder.RecordNodeRun(ctx, w.rc, out, elapsed); err != nil {
		w.logger.Warn("persist node run failed", zap.String("node_id", out.NodeID), zap.Error(err))
	}
}

func (w *runWalk) persistOutputs(ctx context.Context) {
	if err := w.e.recorder.SaveOutputs(ctx, w.rc, w.outputs.Clone()); err != nil {
		w.logger.Warn("persist run outputs failed", zap.Error(err))
	}
}
