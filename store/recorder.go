package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowagent/agent"
	"github.com/BaSui01/flowagent/internal/metrics"
	"github.com/BaSui01/flowagent/workflow"
)

// Recorder adapts a Store to the engines' persistence ports. Writes are
// fire-and-forget: failures are logged and counted, never returned.
type Recorder struct {
	store   *Store
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(store *Store, collector *metrics.Collector, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:   store,
		metrics: collector,
		logger:  logger.With(zap.String("component", "recorder")),
	}
}

func (r *Recorder) swallow(op string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	r.metrics.RecordPersistenceFailure(op)
	r.logger.Warn("persistence write failed", append(fields, zap.String("op", op), zap.Error(err))...)
}

// RecordAction implements agent.AuditSink.
func (r *Recorder) RecordAction(ctx context.Context, session agent.Session, rec agent.ActionRecord) error {
	r.swallow("append_action", r.store.AppendAction(ctx, session, rec),
		zap.String("session_id", session.ID), zap.Int("sequence", rec.Sequence))
	return nil
}

// SaveSession stores the summary of a finished session.
func (r *Recorder) SaveSession(ctx context.Context, session agent.Session, res *agent.ExecutionResult) error {
	r.swallow("upsert_session", r.store.UpsertSession(ctx, session, res), zap.String("session_id", session.ID))
	return nil
}

// RecordNodeRun implements workflow.RunRecorder.
func (r *Recorder) RecordNodeRun(ctx context.Context, rc workflow.RunContext, out workflow.NodeOutput, d time.Duration) error {
	r.swallow("append_node_run", r.store.AppendNodeRun(ctx, rc.RunID, out, d),
		zap.String("run_id", rc.RunID), zap.String("node_id", out.NodeID))
	return nil
}

// SaveOutputs implements workflow.RunRecorder.
func (r *Recorder) SaveOutputs(ctx context.Context, rc workflow.RunContext, outputs workflow.Outputs) error {
	r.swallow("save_outputs", r.store.SaveOutputs(ctx, rc.RunID, outputs), zap.String("run_id", rc.RunID))
	return nil
}
