package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/flowagent/internal/metrics"
	"github.com/BaSui01/flowagent/queue"
	"github.com/BaSui01/flowagent/types"
	"github.com/BaSui01/flowagent/workflow"
)

// JobKeyRun is the queue key of workflow run jobs.
const JobKeyRun = "workflow.run"

const (
	defaultLockTTL        = 10 * time.Minute
	defaultStatusInterval = 2 * time.Second
	lockedRetryDelay      = 5 * time.Second
	runLockKeyPattern     = "flowagent:lock:run:%s"
)

// errRunCancelled is the cancellation cause of an invocation whose run was
// cancelled while it executed.
var errRunCancelled = errors.New("run cancelled")

// RunJob is the payload of a JobKeyRun job.
type RunJob struct {
	RunID            string `json:"run_id"`
	ResumeFromNodeID string `json:"resume_from_node_id,omitempty"`
}

// RunStore persists workflow runs. TransitionRun must only write when the
// stored status is one of from, failing with ErrInvalidRunState otherwise.
type RunStore interface {
	SaveRun(ctx context.Context, run *workflow.Run) error
	GetRun(ctx context.Context, id string) (*workflow.Run, error)
	TransitionRun(ctx context.Context, run *workflow.Run, from ...workflow.RunStatus) error
}

// DefinitionSource looks up workflow definitions; *workflow.Catalog
// implements it.
type DefinitionSource interface {
	Get(id string) (*workflow.Definition, bool)
}

// TriggerRequest starts a new run.
type TriggerRequest struct {
	WorkflowID string         `json:"workflow_id"`
	ProjectID  string         `json:"project_id,omitempty"`
	Payload    any            `json:"payload,omitempty"`
	Variables  map[string]any `json:"variables,omitempty"`
}

// RunService drives workflow runs through the queue.
type RunService struct {
	defs     DefinitionSource
	runs     RunStore
	queue    queue.Queue
	executor *workflow.Executor
	locker   Locker
	lockTTL  time.Duration
	metrics  *metrics.Collector
	logger   *zap.Logger

	// 轮询间隔：发现其他进程取消了正在本进程执行的运行
	statusInterval time.Duration

	mu       sync.Mutex
	inflight map[string]context.CancelCauseFunc
}

// RunServiceOption configures a RunService.
type RunServiceOption func(*RunService)

// WithLocker replaces the default MemoryLocker.
func WithLocker(l Locker) RunServiceOption {
	return func(s *RunService) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithStatusInterval sets how often an executing invocation re-reads its run
// to notice a cancellation made by another process.
func WithStatusInterval(d time.Duration) RunServiceOption {
	return func(s *RunService) {
		if d > 0 {
			s.statusInterval = d
		}
	}
}

func WithRunMetrics(c *metrics.Collector) RunServiceOption {
	return func(s *RunService) { s.metrics = c }
}

func WithRunLogger(logger *zap.Logger) RunServiceOption {
	return func(s *RunService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRunService creates a RunService.
func NewRunService(defs DefinitionSource, runs RunStore, q queue.Queue, executor *workflow.Executor, opts ...RunServiceOption) *RunService {
	s := &RunService{
		defs:     defs,
		runs:     runs,
		queue:    q,
		executor: executor,
		locker:   NewMemoryLocker(),
		lockTTL:  defaultLockTTL,
		logger:   zap.NewNop(),

		statusInterval: defaultStatusInterval,
		inflight:       make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "run_service"))
	return s
}

// Register routes run jobs on w to this service.
func (s *RunService) Register(w *queue.Worker) {
	w.Handle(JobKeyRun, s.HandleJob)
}

// Trigger persists a new running run and enqueues its first execution.
func (s *RunService) Trigger(ctx context.Context, req TriggerRequest) (*workflow.Run, error) {
	def, ok := s.defs.Get(req.WorkflowID)
	if !ok {
		return nil, types.Errorf(types.ErrNotFound, "workflow %s not found", req.WorkflowID)
	}
	projectID := req.ProjectID
	if projectID == "" {
		projectID = def.ProjectID
	}

	run := &workflow.Run{
		ID:             uuid.NewString(),
		WorkflowID:     def.ID,
		ProjectID:      projectID,
		Status:         workflow.RunRunning,
		Variables:      req.Variables,
		TriggerPayload: req.Payload,
		Outputs:        workflow.Outputs{},
	}
	if err := s.runs.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, RunJob{RunID: run.ID}, 0); err != nil {
		return nil, err
	}
	s.logger.Info("run triggered", zap.String("run_id", run.ID), zap.String("workflow_id", run.WorkflowID))
	return run, nil
}

// Get loads a run.
func (s *RunService) Get(ctx context.Context, runID string) (*workflow.Run, error) {
	return s.runs.GetRun(ctx, runID)
}

// Resume applies an approval decision to a run waiting at an approval node.
// A rejection cancels the run; an approval re-enqueues it from the paused
// node with its accumulated outputs.
func (s *RunService) Resume(ctx context.Context, runID string, approved bool) (*workflow.Run, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != workflow.RunWaitingApproval {
		return nil, types.Errorf(types.ErrInvalidRunState, "run %s is %s, not waiting for approval", runID, run.Status)
	}

	if !approved {
		run.Status = workflow.RunCancelled
		run.Error = fmt.Sprintf("approval rejected at node %s", run.PausedAtNodeID)
		if err := s.runs.TransitionRun(ctx, run, workflow.RunWaitingApproval); err != nil {
			return nil, err
		}
		s.metrics.RecordRun(run.WorkflowID, string(workflow.RunCancelled))
		s.logger.Info("run rejected", zap.String("run_id", runID), zap.String("node_id", run.PausedAtNodeID))
		return run, nil
	}

	run.Status = workflow.RunRunning
	if err := s.runs.TransitionRun(ctx, run, workflow.RunWaitingApproval); err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, RunJob{RunID: run.ID, ResumeFromNodeID: run.PausedAtNodeID}, 0); err != nil {
		return nil, err
	}
	s.logger.Info("run approved", zap.String("run_id", runID), zap.String("node_id", run.PausedAtNodeID))
	return run, nil
}

// Cancel stops a run that has not finished. Queued jobs for it become no-ops
// and an invocation executing it is interrupted; its result is discarded.
func (s *RunService) Cancel(ctx context.Context, runID string) (*workflow.Run, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return nil, types.Errorf(types.ErrInvalidRunState, "run %s is already %s", runID, run.Status)
	}
	run.Status = workflow.RunCancelled
	if err := s.runs.TransitionRun(ctx, run, workflow.RunRunning, workflow.RunWaitingApproval); err != nil {
		return nil, err
	}
	s.interrupt(runID)
	s.metrics.RecordRun(run.WorkflowID, string(workflow.RunCancelled))
	s.logger.Info("run cancelled", zap.String("run_id", runID))
	return run, nil
}

// HandleJob executes one invocation of a run.
func (s *RunService) HandleJob(ctx context.Context, job queue.Job) error {
	var rj RunJob
	if err := job.Decode(&rj); err != nil {
		return err
	}
	logger := s.logger.With(zap.String("run_id", rj.RunID), zap.String("resume_from", rj.ResumeFromNodeID))

	lockKey := fmt.Sprintf(runLockKeyPattern, rj.RunID)
	token, ok, err := s.locker.TryLock(ctx, lockKey, s.lockTTL)
	if err != nil {
		return err
	}
	if !ok {
		logger.Info("run is locked by another worker, retrying later")
		return s.enqueue(ctx, rj, lockedRetryDelay)
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), lockKey, token); err != nil {
			logger.Warn("release run lock failed", zap.Error(err))
		}
	}()

	run, err := s.runs.GetRun(ctx, rj.RunID)
	if err != nil {
		return err
	}
	if stale := staleJob(run, rj); stale != "" {
		logger.Info("skipping job", zap.String("reason", stale), zap.String("status", string(run.Status)))
		return nil
	}

	def, ok := s.defs.Get(run.WorkflowID)
	if !ok {
		return s.failRun(ctx, run, types.Errorf(types.ErrNotFound, "workflow %s not found", run.WorkflowID))
	}

	execCtx, stop := s.track(ctx, run.ID)
	defer stop()
	// Cancel 可能落在读取与登记之间
	if cur, err := s.runs.GetRun(ctx, run.ID); err == nil && cur.Status != run.Status {
		logger.Info("run changed before execution", zap.String("status", string(cur.Status)))
		return nil
	}

	res, err := s.executor.Execute(execCtx, def, run.Context(), workflow.ExecuteOptions{
		ResumeFromNodeID: rj.ResumeFromNodeID,
		ExistingOutputs:  run.Outputs,
	})

	// 写入不受执行上下文影响：被取消的执行也要落库或重新入队
	writeCtx := context.WithoutCancel(ctx)
	switch {
	case errors.Is(context.Cause(execCtx), errRunCancelled):
		logger.Info("run cancelled during execution, result discarded")
		return nil
	case ctx.Err() != nil:
		return s.requeueInterrupted(writeCtx, run, rj, res, logger)
	case err != nil:
		return s.failRun(writeCtx, run, err)
	}
	return s.apply(writeCtx, run, res)
}

// track registers an executing invocation so Cancel can interrupt it, and
// watches the stored status for cancellations made elsewhere.
func (s *RunService) track(ctx context.Context, runID string) (context.Context, func()) {
	execCtx, cancel := context.WithCancelCause(ctx)

	s.mu.Lock()
	s.inflight[runID] = cancel
	s.mu.Unlock()

	done := make(chan struct{})
	go s.watchStatus(execCtx, runID, cancel, done)

	return execCtx, func() {
		close(done)
		s.mu.Lock()
		delete(s.inflight, runID)
		s.mu.Unlock()
		cancel(nil)
	}
}

func (s *RunService) watchStatus(ctx context.Context, runID string, cancel context.CancelCauseFunc, done <-chan struct{}) {
	ticker := time.NewTicker(s.statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		run, err := s.runs.GetRun(ctx, runID)
		if err != nil {
			continue
		}
		if run.Status == workflow.RunCancelled {
			cancel(errRunCancelled)
			return
		}
	}
}

func (s *RunService) interrupt(runID string) {
	s.mu.Lock()
	cancel, ok := s.inflight[runID]
	s.mu.Unlock()
	if ok {
		cancel(errRunCancelled)
	}
}

// requeueInterrupted keeps what completed before the worker stopped and puts
// the job back so another worker continues the run.
func (s *RunService) requeueInterrupted(ctx context.Context, run *workflow.Run, rj RunJob, res *workflow.Result, logger *zap.Logger) error {
	if res != nil {
		kept := make(workflow.Outputs, len(res.Outputs))
		for id, out := range res.Outputs {
			if out.Status != workflow.NodeFailed {
				kept[id] = out
			}
		}
		run.Outputs = kept
	}
	if err := s.runs.TransitionRun(ctx, run, workflow.RunRunning); err != nil {
		if types.IsErrorCode(err, types.ErrInvalidRunState) {
			logger.Info("interrupted run changed meanwhile, not requeued", zap.Error(err))
			return nil
		}
		return err
	}
	logger.Warn("invocation interrupted by shutdown, job requeued", zap.Int("outputs_kept", len(run.Outputs)))
	return s.enqueue(ctx, rj, 0)
}

// staleJob explains why a job must not execute, or returns "".
func staleJob(run *workflow.Run, rj RunJob) string {
	switch {
	case run.Status.Terminal():
		return "run is finished"
	case run.Status == workflow.RunWaitingApproval:
		return "run is waiting for approval"
	case rj.ResumeFromNodeID == "" && run.PausedAtNodeID != "":
		return "run already started"
	case rj.ResumeFromNodeID != "" && rj.ResumeFromNodeID != run.PausedAtNodeID:
		return "run is no longer paused at this node"
	}
	return ""
}

func (s *RunService) apply(ctx context.Context, run *workflow.Run, res *workflow.Result) error {
	run.Outputs = res.Outputs
	var delay time.Duration
	resume := false

	switch res.Status {
	case workflow.ResultCompleted:
		run.Status = workflow.RunCompleted
		run.PausedAtNodeID = ""
		run.Error = ""
	case workflow.ResultFailed:
		run.Status = workflow.RunFailed
		run.PausedAtNodeID = ""
		run.Error = res.Error
	case workflow.ResultPaused:
		run.PausedAtNodeID = res.PausedAtNodeID
		if res.PauseKind == workflow.PauseApproval {
			run.Status = workflow.RunWaitingApproval
		} else {
			run.Status = workflow.RunRunning
			delay = res.ResumeAfter
			resume = true
		}
	}

	if err := s.runs.TransitionRun(ctx, run, workflow.RunRunning); err != nil {
		if types.IsErrorCode(err, types.ErrInvalidRunState) {
			s.logger.Info("run changed while executing, result discarded",
				zap.String("run_id", run.ID),
				zap.Error(err),
			)
			return nil
		}
		return err
	}
	if resume {
		if err := s.enqueue(ctx, RunJob{RunID: run.ID, ResumeFromNodeID: run.PausedAtNodeID}, delay); err != nil {
			return err
		}
	}
	s.logger.Info("run invocation finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.String("paused_at", run.PausedAtNodeID),
		zap.Duration("resume_after", delay),
	)
	return nil
}

func (s *RunService) failRun(ctx context.Context, run *workflow.Run, cause error) error {
	run.Status = workflow.RunFailed
	run.Error = cause.Error()
	s.logger.Error("run failed before execution", zap.String("run_id", run.ID), zap.Error(cause))
	err := s.runs.TransitionRun(ctx, run, workflow.RunRunning)
	if types.IsErrorCode(err, types.ErrInvalidRunState) {
		return nil
	}
	return err
}

func (s *RunService) enqueue(ctx context.Context, rj RunJob, delay time.Duration) error {
	if _, err := s.queue.Enqueue(ctx, JobKeyRun, rj, queue.EnqueueOptions{Delay: delay}); err != nil {
		return types.NewError(types.ErrQueue, "enqueue run "+rj.RunID).WithCause(err)
	}
	return nil
}
