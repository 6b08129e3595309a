package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/flowagent/internal/metrics"
)

// Handler processes one job.
type Handler func(ctx context.Context, job Job) error

// Worker claims due jobs from a Source and dispatches them by key.
type Worker struct {
	source       Source
	concurrency  int
	pollInterval time.Duration
	drainTimeout time.Duration
	metrics      *metrics.Collector
	logger       *zap.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithConcurrency bounds concurrently running jobs.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithPollInterval sets how long an idle worker waits before claiming again.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithDrainTimeout bounds how long Run lets in-flight jobs finish after its
// context is cancelled. Jobs still running then see their context cancelled.
func WithDrainTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.drainTimeout = d
		}
	}
}

func WithWorkerMetrics(c *metrics.Collector) WorkerOption {
	return func(w *Worker) { w.metrics = c }
}

func WithWorkerLogger(logger *zap.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWorker creates a worker with concurrency 4 and a 500ms poll interval
// unless overridden.
func NewWorker(source Source, opts ...WorkerOption) *Worker {
	w := &Worker{
		source:       source,
		concurrency:  4,
		pollInterval: 500 * time.Millisecond,
		drainTimeout: 30 * time.Second,
		logger:       zap.NewNop(),
		handlers:     make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "queue_worker"))
	return w
}

// Handle registers h for jobs with the given key, replacing any previous one.
func (w *Worker) Handle(key string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[key] = h
}

// Run processes jobs until ctx is cancelled. Claimed jobs run on a context
// detached from ctx, so a shutdown lets them finish for up to the drain
// timeout before they are cancelled.
func (w *Worker) Run(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(w.concurrency)

	jobCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	defer abort()

	w.logger.Info("worker started",
		zap.Int("concurrency", w.concurrency),
		zap.Duration("poll_interval", w.pollInterval),
	)
	defer w.logger.Info("worker stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain(&g, abort)
			return nil
		case <-timer.C:
		}

		jobs, err := w.source.Claim(ctx, w.concurrency)
		if err != nil && ctx.Err() == nil {
			w.logger.Error("claim jobs failed", zap.Error(err))
		}
		for _, job := range jobs {
			g.Go(func() error {
				w.process(jobCtx, job)
				return nil
			})
		}

		if len(jobs) == w.concurrency {
			timer.Reset(0)
		} else {
			timer.Reset(w.pollInterval)
		}
	}
}

// drain waits for in-flight jobs, cancelling them once the drain timeout
// passes.
func (w *Worker) drain(g *errgroup.Group, abort context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	timer := time.NewTimer(w.drainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		w.logger.Warn("drain timeout reached, cancelling in-flight jobs", zap.Duration("timeout", w.drainTimeout))
		abort()
		<-done
	}
}

// Drain processes every job that is due now and returns how many ran.
// Jobs enqueued with a delay while draining are left for later.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		jobs, err := w.source.Claim(ctx, w.concurrency)
		if err != nil {
			return total, err
		}
		if len(jobs) == 0 {
			return total, nil
		}

		var g errgroup.Group
		g.SetLimit(w.concurrency)
		for _, job := range jobs {
			g.Go(func() error {
				w.process(ctx, job)
				return nil
			})
		}
		_ = g.Wait()
		total += len(jobs)
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	w.mu.RLock()
	h, ok := w.handlers[job.Key]
	w.mu.RUnlock()

	logger := w.logger.With(zap.String("job_id", job.ID), zap.String("key", job.Key))
	if !ok {
		logger.Warn("no handler for job key")
		w.metrics.RecordJob(job.Key, "unhandled")
		return
	}

	if err := w.safeHandle(ctx, h, job); err != nil {
		logger.Error("job failed", zap.Error(err))
		w.metrics.RecordJob(job.Key, "failed")
		return
	}
	w.metrics.RecordJob(job.Key, "ok")
}

func (w *Worker) safeHandle(ctx context.Context, h Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job handler panicked",
				zap.String("job_id", job.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}
