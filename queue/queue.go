package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job is one unit of queued work.
type Job struct {
	ID      string          `json:"id"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
	// RunAt is when the job becomes due.
	RunAt      time.Time `json:"run_at"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Decode unmarshals the payload into v.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode job %s payload: %w", j.ID, err)
	}
	return nil
}

// EnqueueOptions controls scheduling of a job.
type EnqueueOptions struct {
	// Delay postpones the job; zero or negative means due now.
	Delay time.Duration
}

// Queue accepts jobs.
type Queue interface {
	Enqueue(ctx context.Context, key string, payload any, opts EnqueueOptions) (*Job, error)
}

// Source hands out due jobs. A claimed job is removed from the source.
type Source interface {
	Claim(ctx context.Context, max int) ([]Job, error)
}

// Backend is a queue a Worker can consume.
type Backend interface {
	Queue
	Source
	Len(ctx context.Context) (int, error)
}

func newJob(key string, payload any, opts EnqueueOptions, now time.Time) (Job, error) {
	if key == "" {
		return Job{}, fmt.Errorf("job key is required")
	}
	raw, ok := payload.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(payload)
		if err != nil {
			return Job{}, fmt.Errorf("encode job payload: %w", err)
		}
		raw = b
	}
	runAt := now
	if opts.Delay > 0 {
		runAt = now.Add(opts.Delay)
	}
	return Job{
		ID:         uuid.NewString(),
		Key:        key,
		Payload:    raw,
		RunAt:      runAt,
		EnqueuedAt: now,
	}, nil
}
