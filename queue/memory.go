package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryQueue is an in-process Backend ordered by due time.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []Job
	now  func() time.Time
}

// NewMemoryQueue creates an empty queue. now defaults to time.Now.
func NewMemoryQueue(now func() time.Time) *MemoryQueue {
	if now == nil {
		now = time.Now
	}
	return &MemoryQueue{now: now}
}

func (q *MemoryQueue) Enqueue(_ context.Context, key string, payload any, opts EnqueueOptions) (*Job, error) {
	job, err := newJob(key, payload, opts, q.now())
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	i := sort.Search(len(q.jobs), func(i int) bool { return q.jobs[i].RunAt.After(job.RunAt) })
	q.jobs = append(q.jobs, Job{})
	copy(q.jobs[i+1:], q.jobs[i:])
	q.jobs[i] = job
	return &job, nil
}

func (q *MemoryQueue) Claim(_ context.Context, max int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	n := 0
	for n < len(q.jobs) && n < max && !q.jobs[n].RunAt.After(now) {
		n++
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]Job, n)
	copy(out, q.jobs[:n])
	q.jobs = append(q.jobs[:0], q.jobs[n:]...)
	return out, nil
}

func (q *MemoryQueue) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs), nil
}

// Pending returns a copy of the queued jobs in due order.
func (q *MemoryQueue) Pending() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, len(q.jobs))
	copy(out, q.jobs)
	return out
}
