package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultKeyPrefix namespaces the queue's sorted set.
const DefaultKeyPrefix = "flowagent"

// RedisQueue is a Backend on a Redis sorted set scored by due time in
// milliseconds.
type RedisQueue struct {
	client redis.UniversalClient
	key    string
	now    func() time.Time
	logger *zap.Logger
}

// RedisOption configures a RedisQueue.
type RedisOption func(*RedisQueue)

// WithRedisClock overrides the clock used for due times.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(q *RedisQueue) {
		if now != nil {
			q.now = now
		}
	}
}

// NewRedisQueue creates a queue stored under "<prefix>:jobs".
func NewRedisQueue(client redis.UniversalClient, prefix string, logger *zap.Logger, opts ...RedisOption) *RedisQueue {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &RedisQueue{
		client: client,
		key:    prefix + ":jobs",
		now:    time.Now,
		logger: logger.With(zap.String("component", "redis_queue")),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Key returns the sorted set key.
func (q *RedisQueue) Key() string { return q.key }

func (q *RedisQueue) Enqueue(ctx context.Context, key string, payload any, opts EnqueueOptions) (*Job, error) {
	job, err := newJob(key, payload, opts, q.now())
	if err != nil {
		return nil, err
	}
	member, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	if err := q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(job.RunAt.UnixMilli()),
		Member: string(member),
	}).Err(); err != nil {
		return nil, fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	q.logger.Debug("job enqueued",
		zap.String("job_id", job.ID),
		zap.String("key", key),
		zap.Duration("delay", opts.Delay),
	)
	return &job, nil
}

// Claim reads up to max due members and keeps those this caller removed,
// so concurrent workers never receive the same job.
func (q *RedisQueue) Claim(ctx context.Context, max int) ([]Job, error) {
	if max <= 0 {
		return nil, nil
	}
	members, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(q.now().UnixMilli(), 10),
		Count: int64(max),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read due jobs: %w", err)
	}

	jobs := make([]Job, 0, len(members))
	for _, m := range members {
		removed, err := q.client.ZRem(ctx, q.key, m).Result()
		if err != nil {
			return jobs, fmt.Errorf("claim job: %w", err)
		}
		if removed == 0 {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(m), &job); err != nil {
			q.logger.Error("dropping undecodable job", zap.Error(err))
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return int(n), nil
}
