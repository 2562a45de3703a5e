package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-classroom-api/internal/middleware"
)

const queuePollTimeout = time.Second

// RedisGradingQueue is a durable dispatcher: jobs survive restarts in a Redis list and
// a pool of workers pops each one exactly once.
type RedisGradingQueue struct {
	client  *redis.Client
	key     string
	runner  JobRunner
	workers int
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRedisGradingQueue constructs the queue.
func NewRedisGradingQueue(client *redis.Client, key string, runner JobRunner, workers int, timeout time.Duration, logger zerolog.Logger) *RedisGradingQueue {
	if workers <= 0 {
		workers = 4
	}
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &RedisGradingQueue{
		client:  client,
		key:     key,
		runner:  runner,
		workers: workers,
		timeout: timeout,
		logger:  logger.With().Str("component", "grading_queue").Str("consumer", uuid.NewString()).Logger(),
	}
}

// Dispatch enqueues the job.
func (q *RedisGradingQueue) Dispatch(ctx context.Context, job GradingJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode grading job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue grading job: %w", err)
	}
	return nil
}

// Run starts the worker pool and blocks until ctx is cancelled.
func (q *RedisGradingQueue) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		group.Go(func() error {
			for groupCtx.Err() == nil {
				if _, err := q.ProcessNext(groupCtx); err != nil && groupCtx.Err() == nil {
					q.logger.Warn().Err(err).Msg("grading queue poll failed")
					select {
					case <-groupCtx.Done():
					case <-time.After(queuePollTimeout):
					}
				}
			}
			return nil
		})
	}
	return group.Wait()
}

// ProcessNext pops one job, waiting up to a second, and runs it. It reports whether a job was found.
func (q *RedisGradingQueue) ProcessNext(ctx context.Context) (bool, error) {
	values, err := q.client.BRPop(ctx, queuePollTimeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(values) != 2 {
		return false, fmt.Errorf("unexpected BRPOP reply of %d elements", len(values))
	}

	var job GradingJob
	if err := json.Unmarshal([]byte(values[1]), &job); err != nil {
		q.logger.Error().Err(err).Str("payload", values[1]).Msg("dropping malformed grading job")
		return true, nil
	}

	jobCtx, cancel := context.WithTimeout(middleware.ContextWithCorrelation(ctx, job.CorrelationID), q.timeout)
	defer cancel()
	if err := q.runner.Run(jobCtx, job); err != nil {
		q.logger.Debug().Err(err).Uint("submission_id", job.SubmissionID).Msg("grading job finished with error")
	}
	return true, nil
}

// Depth reports how many jobs wait in the queue.
func (q *RedisGradingQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
