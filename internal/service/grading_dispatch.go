package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/noah-isme/gema-classroom-api/internal/middleware"
)

// ErrDispatcherClosed is returned by Dispatch once Shutdown has begun.
var ErrDispatcherClosed = errors.New("grading dispatcher is shut down")

// InProcessDispatcher runs grading jobs on goroutines detached from the request,
// at most `workers` at a time. Jobs still queued at shutdown are dropped and their
// submissions stay pending.
type InProcessDispatcher struct {
	runner  JobRunner
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  zerolog.Logger

	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewInProcessDispatcher constructs the dispatcher.
func NewInProcessDispatcher(runner JobRunner, workers int, timeout time.Duration, logger zerolog.Logger) *InProcessDispatcher {
	if workers <= 0 {
		workers = 4
	}
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	base, cancel := context.WithCancel(context.Background())
	return &InProcessDispatcher{
		runner:  runner,
		sem:     semaphore.NewWeighted(int64(workers)),
		timeout: timeout,
		logger:  logger.With().Str("component", "grading_dispatcher").Logger(),
		base:    base,
		cancel:  cancel,
	}
}

// Dispatch never blocks and ignores the caller's context, which ends with the request.
// The job's correlation id is re-attached to the detached context.
func (d *InProcessDispatcher) Dispatch(_ context.Context, job GradingJob) error {
	d.mu.Lock()
	if d.closed || d.base.Err() != nil {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(d.base, 1); err != nil {
			d.logger.Warn().Uint("submission_id", job.SubmissionID).Msg("dispatcher closed before grading started")
			return
		}
		defer d.sem.Release(1)

		ctx, cancel := context.WithTimeout(middleware.ContextWithCorrelation(d.base, job.CorrelationID), d.timeout)
		defer cancel()
		if err := d.runner.Run(ctx, job); err != nil {
			d.logger.Debug().Err(err).Uint("submission_id", job.SubmissionID).Msg("grading job finished with error")
		}
	}()
	return nil
}

// Wait blocks until every dispatched job has returned.
func (d *InProcessDispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown stops accepting jobs, then waits for running ones. Jobs still running when
// ctx expires are cancelled.
func (d *InProcessDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
