// Package scheduler is the coordinator's scheduling core: the FIFO admission
// queue, the worker pool, and the dispatch loop that ties them together.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobmesh/internal/config"
	"jobmesh/pkg/model"
)

// Scheduler dispatches submitted jobs to workers in admission order.
type Scheduler struct {
	cfg    config.SchedulerConfig
	queue  *Queue
	pool   *Pool
	events Publisher
	logger *zap.Logger
}

// NewScheduler wires a queue and pool. events may be nil.
func NewScheduler(cfg config.SchedulerConfig, events Publisher, logger *zap.Logger) *Scheduler {
	if events == nil {
		events = nopPublisher{}
	}
	logger = logger.Named("scheduler")
	return &Scheduler{
		cfg:    cfg,
		queue:  NewQueue(),
		pool:   NewPool(cfg.ProbeTimeout, cfg.PoolBackoff, logger),
		events: events,
		logger: logger,
	}
}

func (s *Scheduler) Queue() *Queue { return s.queue }
func (s *Scheduler) Pool() *Pool { return s.pool }

// Register makes w available for dispatch.
func (s *Scheduler) Register(w Worker) Registration {
	return s.pool.Register(w)
}

// Dispatch runs job on some worker and returns the completed job. It blocks
// until the job reaches the head of the queue and a live worker is found.
//
// A failed execution drops the worker and re-enqueues the job at the tail
// under a new ID. isRetry suppresses the scheduled event, as does every
// internal retry. Once a worker has the job, cancelling ctx no longer
// interrupts it.
func (s *Scheduler) Dispatch(ctx context.Context, job *model.Job, isRetry bool) (*model.Job, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	job.Status.SubmittedAt = time.Now()

	retry := isRetry
	for attempt := 1; ; attempt++ {
		job.Status.Attempts = attempt

		// 1. One pass through queue and pool
		done, err := s.runOnce(ctx, job, retry)
		if err == nil {
			return done, nil
		}
		if !errors.Is(err, model.ErrWorkerUnreachable) {
			return nil, err
		}

		// 2. Give up only when a cap is set
		s.logger.Warn("dispatch failed, retrying",
			zap.String("job", job.Name), zap.Int("attempt", attempt), zap.Error(err))
		if s.cfg.MaxAttempts > 0 && attempt >= s.cfg.MaxAttempts {
			return nil, fmt.Errorf("%w: job %s after %d attempts: %v",
				model.ErrRetriesExhausted, job.Name, attempt, err)
		}
		retry = true

		// 3. Optional pause before rejoining the tail
		if s.cfg.RetryBackoff > 0 {
			timer := time.NewTimer(s.cfg.RetryBackoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}
	}
}

// runOnce is a single pass through the queue and one execution attempt.
func (s *Scheduler) runOnce(ctx context.Context, job *model.Job, retry bool) (*model.Job, error) {
	// Step 1: Enqueue under a fresh ID
	t := s.queue.Enqueue(job)
	if !retry {
		s.events.Publish(model.EventScheduled, model.ScheduledMessage(job.Name))
	}
	s.logger.Debug("job enqueued", zap.String("job", job.Name), zap.String("id", t.ID), zap.Bool("retry", retry))

	// Step 2: Wait for the head of the queue
	if err := s.queue.WaitHead(ctx, t); err != nil {
		s.queue.Remove(t)
		return nil, err
	}

	// Step 3: Check out a live worker, then leave the queue
	w, err := s.pool.Acquire(ctx)
	if err != nil {
		s.queue.Remove(t)
		return nil, err
	}
	if err := s.queue.Pop(t); err != nil {
		// only this goroutine pops t, so this is a bug
		s.pool.Release(w)
		return nil, err
	}

	// Step 4: Execute; a failure drops the worker
	name := w.Name()
	job.Status.Worker = name
	job.Status.StartTime = time.Now()
	s.events.Publish(model.EventStarted, model.StartedMessage(job.Name, name))
	s.logger.Info("job started", zap.String("job", job.Name), zap.String("id", t.ID), zap.String("worker", name))

	done, err := s.execute(ctx, w, job)
	if err != nil {
		s.pool.Drop(w)
		return nil, err
	}

	// Step 5: Report and hand the worker back
	done.Status.Worker = name
	done.Status.EndTime = time.Now()
	s.events.Publish(model.EventFinished, model.FinishedMessage(job.Name, name))
	s.logger.Info("job finished", zap.String("job", job.Name), zap.String("worker", name), zap.String("result", done.Result))
	s.pool.Release(w)
	return done, nil
}

// execute calls the worker detached from the caller's cancellation. Every
// failure, including a missing reply, is reported as ErrWorkerUnreachable.
func (s *Scheduler) execute(ctx context.Context, w Worker, job *model.Job) (*model.Job, error) {
	execCtx := context.WithoutCancel(ctx)
	if s.cfg.ExecuteTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(execCtx, s.cfg.ExecuteTimeout)
		defer cancel()
	}

	done, err := w.Execute(execCtx, job)
	if err == nil && done == nil {
		err = errors.New("empty reply")
	}
	if err != nil {
		if !errors.Is(err, model.ErrWorkerUnreachable) {
			err = fmt.Errorf("%w: %s: %v", model.ErrWorkerUnreachable, w.Name(), err)
		}
		return nil, err
	}
	return done, nil
}
