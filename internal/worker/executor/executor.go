// Package executor runs job payloads on a worker.
package executor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"jobmesh/pkg/compute"
	"jobmesh/pkg/model"
)

// Executor computes one job and returns it with Result set.
type Executor interface {
	Run(ctx context.Context, job *model.Job) (*model.Job, error)
}

// ComputeExecutor runs jobs in-process through compute.Run.
type ComputeExecutor struct {
	delay  time.Duration
	logger *zap.Logger
}

// NewComputeExecutor returns an executor that holds every job for delay
// before computing it, standing in for long-running work.
func NewComputeExecutor(delay time.Duration, logger *zap.Logger) *ComputeExecutor {
	return &ComputeExecutor{delay: delay, logger: logger.Named("executor")}
}

func (e *ComputeExecutor) Run(ctx context.Context, job *model.Job) (*model.Job, error) {
	out := job.Clone()
	start := time.Now()
	e.logger.Debug("computing", zap.String("job", out.Name), zap.String("id", out.ID), zap.Duration("delay", e.delay))

	if err := compute.Run(ctx, out, e.delay); err != nil {
		e.logger.Warn("job failed", zap.String("job", out.Name), zap.Error(err))
		return nil, err
	}

	e.logger.Info("job computed",
		zap.String("job", out.Name),
		zap.String("type", string(out.Type)),
		zap.String("result", out.Result),
		zap.Duration("took", time.Since(start)),
	)
	return out, nil
}
