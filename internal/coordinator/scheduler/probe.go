package scheduler

import (
	"context"

	"go.uber.org/zap"
)

// findLive probes candidates in order and stops at the first that answers.
// Every candidate that failed before it is returned in dead.
func (p *Pool) findLive(ctx context.Context, candidates []Worker) (live Worker, dead []Worker) {
	for _, w := range candidates {
		if ctx.Err() != nil {
			return nil, dead
		}
		if p.probe(ctx, w) {
			return w, dead
		}
		if ctx.Err() == nil {
			dead = append(dead, w)
		}
	}
	return nil, dead
}

// probe is the liveness check. A worker that answers with a different name
// is a stale handle for a reused address and counts as dead.
func (p *Pool) probe(ctx context.Context, w Worker) bool {
	pctx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	name, err := w.Identify(pctx)
	if err != nil {
		p.logger.Info("probe failed", zap.String("worker", w.Name()), zap.Error(err))
		return false
	}
	if name != w.Name() {
		p.logger.Warn("probe answered with another name",
			zap.String("worker", w.Name()), zap.String("answered", name))
		return false
	}
	return true
}
