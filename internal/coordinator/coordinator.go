// Package coordinator composes the scheduling core and the event bus behind
// the RPC surface that clients, workers and observers call.
package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"jobmesh/internal/config"
	"jobmesh/internal/coordinator/events"
	"jobmesh/internal/coordinator/scheduler"
	"jobmesh/internal/rpc"
	"jobmesh/pkg/model"
)

// Coordinator owns the admission queue, the worker pool and the event bus.
type Coordinator struct {
	cfg        config.CoordinatorConfig
	sched      *scheduler.Scheduler
	bus        *events.Bus
	httpClient *http.Client
	logger     *zap.Logger
	startTime  time.Time
}

func New(cfg config.CoordinatorConfig, logger *zap.Logger) *Coordinator {
	bus := events.NewBus(cfg.Events, logger)
	return &Coordinator{
		cfg:        cfg,
		sched:      scheduler.NewScheduler(cfg.Scheduler, bus, logger),
		bus:        bus,
		httpClient: &http.Client{},
		logger:     logger.Named("coordinator"),
		startTime:  time.Now(),
	}
}

// SubmitAndRun enqueues job and blocks until a worker has computed it.
func (c *Coordinator) SubmitAndRun(ctx context.Context, job *model.Job, isRetry bool) (*model.Job, error) {
	return c.sched.Dispatch(ctx, job, isRetry)
}

// RegisterWorker adds the worker at info.Address to the pool.
func (c *Coordinator) RegisterWorker(info model.WorkerInfo) (scheduler.Registration, error) {
	if info.Name == "" {
		return 0, fmt.Errorf("%w: worker name is required", model.ErrMalformedInput)
	}
	if err := checkURL(info.Address); err != nil {
		return 0, err
	}
	return c.sched.Register(rpc.NewRemoteWorker(info, c.httpClient)), nil
}

// Subscribe starts delivering events to the observer at callbackURL.
func (c *Coordinator) Subscribe(callbackURL string, ttl time.Duration) (model.Lease, error) {
	if err := checkURL(callbackURL); err != nil {
		return model.Lease{}, err
	}
	return c.bus.Subscribe(rpc.NewRemoteObserver(callbackURL, c.httpClient), ttl)
}

func (c *Coordinator) Renew(leaseID string, ttl time.Duration) (model.Lease, error) {
	return c.bus.Renew(leaseID, ttl)
}

func (c *Coordinator) Unsubscribe(leaseID string) error {
	return c.bus.Cancel(leaseID)
}

// Status snapshots the queue, pool and subscriber count.
func (c *Coordinator) Status() rpc.Status {
	entries := c.sched.Queue().Snapshot()
	waiting := make([]string, len(entries))
	for i, e := range entries {
		waiting[i] = e.Name
	}
	return rpc.Status{
		Queued:      len(entries),
		Waiting:     waiting,
		Workers:     c.sched.Pool().Snapshot(),
		Subscribers: c.bus.Subscribers(),
	}
}

// Close stops event delivery.
func (c *Coordinator) Close() {
	c.bus.Close()
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q is not an http(s) URL", model.ErrMalformedInput, raw)
	}
	return nil
}
