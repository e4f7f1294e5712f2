// Package worker is the jobmesh worker process. It serves the identify and
// execute RPCs and keeps itself registered with the coordinator.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"jobmesh/internal/config"
	"jobmesh/internal/rpc"
	"jobmesh/internal/worker/executor"
	"jobmesh/pkg/model"
	"jobmesh/pkg/registry"
)

const registerTimeout = 5 * time.Second

type Agent struct {
	cfg        config.WorkerConfig
	reg        registry.Registry // nil when cfg.CoordinatorURL is set
	exec       executor.Executor
	httpClient *http.Client
	logger     *zap.Logger
	startTime  time.Time
	executed   atomic.Int64

	mu          sync.Mutex
	coordinator *rpc.CoordinatorClient
}

func NewAgent(cfg config.WorkerConfig, reg registry.Registry, exec executor.Executor, logger *zap.Logger) *Agent {
	return &Agent{
		cfg:        cfg,
		reg:        reg,
		exec:       exec,
		httpClient: &http.Client{},
		logger:     logger.Named("worker").With(zap.String("name", cfg.Name)),
		startTime:  time.Now(),
	}
}

func (a *Agent) Name() string { return a.cfg.Name }

// Executed counts jobs this agent has completed.
func (a *Agent) Executed() int64 { return a.executed.Load() }

// Run listens on cfg.Listen and serves until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Listen)
	if err != nil {
		return model.NewStartupError("worker", fmt.Errorf("listen %s: %w", a.cfg.Listen, err))
	}
	return a.Serve(ctx, ln)
}

// Serve starts the RPC server on ln, registers with the coordinator and then
// keeps the registration fresh. Failing the first registration is fatal.
func (a *Agent) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 1. Start answering identify and execute
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- rpc.Serve(ctx, ln, a.Handler(), a.logger)
	}()

	// 2. First registration
	if err := a.register(ctx); err != nil {
		cancel()
		<-serveErr
		return model.NewStartupError("worker", err)
	}

	// 3. Heartbeat and follow the coordinator
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.keepRegistered(ctx)
	}()

	err := <-serveErr
	cancel()
	wg.Wait()
	return err
}

// keepRegistered re-registers on every heartbeat and whenever the coordinator
// name is rebound. The coordinator forgets a worker after one failed call, so
// this is how a recovered worker returns to the pool.
func (a *Agent) keepRegistered(ctx context.Context) {
	var tick <-chan time.Time
	if a.cfg.Heartbeat > 0 {
		ticker := time.NewTicker(a.cfg.Heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	var rebinds <-chan registry.BindingEvent
	if a.reg != nil && a.cfg.CoordinatorURL == "" {
		rebinds = a.reg.Watch(ctx, a.cfg.Coordinator)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case evt, ok := <-rebinds:
			if !ok {
				rebinds = nil
				continue
			}
			if evt.Type == registry.BindingDelete {
				a.logger.Warn("coordinator unbound", zap.String("coordinator", a.cfg.Coordinator))
				a.setCoordinator(nil)
				continue
			}
			a.logger.Info("coordinator rebound", zap.String("endpoint", evt.Binding.Endpoint))
			a.setCoordinator(rpc.NewCoordinatorClient(evt.Binding.Endpoint, a.httpClient))
		}

		if err := a.register(ctx); err != nil && ctx.Err() == nil {
			a.logger.Warn("re-registration failed", zap.Error(err))
		}
	}
}

func (a *Agent) register(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, registerTimeout)
	defer cancel()

	client, err := a.resolveCoordinator(ctx)
	if err != nil {
		return err
	}
	info := model.WorkerInfo{Name: a.cfg.Name, Address: a.cfg.Advertise}
	reply, err := client.Register(ctx, info)
	if err != nil {
		// the endpoint may be stale; look it up again next time
		a.setCoordinator(nil)
		return fmt.Errorf("register with %s: %w", client.BaseURL(), err)
	}
	a.logger.Debug("registered",
		zap.String("coordinator", client.BaseURL()),
		zap.Bool("deferred", reply.Deferred),
	)
	return nil
}

// resolveCoordinator returns the cached coordinator client, looking the
// coordinator up in the registry when there is none.
func (a *Agent) resolveCoordinator(ctx context.Context) (*rpc.CoordinatorClient, error) {
	a.mu.Lock()
	client := a.coordinator
	a.mu.Unlock()
	if client != nil {
		return client, nil
	}

	endpoint := a.cfg.CoordinatorURL
	if endpoint == "" {
		if a.reg == nil {
			return nil, errors.New("no registry and no coordinator URL configured")
		}
		var err error
		endpoint, err = a.reg.Lookup(ctx, a.cfg.Coordinator)
		if err != nil {
			return nil, fmt.Errorf("lookup coordinator %q: %w", a.cfg.Coordinator, err)
		}
	}

	client = rpc.NewCoordinatorClient(endpoint, a.httpClient)
	a.setCoordinator(client)
	return client, nil
}

func (a *Agent) setCoordinator(c *rpc.CoordinatorClient) {
	a.mu.Lock()
	a.coordinator = c
	a.mu.Unlock()
}
