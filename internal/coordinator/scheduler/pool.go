package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"jobmesh/pkg/model"
)

// Pool holds the workers believed to be available. A worker leaves the pool
// when it is checked out for a job or when a probe finds it unreachable.
type Pool struct {
	logger       *zap.Logger
	probeTimeout time.Duration
	backoff      time.Duration

	// scanMu serializes Acquire so a scan and its pruning are atomic with
	// respect to other acquirers. Register only needs mu.
	scanMu sync.Mutex

	mu       sync.Mutex
	idle     []Worker
	busy     map[string]Worker
	pending  map[string]Worker // newest registration of a busy worker
	nonEmpty chan struct{}     // closed and replaced when a worker is added
}

// Registration reports what Register did with a handle.
type Registration int

const (
	// RegistrationAdded means the name was new to the pool.
	RegistrationAdded Registration = iota
	// RegistrationReplaced means an idle handle under the same name was swapped.
	RegistrationReplaced
	// RegistrationDeferred means the worker is running a job. The handle is
	// held until the job ends and then takes the old one's place.
	RegistrationDeferred
)

func (r Registration) String() string {
	switch r {
	case RegistrationAdded:
		return "added"
	case RegistrationReplaced:
		return "replaced"
	case RegistrationDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// addresser is implemented by handles that know where their worker listens.
type addresser interface {
	Addr() string
}

func NewPool(probeTimeout, backoff time.Duration, logger *zap.Logger) *Pool {
	return &Pool{
		logger:       logger.Named("pool"),
		probeTimeout: probeTimeout,
		backoff:      backoff,
		busy:         make(map[string]Worker),
		pending:      make(map[string]Worker),
		nonEmpty:     make(chan struct{}),
	}
}

// Register adds w to the pool. A worker already in the pool under the same
// name has its handle replaced. A worker that is checked out stays checked
// out; the newest handle is kept aside and used when the job ends.
func (p *Pool) Register(w Worker) Registration {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := w.Name()
	if old, ok := p.busy[name]; ok {
		if prev, ok := p.pending[name]; ok {
			old = prev
		}
		p.warnMovedLocked(old, w)
		p.pending[name] = w
		p.logger.Debug("deferring registration of busy worker", zap.String("worker", name))
		return RegistrationDeferred
	}
	if i := p.indexLocked(name); i >= 0 {
		p.warnMovedLocked(p.idle[i], w)
		p.idle[i] = w
		p.signalLocked()
		return RegistrationReplaced
	}
	p.idle = append(p.idle, w)
	p.logger.Info("worker registered", zap.String("worker", name), zap.Int("idle", len(p.idle)))
	p.signalLocked()
	return RegistrationAdded
}

// Acquire blocks until a live worker is found and checks it out. Workers that
// fail the probe on the way are pruned.
func (p *Pool) Acquire(ctx context.Context) (Worker, error) {
	p.scanMu.Lock()
	defer p.scanMu.Unlock()

	for {
		p.mu.Lock()
		candidates := append([]Worker(nil), p.idle...)
		p.mu.Unlock()

		live, dead := p.findLive(ctx, candidates)

		p.mu.Lock()
		for _, w := range dead {
			p.pruneLocked(w)
		}
		if live != nil {
			live = p.checkoutLocked(live)
			p.mu.Unlock()
			return live, nil
		}
		empty := len(p.idle) == 0
		wake := p.nonEmpty
		p.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !empty {
			// registrations arrived during the scan
			continue
		}

		p.logger.Debug("no live worker, backing off", zap.Error(model.ErrNoWorkerAvailable), zap.Duration("backoff", p.backoff))
		timer := time.NewTimer(p.backoff)
		select {
		case <-wake:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
		timer.Stop()
	}
}

// Release returns a worker after it completed a job. A registration that
// arrived during the job wins over w.
func (p *Pool) Release(w Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := w.Name()
	delete(p.busy, name)
	if next, ok := p.pending[name]; ok {
		delete(p.pending, name)
		w = next
	}
	if i := p.indexLocked(name); i >= 0 {
		p.idle[i] = w
	} else {
		p.idle = append(p.idle, w)
	}
	p.signalLocked()
}

// Drop forgets a checked-out worker whose job failed. It must re-register,
// unless it already did while the job was running.
func (p *Pool) Drop(w Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := w.Name()
	delete(p.busy, name)
	next, ok := p.pending[name]
	if !ok {
		p.logger.Warn("worker dropped, waiting for re-registration", zap.String("worker", name))
		return
	}
	delete(p.pending, name)
	if p.indexLocked(name) < 0 {
		p.idle = append(p.idle, next)
	}
	p.logger.Warn("worker dropped, using its newer registration", zap.String("worker", name))
	p.signalLocked()
}

// Len reports the number of idle workers.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Contains reports whether a worker named name is idle in the pool.
func (p *Pool) Contains(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.indexLocked(name) >= 0
}

// Snapshot lists idle workers in scan order followed by busy ones by name.
func (p *Pool) Snapshot() []model.WorkerSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]model.WorkerSnapshot, 0, len(p.idle)+len(p.busy))
	for _, w := range p.idle {
		out = append(out, model.WorkerSnapshot{Name: w.Name(), State: model.WorkerIdle})
	}
	busy := make([]string, 0, len(p.busy))
	for name := range p.busy {
		busy = append(busy, name)
	}
	sort.Strings(busy)
	for _, name := range busy {
		out = append(out, model.WorkerSnapshot{Name: name, State: model.WorkerBusy})
	}
	return out
}

// checkoutLocked moves the idle entry for w's name to busy. A re-registration
// during the probe may have replaced the handle; the newest one wins.
func (p *Pool) checkoutLocked(w Worker) Worker {
	if i := p.indexLocked(w.Name()); i >= 0 {
		w = p.idle[i]
		p.idle = append(p.idle[:i], p.idle[i+1:]...)
	}
	p.busy[w.Name()] = w
	return w
}

// pruneLocked removes exactly this handle. Pruning twice is a no-op, and a
// fresh registration under the same name survives.
func (p *Pool) pruneLocked(w Worker) {
	for i, c := range p.idle {
		if c == w {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			p.logger.Warn("pruned unreachable worker", zap.String("worker", w.Name()), zap.Int("idle", len(p.idle)))
			return
		}
	}
}

// warnMovedLocked flags a registration that moves a name to another address.
// Two processes sharing one name replace each other and one sits unused.
func (p *Pool) warnMovedLocked(old, w Worker) {
	oa, ok1 := old.(addresser)
	na, ok2 := w.(addresser)
	if !ok1 || !ok2 || oa.Addr() == na.Addr() {
		return
	}
	p.logger.Warn("worker name re-registered from another address",
		zap.String("worker", w.Name()),
		zap.String("old", oa.Addr()),
		zap.String("new", na.Addr()),
	)
}

func (p *Pool) indexLocked(name string) int {
	for i, w := range p.idle {
		if w.Name() == name {
			return i
		}
	}
	return -1
}

func (p *Pool) signalLocked() {
	close(p.nonEmpty)
	p.nonEmpty = make(chan struct{})
}
