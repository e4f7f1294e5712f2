package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"jobmesh/internal/config"
	"jobmesh/pkg/compute"
	"jobmesh/pkg/model"
)

var errDown = errors.New("connection refused")

// fakeWorker is an in-process Worker with switchable failures.
type fakeWorker struct {
	name string

	mu       sync.Mutex
	dead     bool          // Identify and Execute fail
	failExec int           // next N Execute calls fail
	gate     chan struct{} // Execute waits on it when set
	delay    time.Duration
	probes   int
	seen     []string // job IDs passed to Execute
	started  func(job *model.Job)

	running    atomic.Int32
	maxRunning atomic.Int32
}

func newFakeWorker(name string) *fakeWorker {
	return &fakeWorker{name: name}
}

func (f *fakeWorker) Name() string { return f.name }

func (f *fakeWorker) Identify(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	if f.dead {
		return "", errDown
	}
	return f.name, nil
}

func (f *fakeWorker) Execute(ctx context.Context, job *model.Job) (*model.Job, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		m := f.maxRunning.Load()
		if n <= m || f.maxRunning.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.seen = append(f.seen, job.ID)
	gate, delay, started := f.gate, f.delay, f.started
	f.mu.Unlock()

	if started != nil {
		started(job)
	}
	if gate != nil {
		<-gate
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	fail := f.dead || f.failExec > 0
	if f.failExec > 0 {
		f.failExec--
	}
	f.mu.Unlock()
	if fail {
		return nil, errDown
	}

	out := job.Clone()
	if err := compute.Run(ctx, out, 0); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeWorker) probeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

func (f *fakeWorker) seenIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) Publish(kind model.EventKind, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, model.Event{Seq: uint64(len(r.events) + 1), Kind: kind, Message: msg})
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Message
	}
	return out
}

func (r *recorder) count(kind model.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// testConfig uses an hour-long pool backoff so any test that finishes quickly
// proves the pool woke on a registration signal rather than a timer.
func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{ProbeTimeout: time.Second, PoolBackoff: time.Hour}
}

func newTestScheduler(t *testing.T, cfg config.SchedulerConfig) (*Scheduler, *recorder) {
	t.Helper()
	rec := &recorder{}
	return NewScheduler(cfg, rec, zaptest.NewLogger(t)), rec
}

// waitFor polls cond for up to two seconds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
