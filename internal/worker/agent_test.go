package worker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"jobmesh/internal/config"
	"jobmesh/internal/rpc"
	"jobmesh/internal/worker/executor"
	"jobmesh/pkg/model"
	"jobmesh/pkg/registry"
)

// fakeCoordinator records worker registrations.
type fakeCoordinator struct {
	srv *httptest.Server

	mu    sync.Mutex
	infos []model.WorkerInfo
}

func newFakeCoordinator(t *testing.T) *fakeCoordinator {
	t.Helper()
	fc := &fakeCoordinator{}
	mux := http.NewServeMux()
	mux.HandleFunc(rpc.PathWorkers, func(w http.ResponseWriter, r *http.Request) {
		var info model.WorkerInfo
		if err := rpc.DecodeJSON(w, r, &info); err != nil {
			rpc.RespondError(w, "req", http.StatusBadRequest, rpc.CodeMalformedInput, err.Error())
			return
		}
		fc.mu.Lock()
		fc.infos = append(fc.infos, info)
		fc.mu.Unlock()
		rpc.RespondOK(w, "req", rpc.RegisterReply{Registered: true, Name: info.Name})
	})
	fc.srv = httptest.NewServer(mux)
	t.Cleanup(fc.srv.Close)
	return fc
}

func (fc *fakeCoordinator) registrations() []model.WorkerInfo {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]model.WorkerInfo(nil), fc.infos...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func testWorkerConfig(name string) config.WorkerConfig {
	cfg := config.DefaultWorkerConfig()
	cfg.Name = name
	cfg.Heartbeat = 0
	return cfg
}

func newTestAgent(t *testing.T, cfg config.WorkerConfig, reg registry.Registry) *Agent {
	logger := zaptest.NewLogger(t)
	return NewAgent(cfg, reg, executor.NewComputeExecutor(cfg.SimulatedWork, logger), logger)
}

// startAgent serves a on a loopback port and returns its stop function.
func startAgent(t *testing.T, a *Agent) (errc <-chan error, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	a.cfg.Advertise = "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan error, 1)
	go func() { ch <- a.Serve(ctx, ln) }()
	return ch, cancel
}

func TestHandlerIdentifyAndExecute(t *testing.T) {
	a := newTestAgent(t, testWorkerConfig("w1"), nil)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	remote := rpc.NewRemoteWorker(model.WorkerInfo{Name: "w1", Address: srv.URL}, srv.Client())
	name, err := remote.Identify(context.Background())
	if err != nil || name != "w1" {
		t.Fatalf("Identify = %q, %v", name, err)
	}

	done, err := remote.Execute(context.Background(), model.NewGCDJob("A", "48", "18"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if done.Result != "6" || done.Status.Worker != "w1" {
		t.Errorf("done = %+v", done)
	}
	if a.Executed() != 1 {
		t.Errorf("executed = %d, want 1", a.Executed())
	}
}

func TestHandlerExecuteMalformedIsUnreachable(t *testing.T) {
	a := newTestAgent(t, testWorkerConfig("w1"), nil)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	remote := rpc.NewRemoteWorker(model.WorkerInfo{Name: "w1", Address: srv.URL}, srv.Client())
	_, err := remote.Execute(context.Background(), model.NewPrimalityJob("bad", "seven"))
	if !errors.Is(err, model.ErrWorkerUnreachable) {
		t.Fatalf("err = %v, want ErrWorkerUnreachable", err)
	}
	if a.Executed() != 0 {
		t.Errorf("executed = %d, want 0", a.Executed())
	}
}

func TestServeRegistersThroughRegistry(t *testing.T) {
	fc := newFakeCoordinator(t)
	reg := registry.NewMemoryRegistry()
	if err := reg.Bind(context.Background(), config.DefaultCoordinatorName, fc.srv.URL); err != nil {
		t.Fatal(err)
	}

	cfg := testWorkerConfig("w1")
	cfg.Heartbeat = 10 * time.Millisecond
	a := newTestAgent(t, cfg, reg)
	errc, stop := startAgent(t, a)

	waitFor(t, "heartbeat re-registrations", func() bool { return len(fc.registrations()) >= 3 })
	stop()
	if err := <-errc; err != nil {
		t.Fatalf("Serve: %v", err)
	}

	got := fc.registrations()[0]
	if got.Name != "w1" || got.Address != a.cfg.Advertise {
		t.Errorf("registration = %+v", got)
	}
}

func TestServeFollowsCoordinatorRebind(t *testing.T) {
	first, second := newFakeCoordinator(t), newFakeCoordinator(t)
	reg := registry.NewMemoryRegistry()
	ctx := context.Background()
	if err := reg.Bind(ctx, config.DefaultCoordinatorName, first.srv.URL); err != nil {
		t.Fatal(err)
	}

	a := newTestAgent(t, testWorkerConfig("w1"), reg)
	errc, stop := startAgent(t, a)
	defer func() {
		stop()
		<-errc
	}()

	waitFor(t, "first registration", func() bool { return len(first.registrations()) == 1 })

	// the watch starts after the first registration, so rebind until it is seen
	waitFor(t, "registration with the rebound coordinator", func() bool {
		if err := reg.Rebind(ctx, config.DefaultCoordinatorName, second.srv.URL); err != nil {
			t.Fatal(err)
		}
		return len(second.registrations()) > 0
	})
}

func TestServeFailsWhenCoordinatorNotBound(t *testing.T) {
	a := newTestAgent(t, testWorkerConfig("w1"), registry.NewMemoryRegistry())
	errc, stop := startAgent(t, a)
	defer stop()

	err := <-errc
	if !errors.Is(err, model.ErrStartupConfig) || !errors.Is(err, registry.ErrNotBound) {
		t.Fatalf("err = %v, want startup error wrapping ErrNotBound", err)
	}
}

func TestServeWithDirectCoordinatorURL(t *testing.T) {
	fc := newFakeCoordinator(t)
	cfg := testWorkerConfig("w2")
	cfg.CoordinatorURL = fc.srv.URL
	a := newTestAgent(t, cfg, nil)
	errc, stop := startAgent(t, a)

	waitFor(t, "registration", func() bool { return len(fc.registrations()) == 1 })
	stop()
	if err := <-errc; err != nil {
		t.Fatalf("Serve: %v", err)
	}
}
