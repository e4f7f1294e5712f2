package registry

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
)

// testContract exercises the behaviour every Registry must share. Names are
// prefixed so runs against a shared etcd do not collide.
func testContract(t *testing.T, reg Registry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	prefix := "test-" + uuid.NewString()[:8] + "-"
	name := prefix + "coord"

	if _, err := reg.Lookup(ctx, name); !errors.Is(err, ErrNotBound) {
		t.Fatalf("Lookup before Bind: err = %v, want ErrNotBound", err)
	}
	if err := reg.Bind(ctx, name, "http://a:1"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := reg.Bind(ctx, name, "http://b:1"); !errors.Is(err, ErrAlreadyBound) {
		t.Fatalf("second Bind: err = %v, want ErrAlreadyBound", err)
	}
	if ep, err := reg.Lookup(ctx, name); err != nil || ep != "http://a:1" {
		t.Fatalf("Lookup = %q, %v", ep, err)
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	events := reg.Watch(watchCtx, name)

	if err := reg.Rebind(ctx, name, "http://c:1"); err != nil {
		t.Fatalf("Rebind: %v", err)
	}
	select {
	case evt := <-events:
		if evt.Type != BindingPut || evt.Binding.Endpoint != "http://c:1" {
			t.Errorf("watch event = %+v", evt)
		}
	case <-ctx.Done():
		t.Fatal("no watch event after Rebind")
	}

	if err := reg.Bind(ctx, prefix+"other", "http://d:1"); err != nil {
		t.Fatalf("Bind other: %v", err)
	}
	all, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var mine []string
	for _, n := range all {
		if strings.HasPrefix(n, prefix) {
			mine = append(mine, n)
		}
	}
	if len(mine) != 2 || mine[0] != prefix+"coord" || mine[1] != prefix+"other" {
		t.Errorf("List = %v", mine)
	}

	if err := reg.Unbind(ctx, name); err != nil {
		t.Fatalf("Unbind: %v", err)
	}
	if err := reg.Unbind(ctx, name); !errors.Is(err, ErrNotBound) {
		t.Errorf("second Unbind: err = %v, want ErrNotBound", err)
	}
	if err := reg.Unbind(ctx, prefix+"other"); err != nil {
		t.Errorf("Unbind other: %v", err)
	}
}

func TestMemoryRegistryContract(t *testing.T) {
	reg := NewMemoryRegistry()
	defer reg.Close()
	testContract(t, reg)
}

// TestEtcdRegistryContract runs against a live cluster named by
// JOBMESH_TEST_ETCD, e.g. localhost:2379.
func TestEtcdRegistryContract(t *testing.T) {
	endpoints := os.Getenv("JOBMESH_TEST_ETCD")
	if endpoints == "" {
		t.Skip("JOBMESH_TEST_ETCD not set")
	}
	reg, err := NewEtcdRegistry(context.Background(), EtcdConfig{
		Endpoints:   strings.Split(endpoints, ","),
		DialTimeout: 3 * time.Second,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewEtcdRegistry: %v", err)
	}
	defer reg.Close()
	testContract(t, reg)
}
