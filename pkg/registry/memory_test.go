package registry

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestMemoryRegistryBindLookup(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()
	defer r.Close()

	if err := r.Bind(ctx, "sched", "http://a:1"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := r.Bind(ctx, "sched", "http://b:2"); !errors.Is(err, ErrAlreadyBound) {
		t.Fatalf("second Bind = %v, want ErrAlreadyBound", err)
	}
	got, err := r.Lookup(ctx, "sched")
	if err != nil || got != "http://a:1" {
		t.Fatalf("Lookup = %q, %v", got, err)
	}

	if err := r.Rebind(ctx, "sched", "http://b:2"); err != nil {
		t.Fatalf("Rebind: %v", err)
	}
	if got, _ := r.Lookup(ctx, "sched"); got != "http://b:2" {
		t.Errorf("Lookup after Rebind = %q", got)
	}

	if _, err := r.Lookup(ctx, "missing"); !errors.Is(err, ErrNotBound) {
		t.Errorf("Lookup(missing) = %v, want ErrNotBound", err)
	}
}

func TestMemoryRegistryListAndUnbind(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()
	defer r.Close()

	for _, n := range []string{"zeta", "alpha", "mid"} {
		r.Rebind(ctx, n, "http://"+n)
	}
	names, _ := r.List(ctx)
	if want := []string{"alpha", "mid", "zeta"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("List = %v, want %v", names, want)
	}

	if err := r.Unbind(ctx, "mid"); err != nil {
		t.Fatalf("Unbind: %v", err)
	}
	if err := r.Unbind(ctx, "mid"); !errors.Is(err, ErrNotBound) {
		t.Fatalf("second Unbind = %v, want ErrNotBound", err)
	}
	names, _ = r.List(ctx)
	if len(names) != 2 {
		t.Errorf("List after Unbind = %v", names)
	}
}

func TestMemoryRegistryWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewMemoryRegistry()
	defer r.Close()

	ch := r.Watch(ctx, "sched")
	r.Rebind(ctx, "other", "http://x")
	r.Rebind(ctx, "sched", "http://new")
	r.Unbind(ctx, "sched")

	expect := []BindingEventType{BindingPut, BindingDelete}
	for i, want := range expect {
		select {
		case evt := <-ch:
			if evt.Type != want {
				t.Fatalf("event %d type = %v, want %v", i, evt.Type, want)
			}
			if evt.Binding.Name != "sched" {
				t.Fatalf("event %d for %q", i, evt.Binding.Name)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("unexpected event after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}
