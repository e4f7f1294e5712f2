package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"jobmesh/pkg/model"
)

func TestQueueEnqueueAssignsFreshID(t *testing.T) {
	q := NewQueue()
	job := model.NewGCDJob("a", "1", "2")

	t1 := q.Enqueue(job)
	first := job.ID
	t2 := q.Enqueue(job)

	if first == "" || job.ID == first {
		t.Fatalf("IDs not fresh: %q then %q", first, job.ID)
	}
	if t1.ID != first || t2.ID != job.ID {
		t.Errorf("ticket IDs %q,%q do not match job IDs", t1.ID, t2.ID)
	}
	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}
}

func TestQueueWaitHeadFollowsFIFO(t *testing.T) {
	q := NewQueue()
	a := q.Enqueue(model.NewGCDJob("a", "1", "2"))
	b := q.Enqueue(model.NewGCDJob("b", "1", "2"))
	c := q.Enqueue(model.NewGCDJob("c", "1", "2"))

	if err := q.WaitHead(context.Background(), a); err != nil {
		t.Fatalf("head wait: %v", err)
	}

	reached := make(chan string, 2)
	for _, tk := range []*Ticket{c, b} {
		go func(tk *Ticket) {
			if err := q.WaitHead(context.Background(), tk); err == nil {
				reached <- tk.Job.Name
			}
		}(tk)
	}

	select {
	case name := <-reached:
		t.Fatalf("%s reached head while a was still queued", name)
	case <-time.After(50 * time.Millisecond):
	}

	if err := q.Pop(a); err != nil {
		t.Fatalf("Pop(a): %v", err)
	}
	if got := <-reached; got != "b" {
		t.Fatalf("head after a = %s, want b", got)
	}
	if err := q.Pop(c); !errors.Is(err, ErrTicketGone) {
		t.Fatalf("Pop(non-head) = %v, want ErrTicketGone", err)
	}
	q.Pop(b)
	if got := <-reached; got != "c" {
		t.Fatalf("head after b = %s, want c", got)
	}
}

func TestQueueRemoveHeadWakesNext(t *testing.T) {
	q := NewQueue()
	a := q.Enqueue(model.NewGCDJob("a", "1", "2"))
	b := q.Enqueue(model.NewGCDJob("b", "1", "2"))

	done := make(chan error, 1)
	go func() { done <- q.WaitHead(context.Background(), b) }()

	if !q.Remove(a) {
		t.Fatal("Remove(a) = false")
	}
	if q.Remove(a) {
		t.Fatal("second Remove(a) = true")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitHead(b) = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("b never reached head")
	}
}

func TestQueueWaitHeadCancelled(t *testing.T) {
	q := NewQueue()
	q.Enqueue(model.NewGCDJob("a", "1", "2"))
	b := q.Enqueue(model.NewGCDJob("b", "1", "2"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.WaitHead(ctx, b); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitHead = %v, want DeadlineExceeded", err)
	}

	q.Remove(b)
	if err := q.WaitHead(context.Background(), b); !errors.Is(err, ErrTicketGone) {
		t.Fatalf("WaitHead(removed) = %v, want ErrTicketGone", err)
	}
}

func TestQueueConcurrentEnqueue(t *testing.T) {
	q := NewQueue()
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Enqueue(model.NewPrimalityJob(fmt.Sprintf("j%d", i), "7"))
		}(i)
	}
	wg.Wait()

	snap := q.Snapshot()
	if len(snap) != n {
		t.Fatalf("Len = %d, want %d", len(snap), n)
	}
	ids := make(map[string]bool, n)
	for _, e := range snap {
		if ids[e.ID] {
			t.Fatalf("duplicate ticket ID %s", e.ID)
		}
		ids[e.ID] = true
	}
}
