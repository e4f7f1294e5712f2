package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"jobmesh/pkg/model"
)

// ErrTicketGone is returned when a ticket is no longer in the queue.
var ErrTicketGone = errors.New("ticket not in queue")

// Ticket is one pass of a job through the admission queue.
type Ticket struct {
	ID  string
	Job *model.Job
}

// QueueEntry is a read-only view of a waiting ticket.
type QueueEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Queue is the FIFO admission queue. Only the head ticket may be dispatched.
// Waiters block on a broadcast channel that is closed and replaced whenever
// the head changes.
type Queue struct {
	mu      sync.Mutex
	entries []*Ticket
	changed chan struct{}
}

func NewQueue() *Queue {
	return &Queue{changed: make(chan struct{})}
}

// Enqueue stamps job with a fresh ID and appends it at the tail.
func (q *Queue) Enqueue(job *model.Job) *Ticket {
	q.mu.Lock()
	defer q.mu.Unlock()

	job.ID = uuid.NewString()
	t := &Ticket{ID: job.ID, Job: job}
	q.entries = append(q.entries, t)
	return t
}

// WaitHead blocks until t is at the head of the queue.
func (q *Queue) WaitHead(ctx context.Context, t *Ticket) error {
	for {
		q.mu.Lock()
		if len(q.entries) > 0 && q.entries[0] == t {
			q.mu.Unlock()
			return nil
		}
		if q.indexLocked(t) < 0 {
			q.mu.Unlock()
			return ErrTicketGone
		}
		ch := q.changed
		q.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pop removes t, which must be the head.
func (q *Queue) Pop(t *Ticket) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 || q.entries[0] != t {
		return ErrTicketGone
	}
	q.entries[0] = nil
	q.entries = q.entries[1:]
	q.broadcastLocked()
	return nil
}

// Remove drops t from anywhere in the queue. It reports whether t was found.
func (q *Queue) Remove(t *Ticket) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(t)
	if i < 0 {
		return false
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	if i == 0 {
		q.broadcastLocked()
	}
	return true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot lists waiting tickets head first.
func (q *Queue) Snapshot() []QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]QueueEntry, len(q.entries))
	for i, t := range q.entries {
		out[i] = QueueEntry{ID: t.ID, Name: t.Job.Name}
	}
	return out
}

func (q *Queue) indexLocked(t *Ticket) int {
	for i, e := range q.entries {
		if e == t {
			return i
		}
	}
	return -1
}

func (q *Queue) broadcastLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}
