package model

import (
	"fmt"
	"time"
)

// EventKind is the lifecycle step an Event reports.
type EventKind string

const (
	EventScheduled EventKind = "scheduled"
	EventStarted   EventKind = "started"
	EventFinished  EventKind = "finished"
)

// Event is one message on the coordinator's event bus.
type Event struct {
	Seq     uint64    `json:"seq"`
	Kind    EventKind `json:"kind"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// ScheduledMessage and friends produce the human-readable texts observers print.
func ScheduledMessage(job string) string {
	return fmt.Sprintf("Job %s scheduled", job)
}

func StartedMessage(job, worker string) string {
	return fmt.Sprintf("Job %s started on %s", job, worker)
}

func FinishedMessage(job, worker string) string {
	return fmt.Sprintf("Job %s finished on %s", job, worker)
}

// Lease is the subscription token handed to an observer. It stays valid until
// ExpiresAt unless renewed.
type Lease struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}
