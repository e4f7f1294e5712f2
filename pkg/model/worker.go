package model

import "time"

// WorkerInfo is what a worker sends when it registers with the coordinator.
type WorkerInfo struct {
	Name    string `json:"name"`    // unique worker name, also what Identify returns
	Address string `json:"address"` // base URL of the worker RPC server

	RegisteredAt time.Time `json:"registered_at,omitempty"`
}

// WorkerState is the pool's view of a worker.
type WorkerState string

const (
	WorkerIdle WorkerState = "IDLE" // in the pool, eligible for dispatch
	WorkerBusy WorkerState = "BUSY" // checked out, running a job
)

// WorkerSnapshot is one row of the pool listing.
type WorkerSnapshot struct {
	Name  string      `json:"name"`
	State WorkerState `json:"state"`
}
