package scheduler

import (
	"context"

	"jobmesh/pkg/model"
)

// Worker is the coordinator's handle on one remote executor.
type Worker interface {
	// Name is the name the worker registered with. The pool keys on it.
	Name() string

	// Identify is the liveness probe. It returns the worker's own name.
	Identify(ctx context.Context) (string, error)

	// Execute runs job remotely and returns it with Result filled in.
	Execute(ctx context.Context, job *model.Job) (*model.Job, error)
}

// Publisher receives the scheduler's lifecycle events.
type Publisher interface {
	Publish(kind model.EventKind, message string)
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.EventKind, string) {}
