package model

import (
	"errors"
	"fmt"
)

var (
	// ErrStartupConfig marks fatal startup problems: bad flags, a name that is
	// already bound, an unreachable registry.
	ErrStartupConfig = errors.New("startup configuration error")

	// ErrWorkerUnreachable is returned by a worker handle when the transport
	// fails or the worker answers with an error.
	ErrWorkerUnreachable = errors.New("worker unreachable")

	// ErrNoWorkerAvailable means a pool scan found no live worker. It never
	// leaves the scheduler.
	ErrNoWorkerAvailable = errors.New("no worker available")

	// ErrMalformedInput rejects a submission before it is enqueued.
	ErrMalformedInput = errors.New("malformed input")

	// ErrRetriesExhausted is returned only when a retry cap is configured.
	ErrRetriesExhausted = errors.New("dispatch retries exhausted")
)

// StartupError carries the component that failed to start.
type StartupError struct {
	Component string
	Err       error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("%s: %v", e.Component, e.Err)
}

func (e *StartupError) Unwrap() []error {
	return []error{ErrStartupConfig, e.Err}
}

// NewStartupError wraps err as a fatal startup error of component.
func NewStartupError(component string, err error) error {
	return &StartupError{Component: component, Err: err}
}
