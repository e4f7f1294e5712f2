package registry

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotBound is returned by Lookup and Unbind for an unknown name.
	ErrNotBound = errors.New("name not bound")
	// ErrAlreadyBound is returned by Bind when the name is taken.
	ErrAlreadyBound = errors.New("name already bound")
)

// Binding is the value stored under a name.
type Binding struct {
	Name     string    `json:"name"`
	Endpoint string    `json:"endpoint"`
	BoundAt  time.Time `json:"bound_at"`
}

// BindingEventType tells a watcher what happened to a name.
type BindingEventType int

const (
	BindingPut BindingEventType = iota
	BindingDelete
)

// BindingEvent is emitted by Watch.
type BindingEvent struct {
	Type    BindingEventType
	Binding Binding
}

// Registry maps names to remote endpoints. The coordinator binds itself at
// startup; workers and observers look it up.
type Registry interface {
	// Bind associates name with endpoint, failing with ErrAlreadyBound if the
	// name exists. The binding lives as long as the Registry is open.
	Bind(ctx context.Context, name, endpoint string) error

	// Rebind associates name with endpoint unconditionally.
	Rebind(ctx context.Context, name, endpoint string) error

	// Lookup returns the endpoint bound to name or ErrNotBound.
	Lookup(ctx context.Context, name string) (string, error)

	// List returns every bound name in lexical order.
	List(ctx context.Context) ([]string, error)

	// Unbind removes name.
	Unbind(ctx context.Context, name string) error

	// Watch streams changes to name until ctx is done.
	Watch(ctx context.Context, name string) <-chan BindingEvent

	Close() error
}
