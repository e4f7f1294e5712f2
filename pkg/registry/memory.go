package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRegistry is an in-process Registry for tests and single-process runs.
type MemoryRegistry struct {
	mu       sync.Mutex
	bindings map[string]Binding
	watchers map[string][]chan BindingEvent
	closed   bool
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		bindings: make(map[string]Binding),
		watchers: make(map[string][]chan BindingEvent),
	}
}

func (m *MemoryRegistry) Bind(_ context.Context, name, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bindings[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyBound, name)
	}
	m.put(name, endpoint)
	return nil
}

func (m *MemoryRegistry) Rebind(_ context.Context, name, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(name, endpoint)
	return nil
}

func (m *MemoryRegistry) Lookup(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotBound, name)
	}
	return b.Endpoint, nil
}

func (m *MemoryRegistry) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.bindings))
	for n := range m.bindings {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryRegistry) Unbind(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotBound, name)
	}
	delete(m.bindings, name)
	m.notify(BindingEvent{Type: BindingDelete, Binding: b})
	return nil
}

// Watch delivers events for name. Events are dropped for a watcher that is
// not keeping up, the same as a compacted etcd watch would lose history.
func (m *MemoryRegistry) Watch(ctx context.Context, name string) <-chan BindingEvent {
	ch := make(chan BindingEvent, 16)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch
	}
	m.watchers[name] = append(m.watchers[name], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		list := m.watchers[name]
		for i, c := range list {
			if c == ch {
				m.watchers[name] = append(list[:i], list[i+1:]...)
				close(ch)
				break
			}
		}
	}()
	return ch
}

func (m *MemoryRegistry) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for name, list := range m.watchers {
		for _, c := range list {
			close(c)
		}
		delete(m.watchers, name)
	}
	return nil
}

// put and notify expect m.mu held.
func (m *MemoryRegistry) put(name, endpoint string) {
	b := Binding{Name: name, Endpoint: endpoint, BoundAt: time.Now().UTC()}
	m.bindings[name] = b
	m.notify(BindingEvent{Type: BindingPut, Binding: b})
}

func (m *MemoryRegistry) notify(evt BindingEvent) {
	for _, c := range m.watchers[evt.Binding.Name] {
		select {
		case c <- evt:
		default:
		}
	}
}
