// Package events is the coordinator's fan-out notifier. Observers subscribe
// with a lease; every event published while the lease is live is delivered
// to them in publish order.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobmesh/internal/config"
	"jobmesh/pkg/model"
)

// ErrLeaseNotFound is returned for unknown or expired leases.
var ErrLeaseNotFound = errors.New("lease not found")

// maxBacklog bounds the undelivered events kept for one observer. An
// observer that falls further behind is dropped.
const maxBacklog = 1024

// Observer receives events. Implementations may be remote.
type Observer interface {
	Deliver(ctx context.Context, evt model.Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, evt model.Event) error

func (f ObserverFunc) Deliver(ctx context.Context, evt model.Event) error { return f(ctx, evt) }

type subscription struct {
	id       string
	observer Observer
	expires  time.Time
	backlog  []model.Event
	wake     chan struct{}
	done     chan struct{}
}

// Bus delivers each subscriber's events from its own goroutine so a slow
// observer never holds up the publisher.
type Bus struct {
	cfg    config.EventsConfig
	logger *zap.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	seq  uint64
	subs map[string]*subscription
}

func NewBus(cfg config.EventsConfig, logger *zap.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		cfg:    cfg,
		logger: logger.Named("events"),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*subscription),
	}
}

// Subscribe registers o until the returned lease expires. A non-positive ttl
// takes the default; ttl is capped at the configured maximum.
func (b *Bus) Subscribe(o Observer, ttl time.Duration) (model.Lease, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx.Err() != nil {
		return model.Lease{}, errors.New("event bus closed")
	}

	sub := &subscription{
		id:       uuid.NewString(),
		observer: o,
		expires:  b.now().Add(b.clampTTL(ttl)),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	b.subs[sub.id] = sub

	b.wg.Add(1)
	go b.deliverLoop(sub)

	b.logger.Info("observer subscribed", zap.String("lease", sub.id), zap.Time("expires", sub.expires))
	return model.Lease{ID: sub.id, ExpiresAt: sub.expires}, nil
}

// Renew extends a live lease by ttl from now.
func (b *Bus) Renew(id string, ttl time.Duration) (model.Lease, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok || !b.now().Before(sub.expires) {
		return model.Lease{}, ErrLeaseNotFound
	}
	sub.expires = b.now().Add(b.clampTTL(ttl))
	return model.Lease{ID: id, ExpiresAt: sub.expires}, nil
}

// Cancel ends a subscription.
func (b *Bus) Cancel(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[id]; !ok {
		return ErrLeaseNotFound
	}
	b.removeLocked(id, "cancelled")
	return nil
}

// Publish stamps a sequence number and queues the event for every live
// subscriber. Expired leases are reaped here.
func (b *Bus) Publish(kind model.EventKind, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	now := b.now()
	evt := model.Event{Seq: b.seq, Kind: kind, Message: message, Time: now}

	for id, sub := range b.subs {
		if !now.Before(sub.expires) {
			b.removeLocked(id, "lease expired")
			continue
		}
		if len(sub.backlog) >= maxBacklog {
			b.removeLocked(id, "backlog full")
			continue
		}
		sub.backlog = append(sub.backlog, evt)
		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
}

// Subscribers counts live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	n := 0
	for _, sub := range b.subs {
		if now.Before(sub.expires) {
			n++
		}
	}
	return n
}

// Close stops all delivery goroutines. Undelivered events are discarded.
func (b *Bus) Close() {
	b.cancel()
	b.mu.Lock()
	for id := range b.subs {
		b.removeLocked(id, "bus closed")
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bus) deliverLoop(sub *subscription) {
	defer b.wg.Done()

	for {
		select {
		case <-sub.wake:
		case <-sub.done:
			return
		case <-b.ctx.Done():
			return
		}

		b.mu.Lock()
		batch := sub.backlog
		sub.backlog = nil
		b.mu.Unlock()

		for _, evt := range batch {
			select {
			case <-sub.done:
				return
			default:
			}

			err := b.deliver(sub, evt)
			if err != nil {
				b.logger.Warn("delivery failed, dropping observer",
					zap.String("lease", sub.id), zap.Uint64("seq", evt.Seq), zap.Error(err))
				b.mu.Lock()
				if b.subs[sub.id] == sub {
					b.removeLocked(sub.id, "delivery failed")
				}
				b.mu.Unlock()
				return
			}
		}
	}
}

func (b *Bus) deliver(sub *subscription, evt model.Event) error {
	ctx, cancel := b.ctx, context.CancelFunc(func() {})
	if b.cfg.DeliveryTimeout > 0 {
		ctx, cancel = context.WithTimeout(b.ctx, b.cfg.DeliveryTimeout)
	}
	defer cancel()
	return sub.observer.Deliver(ctx, evt)
}

func (b *Bus) removeLocked(id, reason string) {
	sub := b.subs[id]
	delete(b.subs, id)
	close(sub.done)
	b.logger.Info("observer removed", zap.String("lease", id), zap.String("reason", reason))
}

func (b *Bus) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = b.cfg.DefaultLeaseTTL
	}
	if b.cfg.MaxLeaseTTL > 0 && ttl > b.cfg.MaxLeaseTTL {
		ttl = b.cfg.MaxLeaseTTL
	}
	return ttl
}
