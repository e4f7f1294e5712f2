// Package observer receives coordinator events on an HTTP callback and
// prints them. It holds a lease on the coordinator's event bus and renews it
// at half its remaining lifetime.
package observer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"jobmesh/internal/rpc"
	"jobmesh/pkg/model"
)

const (
	minRenewInterval = 100 * time.Millisecond
	unsubscribeWait  = 3 * time.Second
)

type Observer struct {
	client      *rpc.CoordinatorClient
	callbackURL string
	ttl         time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	out      io.Writer
	received int
}

// New returns an observer whose callback is reachable at callbackURL. A zero
// ttl lets the coordinator pick the lease length.
func New(client *rpc.CoordinatorClient, callbackURL string, ttl time.Duration, out io.Writer, logger *zap.Logger) *Observer {
	return &Observer{
		client:      client,
		callbackURL: callbackURL,
		ttl:         ttl,
		out:         out,
		logger:      logger.Named("observer"),
	}
}

// Received counts delivered events.
func (o *Observer) Received() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.received
}

func (o *Observer) Handler() http.Handler {
	r := rpc.NewRouter(o.logger)
	r.Post(rpc.PathDeliver, o.handleDeliver)
	return r
}

// POST /deliver
func (o *Observer) handleDeliver(w http.ResponseWriter, r *http.Request) {
	reqID := rpc.RequestIDFromContext(r.Context())

	var evt model.Event
	if err := rpc.DecodeJSON(w, r, &evt); err != nil {
		rpc.RespondError(w, reqID, http.StatusBadRequest, rpc.CodeMalformedInput, err.Error())
		return
	}

	o.mu.Lock()
	o.received++
	_, err := fmt.Fprintln(o.out, evt.Message)
	o.mu.Unlock()
	if err != nil {
		rpc.RespondError(w, reqID, http.StatusInternalServerError, rpc.CodeInternal, err.Error())
		return
	}
	rpc.RespondOK(w, reqID, map[string]uint64{"seq": evt.Seq})
}

// Serve listens for deliveries on ln, subscribes, and keeps the lease alive
// until ctx is done. The subscription is cancelled on the way out.
func (o *Observer) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- rpc.Serve(ctx, ln, o.Handler(), o.logger)
	}()

	lease, err := o.client.Subscribe(ctx, o.callbackURL, o.ttl)
	if err != nil {
		cancel()
		<-serveErr
		return model.NewStartupError("observer", fmt.Errorf("subscribe at %s: %w", o.client.BaseURL(), err))
	}
	o.logger.Info("subscribed", zap.String("lease", lease.ID), zap.Time("expires", lease.ExpiresAt))

	renewed := make(chan model.Lease, 1)
	go func() {
		renewed <- o.keepAlive(ctx, lease)
	}()

	err = <-serveErr
	cancel()
	last := <-renewed

	unsubCtx, unsubCancel := context.WithTimeout(context.Background(), unsubscribeWait)
	defer unsubCancel()
	if uerr := o.client.Unsubscribe(unsubCtx, last.ID); uerr != nil && !errors.Is(uerr, rpc.ErrNotFound) {
		err = multierr.Append(err, fmt.Errorf("unsubscribe: %w", uerr))
	}
	return err
}

// keepAlive renews lease until ctx is done and returns the current one. A
// lease the coordinator no longer knows is replaced by a new subscription.
func (o *Observer) keepAlive(ctx context.Context, lease model.Lease) model.Lease {
	timer := time.NewTimer(renewInterval(lease))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return lease
		case <-timer.C:
		}

		next, err := o.client.Renew(ctx, lease.ID, o.ttl)
		if errors.Is(err, rpc.ErrNotFound) {
			o.logger.Warn("lease lost, subscribing again", zap.String("lease", lease.ID))
			next, err = o.client.Subscribe(ctx, o.callbackURL, o.ttl)
		}
		switch {
		case err != nil && ctx.Err() != nil:
			return lease
		case err != nil:
			o.logger.Warn("lease renewal failed", zap.String("lease", lease.ID), zap.Error(err))
			timer.Reset(minRenewInterval)
			continue
		}

		lease = next
		o.logger.Debug("lease renewed", zap.String("lease", lease.ID), zap.Time("expires", lease.ExpiresAt))
		timer.Reset(renewInterval(lease))
	}
}

func renewInterval(lease model.Lease) time.Duration {
	d := time.Until(lease.ExpiresAt) / 2
	if d < minRenewInterval {
		d = minRenewInterval
	}
	return d
}
