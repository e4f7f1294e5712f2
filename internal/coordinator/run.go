package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"jobmesh/internal/rpc"
	"jobmesh/pkg/model"
	"jobmesh/pkg/registry"
)

const unbindTimeout = 3 * time.Second

// Run listens on cfg.Listen, binds the coordinator name and serves until ctx
// is done.
func (c *Coordinator) Run(ctx context.Context, reg registry.Registry) error {
	ln, err := net.Listen("tcp", c.cfg.Listen)
	if err != nil {
		return model.NewStartupError("coordinator", fmt.Errorf("listen %s: %w", c.cfg.Listen, err))
	}
	return c.Serve(ctx, ln, reg)
}

// Serve is Run on an existing listener. ln is closed on return.
func (c *Coordinator) Serve(ctx context.Context, ln net.Listener, reg registry.Registry) error {
	defer c.Close()

	// 1. Claim the name; someone else holding it is fatal
	if err := reg.Bind(ctx, c.cfg.Name, c.cfg.Advertise); err != nil {
		ln.Close()
		if errors.Is(err, registry.ErrAlreadyBound) {
			return model.NewStartupError("coordinator", fmt.Errorf("name %q is already bound: %w", c.cfg.Name, err))
		}
		return model.NewStartupError("coordinator", fmt.Errorf("bind %q: %w", c.cfg.Name, err))
	}
	c.logger.Info("coordinator bound",
		zap.String("name", c.cfg.Name),
		zap.String("advertise", c.cfg.Advertise),
	)

	// 2. Serve until ctx is done
	err := rpc.Serve(ctx, ln, c.Handler(), c.logger)

	// 3. Release the name

	unbindCtx, cancel := context.WithTimeout(context.Background(), unbindTimeout)
	defer cancel()
	if uerr := reg.Unbind(unbindCtx, c.cfg.Name); uerr != nil && !errors.Is(uerr, registry.ErrNotBound) {
		err = multierr.Append(err, fmt.Errorf("unbind %q: %w", c.cfg.Name, uerr))
	}
	c.logger.Info("coordinator stopped", zap.String("name", c.cfg.Name))
	return err
}
