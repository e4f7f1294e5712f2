// Package cli holds the cobra commands behind jobmesh, jobmesh-coordinator and
// jobmesh-worker.
package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"jobmesh/internal/config"
	"jobmesh/internal/logging"
	"jobmesh/pkg/model"
	"jobmesh/pkg/registry"
)

// Option customizes a command.
type Option func(*options)

// Dialer opens a registry from its config.
type Dialer func(ctx context.Context, cfg config.RegistryConfig, logger *zap.Logger) (registry.Registry, error)

type options struct {
	registry registry.Registry
	dial     Dialer
}

// WithRegistry makes the command use reg instead of dialing etcd. The
// command does not close it.
func WithRegistry(reg registry.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithDialer replaces the etcd dialer. Registries it opens are closed by
// the command.
func WithDialer(dial Dialer) Option {
	return func(o *options) { o.dial = dial }
}

func buildOptions(opts []Option) options {
	o := options{dial: dialEtcd}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// commonFlags are shared by every command: config file, logging and etcd.
type commonFlags struct {
	configPath string
	debug      bool
	log        config.LogConfig
	registry   config.RegistryConfig
}

func (c *commonFlags) register(fs *pflag.FlagSet, log config.LogConfig, reg config.RegistryConfig) {
	c.log = log
	c.registry = reg
	fs.StringVar(&c.configPath, "config", "", "YAML config file")
	fs.BoolVar(&c.debug, "debug", false, "Shorthand for --log-level=debug")
	fs.StringVar(&c.log.Level, "log-level", log.Level, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.log.Format, "log-format", log.Format, "Log format (console, json)")
	fs.StringSliceVar(&c.registry.Endpoints, "etcd", reg.Endpoints, "etcd endpoints of the name registry")
	fs.DurationVar(&c.registry.DialTimeout, "etcd-dial-timeout", reg.DialTimeout, "etcd dial timeout")
}

// overlay applies the flags that were set on the command line on top of
// values loaded from the config file.
func (c *commonFlags) overlay(fs *pflag.FlagSet, log *config.LogConfig, reg *config.RegistryConfig) {
	setIfChanged(fs, "log-level", &log.Level, c.log.Level)
	setIfChanged(fs, "log-format", &log.Format, c.log.Format)
	setIfChanged(fs, "etcd", &reg.Endpoints, c.registry.Endpoints)
	setIfChanged(fs, "etcd-dial-timeout", &reg.DialTimeout, c.registry.DialTimeout)
	if c.debug {
		log.Level = "debug"
	}
}

func setIfChanged[T any](fs *pflag.FlagSet, name string, dst *T, v T) {
	if fs.Changed(name) {
		*dst = v
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Level, cfg.Format)
	if err != nil {
		return nil, model.NewStartupError("logging", err)
	}
	return logger, nil
}

// openRegistry returns the injected registry or dials etcd. The returned
// close function only closes what was opened here.
func (o options) openRegistry(ctx context.Context, cfg config.RegistryConfig, logger *zap.Logger) (registry.Registry, func() error, error) {
	if o.registry != nil {
		return o.registry, func() error { return nil }, nil
	}
	reg, err := o.dial(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return reg, reg.Close, nil
}

func dialEtcd(ctx context.Context, cfg config.RegistryConfig, logger *zap.Logger) (registry.Registry, error) {
	return cfg.OpenRegistry(ctx, logger)
}

// closeAll runs fns and combines their errors with err.
func closeAll(err error, fns ...func() error) error {
	for _, fn := range fns {
		if fn != nil {
			err = multierr.Append(err, fn())
		}
	}
	return err
}

// silence leaves error reporting to main and keeps usage off runtime errors.
func silence(cmd *cobra.Command) *cobra.Command {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd
}
