package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmesh/internal/config"
	"jobmesh/internal/coordinator"
)

// NewCoordinatorCmd builds the jobmesh-coordinator command.
func NewCoordinatorCmd(opts ...Option) *cobra.Command {
	o := buildOptions(opts)
	def := config.DefaultCoordinatorConfig()
	flags := def
	var common commonFlags

	cmd := &cobra.Command{
		Use:   "jobmesh-coordinator",
		Short: "Run the jobmesh coordinator",
		Long: "jobmesh-coordinator binds its name in the registry, accepts jobs from " +
			"clients and runs them on registered workers in submission order.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultCoordinatorConfig()
			if err := config.Load(common.configPath, &cfg); err != nil {
				return err
			}
			fs := cmd.Flags()
			common.overlay(fs, &cfg.Log, &cfg.Registry)
			setIfChanged(fs, "name", &cfg.Name, flags.Name)
			setIfChanged(fs, "listen", &cfg.Listen, flags.Listen)
			setIfChanged(fs, "advertise", &cfg.Advertise, flags.Advertise)
			setIfChanged(fs, "probe-timeout", &cfg.Scheduler.ProbeTimeout, flags.Scheduler.ProbeTimeout)
			setIfChanged(fs, "pool-backoff", &cfg.Scheduler.PoolBackoff, flags.Scheduler.PoolBackoff)
			setIfChanged(fs, "max-attempts", &cfg.Scheduler.MaxAttempts, flags.Scheduler.MaxAttempts)
			setIfChanged(fs, "retry-backoff", &cfg.Scheduler.RetryBackoff, flags.Scheduler.RetryBackoff)
			setIfChanged(fs, "execute-timeout", &cfg.Scheduler.ExecuteTimeout, flags.Scheduler.ExecuteTimeout)
			setIfChanged(fs, "lease-ttl", &cfg.Events.DefaultLeaseTTL, flags.Events.DefaultLeaseTTL)
			setIfChanged(fs, "max-lease-ttl", &cfg.Events.MaxLeaseTTL, flags.Events.MaxLeaseTTL)
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			reg, closeReg, err := o.openRegistry(ctx, cfg.Registry, logger)
			if err != nil {
				return err
			}

			logger.Info("starting coordinator",
				zap.String("name", cfg.Name),
				zap.String("listen", cfg.Listen),
				zap.Duration("pool_backoff", cfg.Scheduler.PoolBackoff),
				zap.Int("max_attempts", cfg.Scheduler.MaxAttempts),
			)
			err = coordinator.New(cfg, logger).Run(ctx, reg)
			return closeAll(err, closeReg)
		},
	}

	fs := cmd.Flags()
	common.register(fs, def.Log, def.Registry)
	fs.StringVar(&flags.Name, "name", def.Name, "Registry name to bind")
	fs.StringVar(&flags.Listen, "listen", def.Listen, "HTTP listen address")
	fs.StringVar(&flags.Advertise, "advertise", def.Advertise, "URL published in the registry")
	fs.DurationVar(&flags.Scheduler.ProbeTimeout, "probe-timeout", def.Scheduler.ProbeTimeout, "Timeout of one worker liveness probe")
	fs.DurationVar(&flags.Scheduler.PoolBackoff, "pool-backoff", def.Scheduler.PoolBackoff, "Wait after finding no live worker")
	fs.IntVar(&flags.Scheduler.MaxAttempts, "max-attempts", def.Scheduler.MaxAttempts, "Dispatch attempts per job (0 retries forever)")
	fs.DurationVar(&flags.Scheduler.RetryBackoff, "retry-backoff", def.Scheduler.RetryBackoff, "Pause before re-enqueueing a failed job")
	fs.DurationVar(&flags.Scheduler.ExecuteTimeout, "execute-timeout", def.Scheduler.ExecuteTimeout, "Limit on one execute call (0 for none)")
	fs.DurationVar(&flags.Events.DefaultLeaseTTL, "lease-ttl", def.Events.DefaultLeaseTTL, "Default observer lease")
	fs.DurationVar(&flags.Events.MaxLeaseTTL, "max-lease-ttl", def.Events.MaxLeaseTTL, "Longest observer lease granted")
	return silence(cmd)
}
