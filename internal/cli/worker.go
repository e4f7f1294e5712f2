package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmesh/internal/config"
	"jobmesh/internal/worker"
	"jobmesh/internal/worker/executor"
	"jobmesh/pkg/registry"
)

// NewWorkerCmd builds the jobmesh-worker command.
func NewWorkerCmd(opts ...Option) *cobra.Command {
	o := buildOptions(opts)
	def := config.DefaultWorkerConfig()
	flags := def
	var common commonFlags

	cmd := &cobra.Command{
		Use:   "jobmesh-worker",
		Short: "Run a jobmesh compute worker",
		Long: "jobmesh-worker looks up the coordinator, registers with it and " +
			"computes the jobs it is given, one at a time.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := def
			if err := config.Load(common.configPath, &cfg); err != nil {
				return err
			}
			fs := cmd.Flags()
			common.overlay(fs, &cfg.Log, &cfg.Registry)
			setIfChanged(fs, "name", &cfg.Name, flags.Name)
			setIfChanged(fs, "listen", &cfg.Listen, flags.Listen)
			setIfChanged(fs, "advertise", &cfg.Advertise, flags.Advertise)
			setIfChanged(fs, "coordinator", &cfg.Coordinator, flags.Coordinator)
			setIfChanged(fs, "coordinator-url", &cfg.CoordinatorURL, flags.CoordinatorURL)
			setIfChanged(fs, "heartbeat", &cfg.Heartbeat, flags.Heartbeat)
			setIfChanged(fs, "work", &cfg.SimulatedWork, flags.SimulatedWork)
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			var reg registry.Registry
			closeReg := func() error { return nil }
			if cfg.CoordinatorURL == "" {
				reg, closeReg, err = o.openRegistry(ctx, cfg.Registry, logger)
				if err != nil {
					return err
				}
			}

			logger.Info("starting worker",
				zap.String("name", cfg.Name),
				zap.String("listen", cfg.Listen),
				zap.String("coordinator", cfg.Coordinator),
				zap.Duration("heartbeat", cfg.Heartbeat),
				zap.Duration("work", cfg.SimulatedWork),
			)
			exec := executor.NewComputeExecutor(cfg.SimulatedWork, logger)
			err = worker.NewAgent(cfg, reg, exec, logger).Run(ctx)
			return closeAll(err, closeReg)
		},
	}

	fs := cmd.Flags()
	common.register(fs, def.Log, def.Registry)
	fs.StringVar(&flags.Name, "name", def.Name, "Worker name, unique per coordinator (required)")
	fs.StringVar(&flags.Listen, "listen", def.Listen, "HTTP listen address")
	fs.StringVar(&flags.Advertise, "advertise", def.Advertise, "URL the coordinator calls back on")
	fs.StringVar(&flags.Coordinator, "coordinator", def.Coordinator, "Registry name of the coordinator")
	fs.StringVar(&flags.CoordinatorURL, "coordinator-url", "", "Coordinator URL, skipping the registry")
	fs.DurationVar(&flags.Heartbeat, "heartbeat", def.Heartbeat, "Re-registration interval (0 registers once)")
	fs.DurationVar(&flags.SimulatedWork, "work", def.SimulatedWork, "Simulated duration of every job")
	return silence(cmd)
}
