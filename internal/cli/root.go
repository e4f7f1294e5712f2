package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmesh/internal/config"
	"jobmesh/internal/rpc"
	"jobmesh/pkg/registry"
)

// client is the state shared by the jobmesh subcommands.
type client struct {
	opts   options
	common commonFlags
	flags  config.ClientConfig

	cfg      config.ClientConfig
	logger   *zap.Logger
	reg      registry.Registry
	closeReg func() error
}

// defaultCoordinatorURL lets JOBMESH_COORDINATOR_URL skip the registry.
func defaultCoordinatorURL() string {
	return os.Getenv("JOBMESH_COORDINATOR_URL")
}

// NewRootCmd creates the jobmesh client command.
func NewRootCmd(opts ...Option) *cobra.Command {
	c := &client{opts: buildOptions(opts)}
	def := config.DefaultClientConfig()
	c.flags = def

	root := &cobra.Command{
		Use:   "jobmesh",
		Short: "Submit jobs to a jobmesh coordinator",
		Long: "jobmesh submits GCD and primality jobs to the coordinator, " +
			"watches its event stream and inspects the registry.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultClientConfig()
			if err := config.Load(c.common.configPath, &cfg); err != nil {
				return err
			}
			fs := cmd.Flags()
			c.common.overlay(fs, &cfg.Log, &cfg.Registry)
			setIfChanged(fs, "coordinator", &cfg.Coordinator, c.flags.Coordinator)
			if c.flags.CoordinatorURL != "" {
				cfg.CoordinatorURL = c.flags.CoordinatorURL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			c.cfg, c.logger = cfg, logger
			return nil
		},
	}

	fs := root.PersistentFlags()
	c.common.register(fs, def.Log, def.Registry)
	fs.StringVar(&c.flags.Coordinator, "coordinator", def.Coordinator, "Registry name of the coordinator")
	fs.StringVar(&c.flags.CoordinatorURL, "coordinator-url", defaultCoordinatorURL(),
		"Coordinator URL, skipping the registry (or JOBMESH_COORDINATOR_URL env)")

	root.AddCommand(
		c.newGCDCmd(),
		c.newPrimeCmd(),
		c.newBenchCmd(),
		c.newWatchCmd(),
		c.newNamesCmd(),
		c.newStatusCmd(),
	)
	// PersistentPostRunE is skipped when RunE fails, so each subcommand
	// closes the registry itself.
	for _, sub := range root.Commands() {
		if sub.RunE != nil {
			sub.RunE = c.closing(sub.RunE)
		}
	}
	return silence(root)
}

// registry opens the name registry on first use.
func (c *client) registry(ctx context.Context) (registry.Registry, error) {
	if c.reg != nil {
		return c.reg, nil
	}
	reg, closeReg, err := c.opts.openRegistry(ctx, c.cfg.Registry, c.logger)
	if err != nil {
		return nil, err
	}
	c.reg, c.closeReg = reg, closeReg
	return reg, nil
}

// coordinator resolves the coordinator's endpoint, directly or by name.
func (c *client) coordinator(ctx context.Context) (*rpc.CoordinatorClient, error) {
	if c.cfg.CoordinatorURL != "" {
		return rpc.NewCoordinatorClient(c.cfg.CoordinatorURL, nil), nil
	}
	reg, err := c.registry(ctx)
	if err != nil {
		return nil, err
	}
	endpoint, err := reg.Lookup(ctx, c.cfg.Coordinator)
	if err != nil {
		return nil, fmt.Errorf("unable to find coordinator %q: %w", c.cfg.Coordinator, err)
	}
	c.logger.Debug("coordinator resolved", zap.String("name", c.cfg.Coordinator), zap.String("endpoint", endpoint))
	return rpc.NewCoordinatorClient(endpoint, nil), nil
}

func (c *client) closing(run func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return closeAll(run(cmd, args), c.close)
	}
}

func (c *client) close() error {
	var err error
	if c.closeReg != nil {
		err = c.closeReg()
		c.reg, c.closeReg = nil, nil
	}
	if c.logger != nil {
		c.logger.Sync()
	}
	return err
}
