package cli

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"jobmesh/internal/observer"
	"jobmesh/pkg/model"
)

func (c *client) newWatchCmd() *cobra.Command {
	var (
		listen    string
		advertise string
		ttl       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print coordinator events as they happen",
		Long: "watch subscribes to the coordinator's event stream and prints each " +
			"scheduled, started and finished message until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			coord, err := c.coordinator(ctx)
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return model.NewStartupError("watch", fmt.Errorf("listen %s: %w", listen, err))
			}
			callback := advertise
			if callback == "" {
				callback = "http://" + ln.Addr().String()
			}
			return observer.New(coord, callback, ttl, cmd.OutOrStdout(), c.logger).Serve(ctx, ln)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:0", "Address to receive events on")
	cmd.Flags().StringVar(&advertise, "advertise", "", "Callback URL given to the coordinator (default: the listen address)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Requested lease length (0 for the coordinator default)")
	return cmd
}
