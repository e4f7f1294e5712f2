package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *client) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the coordinator's queue and worker pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := c.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			st, err := coord.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Coordinator: %s\n", coord.BaseURL())
			fmt.Fprintf(out, "  Queued:      %d\n", st.Queued)
			for i, name := range st.Waiting {
				fmt.Fprintf(out, "    %d. %s\n", i+1, name)
			}
			fmt.Fprintf(out, "  Subscribers: %d\n", st.Subscribers)
			fmt.Fprintf(out, "  Workers:     %d\n", len(st.Workers))
			for _, w := range st.Workers {
				fmt.Fprintf(out, "    - %s: %s\n", w.Name, w.State)
			}
			return nil
		},
	}
}
