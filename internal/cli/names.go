package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *client) newNamesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "names",
		Short: "List the names bound in the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := c.registry(cmd.Context())
			if err != nil {
				return err
			}
			names, err := reg.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list names: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, n := range names {
				endpoint, err := reg.Lookup(cmd.Context(), n)
				if err != nil {
					// unbound since List
					continue
				}
				fmt.Fprintf(out, "%s\t%s\n", n, endpoint)
			}
			return nil
		},
	}
}
