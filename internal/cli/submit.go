package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"jobmesh/pkg/model"
)

func (c *client) newGCDCmd() *cobra.Command {
	var retry bool
	cmd := &cobra.Command{
		Use:   "gcd <name> <x> <y>",
		Short: "Compute the greatest common divisor of two integers",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.submit(cmd, model.NewGCDJob(args[0], args[1], args[2]), retry)
		},
	}
	cmd.Flags().BoolVar(&retry, "retry", false, "Mark the submission as a retry (no scheduled event)")
	return cmd
}

func (c *client) newPrimeCmd() *cobra.Command {
	var retry bool
	cmd := &cobra.Command{
		Use:   "prime <name> <x>",
		Short: "Test an integer for primality",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.submit(cmd, model.NewPrimalityJob(args[0], args[1]), retry)
		},
	}
	cmd.Flags().BoolVar(&retry, "retry", false, "Mark the submission as a retry (no scheduled event)")
	return cmd
}

// submit validates locally so bad operands never reach the coordinator, then
// blocks until the result is back and prints it.
func (c *client) submit(cmd *cobra.Command, job *model.Job, retry bool) error {
	if err := job.Validate(); err != nil {
		return err
	}
	coord, err := c.coordinator(cmd.Context())
	if err != nil {
		return err
	}
	done, err := coord.SubmitAndRun(cmd.Context(), job, retry)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), done.Result)
	return nil
}
