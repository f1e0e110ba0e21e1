package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a running job",
	Long: `Request cancellation of a running job.

The job's process receives a termination signal and is killed if it has
not exited once the grace period passes. Cancelling a job that has
already finished has no effect.

Jobs run in the foreground of the command that started them; an
interactive run is normally cancelled with ctrl+c instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, err := requireController(cmd.Context())
		if err != nil {
			return err
		}

		if err := controller.Cancel(args[0]); err != nil {
			return fmt.Errorf("cancel job: %w", err)
		}

		fmt.Printf("Cancellation requested for job %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
