package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var saveCmd = &cobra.Command{
	Use:   "save <path>",
	Short: "Save the current case to a new location",
	Long: `Copy the current case to the given path.

Saving a temporary case makes it permanent: the current case moves to the
destination and the old temp directory is left for cleanup. Saving an
already-saved case writes a copy and keeps working in the original.

The destination must not exist.`,
	Example: `  # Keep a temporary case
  biprop save ~/cases/thruster-v2

  # Snapshot a saved case before a risky change
  biprop save ~/cases/thruster-v2-backup`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := requireSessions(cmd.Context())
		if err != nil {
			return err
		}

		before, err := currentSession(cmd.Context())
		if err != nil {
			return err
		}

		sess, err := sessions.SaveAs(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("save case: %w", err)
		}

		if before.IsTemporary {
			fmt.Printf("Saved case to %s\n", sess.Path)
		} else {
			fmt.Printf("Copied case to %s (still working in %s)\n", args[0], sess.Path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(saveCmd)
}
