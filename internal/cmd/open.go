package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open <path>",
	Short: "Open an existing case directory",
	Long: `Open the case directory at the given path and make it the current case.

The directory must contain a case manifest; directories created outside
biprop are rejected. Opening a case replaces the current one, cancelling
any jobs still running in it. When the current case has unsaved changes
you are asked what to do with them unless --force is given.`,
	Example: `  # Open a saved case
  biprop open ~/cases/thruster-v2

  # Reopen a temporary case by path
  biprop open ~/.local/share/biprop/temp/temp_20260824_101500`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		proceed, err := guardReplace(cmd)
		if err != nil {
			return err
		}
		if !proceed {
			fmt.Println("Canceled")
			return nil
		}

		sessions, err := requireSessions(cmd.Context())
		if err != nil {
			return err
		}

		sess, err := sessions.OpenExisting(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("open case: %w", err)
		}

		kind := "case"
		if sess.IsTemporary {
			kind = "temporary case"
		}
		fmt.Printf("Opened %s %s\n", kind, sess.Path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(openCmd)

	openCmd.Flags().BoolP("force", "f", false, "replace the current case without asking")
}
