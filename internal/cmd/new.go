package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a new temporary case",
	Long: `Create a new temporary case from the base template.

The case directory is created under the temp root with a timestamped name
and becomes the current case. Temporary cases that are never saved are
removed automatically after the retention window. When the current case
has unsaved changes you are asked what to do with them unless --force is
given.`,
	Example: `  # Create a fresh case and start working
  biprop new
  biprop mesh`,
	Args: cobra.NoArgs,
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

		sess, err := sessions.CreateTemp(cmd.Context())
		if err != nil {
			return fmt.Errorf("create case: %w", err)
		}

		fmt.Printf("Created temporary case %s\n", sess.Path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(newCmd)

	newCmd.Flags().BoolP("force", "f", false, "replace the current case without asking")
}
