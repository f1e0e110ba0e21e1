package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var discardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Discard the current temporary case",
	Long: `Delete the current temporary case and its directory.

Only temporary cases can be discarded; running jobs are cancelled first.
When the case has unsaved changes a confirmation is asked unless --force
is given.`,
	Example: `  # Discard with confirmation when dirty
  biprop discard

  # Discard without asking
  biprop discard --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return fmt.Errorf("get force flag: %w", err)
		}

		sessions, err := requireSessions(cmd.Context())
		if err != nil {
			return err
		}

		sess, ok := sessions.Current()
		if !ok {
			return errors.New("no case is open; nothing to discard")
		}

		if sess.IsDirty && !force {
			prompter, promptErr := requirePrompter(cmd.Context())
			if promptErr != nil {
				return promptErr
			}
			confirmed, confirmErr := prompter.Confirm(
				"Discard case?",
				fmt.Sprintf("%s has unsaved changes that will be lost.", sess.Path),
			)
			if confirmErr != nil {
				return fmt.Errorf("confirm discard: %w", confirmErr)
			}
			if !confirmed {
				fmt.Println("Canceled")
				return nil
			}
		}

		if err := sessions.Discard(cmd.Context()); err != nil {
			return fmt.Errorf("discard case: %w", err)
		}

		fmt.Printf("Discarded temporary case %s\n", sess.Path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discardCmd)

	discardCmd.Flags().BoolP("force", "f", false, "skip confirmation prompt")
}
