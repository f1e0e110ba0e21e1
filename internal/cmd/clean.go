package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove abandoned temporary cases",
	Long: `Remove temporary case directories older than the retention window.

The same sweep runs automatically at startup; this command runs it on
demand and reports what it removed. The current case is never touched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		janitor, err := requireJanitor(cmd.Context())
		if err != nil {
			return err
		}

		removed := janitor.Sweep(cmd.Context())
		switch removed {
		case 0:
			fmt.Println("Nothing to remove")
		case 1:
			fmt.Println("Removed 1 abandoned temporary case")
		default:
			fmt.Printf("Removed %d abandoned temporary cases\n", removed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
