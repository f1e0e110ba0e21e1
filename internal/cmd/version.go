package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextfoam/biprop/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the biprop version",
	Long:  `Print the version, commit, and build date of this biprop binary.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		v, commit, date := version.Resolve()
		fmt.Printf("biprop %s (commit %s, built %s)\n", v, commit, date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
