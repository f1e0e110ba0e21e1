package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nextfoam/biprop/internal/job"
)

var meshCmd = &cobra.Command{
	Use:   "mesh [path]",
	Short: "Run mesh generation",
	Long: `Run the configured mesh generation tool in the current case, or in the
case at the given path.

The tool runs with the case directory as working directory; its output is
streamed here and recorded in the job log. At most one mesh job can be
active per case. ctrl+c cancels the run.`,
	Example: `  # Mesh the current case
  biprop mesh

  # Mesh a specific case
  biprop mesh ~/cases/thruster-v2`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var pathArg string
		if len(args) > 0 {
			pathArg = args[0]
		}
		argv := toolCommand(cmd.Context(), job.KindMesh)
		return runTool(cmd, pathArg, job.KindMesh, argv, "Generating mesh")
	},
}

func init() {
	rootCmd.AddCommand(meshCmd)
}
