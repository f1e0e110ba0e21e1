package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nextfoam/biprop/internal/job"
)

var solveCmd = &cobra.Command{
	Use:   "solve [path]",
	Short: "Run the solver",
	Long: `Run the configured solver in the current case, or in the case at the
given path.

The solver runs with the case directory as working directory; its output
is streamed here and recorded in the job log. At most one solver job can
be active per case, but a solver and a mesh job may overlap. ctrl+c
cancels the run.`,
	Example: `  # Solve the current case
  biprop solve

  # Solve a specific case
  biprop solve ~/cases/thruster-v2`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var pathArg string
		if len(args) > 0 {
			pathArg = args[0]
		}
		argv := toolCommand(cmd.Context(), job.KindSolver)
		return runTool(cmd, pathArg, job.KindSolver, argv, "Running solver")
	},
}

func init() {
	rootCmd.AddCommand(solveCmd)
}
