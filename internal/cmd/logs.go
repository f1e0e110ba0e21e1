package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextfoam/biprop/internal/joblog"
)

var logsCmd = &cobra.Command{
	Use:   "logs <job-id>",
	Short: "View output from a job run",
	Long: `View the recorded output of a job run in the current case.

Reads from the job's log file, so finished runs and runs started by other
invocations can be inspected alike. With --follow the log is streamed
until the run completes.`,
	Example: `  # Last 100 lines of a run
  biprop logs 3f8a91c2-77c1-4f0e-9f64-2d1a0c1b7e55

  # Follow a run in real-time
  biprop logs 3f8a91c2-77c1-4f0e-9f64-2d1a0c1b7e55 -f

  # Entire log from the start
  biprop logs 3f8a91c2-77c1-4f0e-9f64-2d1a0c1b7e55 --full`,
	Args: cobra.ExactArgs(1),
	RunE: runLogsCmd,
}

func runLogsCmd(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	follow, err := cmd.Flags().GetBool("follow")
	if err != nil {
		return fmt.Errorf("get follow flag: %w", err)
	}

	lines, err := cmd.Flags().GetInt("lines")
	if err != nil {
		return fmt.Errorf("get lines flag: %w", err)
	}

	full, err := cmd.Flags().GetBool("full")
	if err != nil {
		return fmt.Errorf("get full flag: %w", err)
	}

	sess, err := currentSession(cmd.Context())
	if err != nil {
		return err
	}

	pathMgr, err := requireJobLogs(cmd.Context())
	if err != nil {
		return err
	}
	reader := joblog.NewReader(pathMgr)

	if !pathMgr.LogExists(sess.ID, jobID) {
		return fmt.Errorf("no log found for job %s (see 'biprop jobs')", jobID)
	}

	return outputLogs(cmd.Context(), reader, sess.ID, jobID, follow, lines, full)
}

func outputLogs(ctx context.Context, reader *joblog.Reader, caseID, jobID string, follow bool, lines int, full bool) error {
	if follow {
		return reader.Follow(ctx, caseID, jobID, os.Stdout, joblog.FollowOptions{
			History:   lines,
			FromStart: full,
		})
	}

	// Read mode: show lines and exit
	var logLines []string
	var err error

	if full {
		logLines, err = reader.ReadAll(caseID, jobID)
	} else {
		logLines, err = reader.ReadLastN(caseID, jobID, lines)
	}

	if err != nil {
		return fmt.Errorf("read log: %w", err)
	}

	for _, line := range logLines {
		fmt.Println(line)
	}

	return nil
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().BoolP("follow", "f", false, "stream log output until the run finishes")
	logsCmd.Flags().IntP("lines", "n", joblog.DefaultTailLines, "number of lines to show")
	logsCmd.Flags().Bool("full", false, "show entire log from the start of the run")
}
