package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextfoam/biprop/internal/joblog"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recorded job runs",
	Long: `List recorded job runs for the current case, newest first.

Every mesh and solver run leaves a log file under the data directory;
this lists them. Use 'biprop logs <job-id>' to inspect one.

Use --all to list runs across all cases.`,
	Example: `  # Runs for the current case
  biprop jobs

  # Runs for every case
  biprop jobs --all`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, err := cmd.Flags().GetBool("all")
		if err != nil {
			return fmt.Errorf("get all flag: %w", err)
		}

		logs, err := requireJobLogs(cmd.Context())
		if err != nil {
			return err
		}

		var rows []jobLogRow
		if all {
			rows, err = collectAllJobLogs(logs)
		} else {
			sess, sessErr := currentSession(cmd.Context())
			if sessErr != nil {
				return sessErr
			}
			rows, err = collectJobLogs(logs, sess.ID)
		}
		if err != nil {
			return fmt.Errorf("list job logs: %w", err)
		}

		if len(rows) == 0 {
			if all {
				fmt.Println("No job runs recorded")
			} else {
				fmt.Println("No job runs recorded for this case")
			}
			return nil
		}

		sort.Slice(rows, func(i, j int) bool { return rows[i].modTime.After(rows[j].modTime) })

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		if all {
			fmt.Fprintln(w, "JOB\tCASE\tUPDATED\tSIZE")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", r.jobID, r.caseID, r.modTime.Local().Format(time.DateTime), r.size)
			}
		} else {
			fmt.Fprintln(w, "JOB\tUPDATED\tSIZE")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%d\n", r.jobID, r.modTime.Local().Format(time.DateTime), r.size)
			}
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("flush output: %w", err)
		}
		return nil
	},
}

// jobLogRow is one recorded run, described by its log file.
type jobLogRow struct {
	caseID  string
	jobID   string
	modTime time.Time
	size    int64
}

func collectJobLogs(logs *joblog.PathManager, caseID string) ([]jobLogRow, error) {
	ids, err := logs.ListJobLogs(caseID)
	if err != nil {
		return nil, err
	}

	rows := make([]jobLogRow, 0, len(ids))
	for _, id := range ids {
		info, err := os.Stat(logs.JobLogPath(caseID, id))
		if err != nil {
			continue
		}
		rows = append(rows, jobLogRow{caseID: caseID, jobID: id, modTime: info.ModTime(), size: info.Size()})
	}
	return rows, nil
}

func collectAllJobLogs(logs *joblog.PathManager) ([]jobLogRow, error) {
	entries, err := os.ReadDir(logs.BaseDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var rows []jobLogRow
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		caseRows, err := collectJobLogs(logs, entry.Name())
		if err != nil {
			return nil, err
		}
		rows = append(rows, caseRows...)
	}
	return rows, nil
}

func init() {
	rootCmd.AddCommand(jobsCmd)

	jobsCmd.Flags().BoolP("all", "a", false, "list runs across all cases")
}
