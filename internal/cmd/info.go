package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the current case",
	Long: `Show the current case: its id, directory, whether it is temporary,
and whether it carries unsaved changes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := currentSession(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "ID\t%s\n", sess.ID)
		fmt.Fprintf(w, "Path\t%s\n", sess.Path)
		fmt.Fprintf(w, "Temporary\t%s\n", yesNo(sess.IsTemporary))
		fmt.Fprintf(w, "Unsaved changes\t%s\n", yesNo(sess.IsDirty))
		if !sess.CreatedAt.IsZero() {
			fmt.Fprintf(w, "Created\t%s\n", sess.CreatedAt.Local().Format(time.DateTime))
		}

		// The manifest adds the description and geometry inventory; a
		// manifest that fails to read is reported but does not fail info.
		if store, storeErr := requireManifests(cmd.Context()); storeErr == nil {
			if man, loadErr := store.Load(cmd.Context(), sess.Path); loadErr == nil {
				if man.Description != "" {
					fmt.Fprintf(w, "Description\t%s\n", man.Description)
				}
				fmt.Fprintf(w, "Geometries\t%d\n", len(man.Geometries))
			} else {
				fmt.Fprintf(w, "Manifest\tunreadable: %v\n", loadErr)
			}
		}

		if err := w.Flush(); err != nil {
			return fmt.Errorf("flush output: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
