package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextfoam/biprop/internal/geometry"
	"github.com/nextfoam/biprop/internal/loader"
	"github.com/nextfoam/biprop/internal/manifest"
)

// caseGeometryDir is the subdirectory of a case that holds imported
// geometry files.
const caseGeometryDir = "geometry"

var geometryCmd = &cobra.Command{
	Use:   "geometry",
	Short: "Manage case geometry",
	Long: `Manage the geometry objects of the current case.

Imported STL files are copied into the case directory and registered in
the case manifest, so a saved case carries its geometry with it.`,
}

var geometryImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import an STL file into the current case",
	Long: `Decode the STL file (binary or ASCII), copy it into the case's geometry
directory, and register it in the case manifest.

The geometry name defaults to the file name without its extension.`,
	Example: `  # Import with the default name "nozzle"
  biprop geometry import ~/scans/nozzle.stl

  # Import under an explicit name
  biprop geometry import ~/scans/nozzle-v3.stl --name nozzle`,
	Args: cobra.ExactArgs(1),
	RunE: runGeometryImport,
}

var geometryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the geometry of the current case",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := currentSession(cmd.Context())
		if err != nil {
			return err
		}

		store, err := requireManifests(cmd.Context())
		if err != nil {
			return err
		}

		man, err := store.Load(cmd.Context(), sess.Path)
		if err != nil {
			return fmt.Errorf("read case manifest: %w", err)
		}

		if len(man.Geometries) == 0 {
			fmt.Println("No geometry registered")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tFILE\tVISIBLE")
		for _, g := range man.Geometries {
			fmt.Fprintf(w, "%s\t%s\t%s\n", g.Name, g.File, yesNo(g.Visible))
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("flush output: %w", err)
		}
		return nil
	},
}

var geometryRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a geometry from the current case",
	Long: `Remove the named geometry from the case manifest and delete its file.

The fluid region cannot be removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runGeometryRemove,
}

func runGeometryImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	src := args[0]

	name, err := cmd.Flags().GetString("name")
	if err != nil {
		return fmt.Errorf("get name flag: %w", err)
	}
	if name == "" {
		base := filepath.Base(src)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	sess, err := currentSession(ctx)
	if err != nil {
		return err
	}

	solid, err := decodeSTL(ctx, src)
	if err != nil {
		return err
	}

	relPath := filepath.Join(caseGeometryDir, name+".stl")
	destPath := filepath.Join(sess.Path, relPath)

	store, err := requireManifests(ctx)
	if err != nil {
		return err
	}
	man, err := store.Load(ctx, sess.Path)
	if err != nil {
		return fmt.Errorf("read case manifest: %w", err)
	}
	if err := man.AddGeometry(manifest.GeometryRecord{
		Name:    name,
		File:    filepath.ToSlash(relPath),
		Visible: true,
	}); err != nil {
		if errors.Is(err, manifest.ErrGeometryExists) {
			return fmt.Errorf("geometry %q already exists in this case", name)
		}
		return fmt.Errorf("add geometry: %w", err)
	}

	// Copy before the manifest write so a registered record always has
	// its file on disk.
	if err := copyIntoCase(src, destPath); err != nil {
		return fmt.Errorf("copy geometry file: %w", err)
	}
	if err := store.Save(ctx, sess.Path, man); err != nil {
		return fmt.Errorf("write case manifest: %w", err)
	}

	sessions, err := requireSessions(ctx)
	if err != nil {
		return err
	}
	if err := sessions.MarkDirty(); err != nil {
		return fmt.Errorf("mark case dirty: %w", err)
	}

	fmt.Printf("Imported geometry %s (%d triangles)\n", name, len(solid.Triangles))
	return nil
}

func runGeometryRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	sess, err := currentSession(ctx)
	if err != nil {
		return err
	}

	store, err := requireManifests(ctx)
	if err != nil {
		return err
	}
	man, err := store.Load(ctx, sess.Path)
	if err != nil {
		return fmt.Errorf("read case manifest: %w", err)
	}

	rec, _ := man.Geometry(name)
	if err := man.RemoveGeometry(name); err != nil {
		switch {
		case errors.Is(err, manifest.ErrProtectedGeometry):
			return fmt.Errorf("geometry %q is protected and cannot be removed", name)
		case errors.Is(err, manifest.ErrGeometryNotFound):
			return fmt.Errorf("geometry %q not found in this case", name)
		}
		return fmt.Errorf("remove geometry: %w", err)
	}
	if err := store.Save(ctx, sess.Path, man); err != nil {
		return fmt.Errorf("write case manifest: %w", err)
	}

	// The file is secondary to the manifest record; a failed delete only
	// leaves an orphan behind.
	if rec != nil && rec.File != "" {
		path := filepath.Join(sess.Path, filepath.FromSlash(rec.File))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to delete %s: %v\n", path, err)
		}
	}

	sessions, err := requireSessions(ctx)
	if err != nil {
		return err
	}
	if err := sessions.MarkDirty(); err != nil {
		return fmt.Errorf("mark case dirty: %w", err)
	}

	fmt.Printf("Removed geometry %s\n", name)
	return nil
}

// decodeSTL runs the STL decode on the loader pool and blocks for the
// terminal outcome.
func decodeSTL(ctx context.Context, path string) (*geometry.Solid, error) {
	ld, err := requireLoader(ctx)
	if err != nil {
		return nil, err
	}

	done := make(chan loader.Result, 1)
	ld.Load(path, func(data []byte) (any, error) {
		return geometry.Decode(data)
	}, func(res loader.Result) {
		done <- res
	})

	res := <-done
	switch res.Outcome {
	case loader.OutcomeCompleted:
		solid, ok := res.Value.(*geometry.Solid)
		if !ok {
			return nil, fmt.Errorf("unexpected decode result %T", res.Value)
		}
		return solid, nil
	case loader.OutcomeCancelled:
		return nil, fmt.Errorf("decode %s: cancelled", path)
	default:
		return nil, fmt.Errorf("decode %s: %w", path, res.Err)
	}
}

// copyIntoCase copies src to dest, creating parent directories.
func copyIntoCase(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return err
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func init() {
	rootCmd.AddCommand(geometryCmd)
	geometryCmd.AddCommand(geometryImportCmd)
	geometryCmd.AddCommand(geometryListCmd)
	geometryCmd.AddCommand(geometryRemoveCmd)

	geometryImportCmd.Flags().String("name", "", "geometry name (default: file name without extension)")
}
