package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextfoam/biprop/internal/job"
	"github.com/nextfoam/biprop/internal/spinner"
)

// runTool launches the configured external tool as a supervised job in
// the target case and streams its output until the job finishes. The
// command returns a nonzero exit only when the job fails; a cancel
// requested by the user is a clean exit.
func runTool(cmd *cobra.Command, pathArg string, kind job.Kind, argv []string, headline string) error {
	if len(argv) == 0 {
		return fmt.Errorf("no command configured for %s", kind)
	}

	ctx := cmd.Context()
	sess, err := ensureSession(ctx, pathArg)
	if err != nil {
		return err
	}

	controller, err := requireController(ctx)
	if err != nil {
		return err
	}

	// Plain tool names resolve through PATH; catch a missing tool before
	// a job slot is reserved. Names with a path separator resolve against
	// the case directory at spawn time and cannot be checked here.
	if argv[0] == filepath.Base(argv[0]) {
		executor, err := requireExecutor(ctx)
		if err != nil {
			return err
		}
		if _, err := executor.LookPath(argv[0]); err != nil {
			return fmt.Errorf("%s tool %q not found in PATH", kind, argv[0])
		}
	}

	// ctrl+c cancels the job (termination signal, then kill after the
	// grace period) instead of exiting with the process still running.
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	j, err := controller.Launch(runCtx, sess, kind, job.CommandSpec{
		Name: argv[0],
		Args: argv[1:],
	})
	if err != nil {
		var dup *job.DuplicateJobError
		if errors.As(err, &dup) {
			return fmt.Errorf("a %s job is already running for this case", kind)
		}
		return fmt.Errorf("launch %s: %w", kind, err)
	}

	fmt.Printf("Started %s job %s in %s\n", kind, j.ID(), sess.Path)

	if spinner.IsTTY(os.Stdout) {
		err = streamSpinner(controller, j, headline)
	} else {
		err = streamPlain(runCtx, j)
	}
	if err != nil {
		return err
	}

	// Wait on the original context: after a signal the job still needs to
	// land, and the grace period bounds how long that takes.
	if err := controller.Wait(ctx, j.ID()); err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}

	return reportOutcome(j)
}

// streamSpinner renders progress on an interactive terminal. The display
// shows only the newest line; the full stream is in the job log.
func streamSpinner(controller *job.Controller, j *job.Job, headline string) error {
	sp := spinner.New(headline, os.Stderr)

	progress, stopSub := j.Subscribe()
	defer stopSub()

	go func() {
		for ev := range progress {
			sp.Line(ev.Line)
		}
		sp.Stop()
	}()

	if err := sp.Start(); err != nil {
		return fmt.Errorf("render progress: %w", err)
	}

	// The display returning while the job is live means the user quit it
	// (ctrl+c is a key event in the raw-mode terminal); treat that as a
	// cancel request.
	if !j.State().Terminal() {
		if err := controller.Cancel(j.ID()); err != nil {
			return fmt.Errorf("cancel job: %w", err)
		}
	}
	return nil
}

// streamPlain copies progress lines to stdout for pipes and CI logs.
func streamPlain(ctx context.Context, j *job.Job) error {
	progress, stopSub := j.Subscribe()
	defer stopSub()

	for {
		select {
		case ev, ok := <-progress:
			if !ok {
				return nil
			}
			fmt.Println(ev.Line)
		case <-ctx.Done():
			// Cancellation is already propagating to the process; keep
			// draining so the tail of its output is not lost.
			for ev := range progress {
				fmt.Println(ev.Line)
			}
			return nil
		}
	}
}

// reportOutcome maps the job's terminal state to command output.
func reportOutcome(j *job.Job) error {
	switch j.State() {
	case job.StateSucceeded:
		fmt.Printf("Job %s succeeded\n", j.ID())
		return nil
	case job.StateCancelled:
		fmt.Printf("Job %s cancelled\n", j.ID())
		return nil
	case job.StateFailed:
		if err := j.Err(); err != nil {
			return fmt.Errorf("job %s failed: %w", j.ID(), err)
		}
		return fmt.Errorf("job %s failed", j.ID())
	default:
		return fmt.Errorf("job %s did not finish (state %s)", j.ID(), j.State())
	}
}

// toolCommand returns the configured argv for a job kind.
func toolCommand(ctx context.Context, kind job.Kind) []string {
	cfg := ConfigFromContext(ctx)
	if cfg == nil {
		return []string{"./Allrun"}
	}
	switch kind {
	case job.KindMesh:
		return cfg.Tools.Mesh
	case job.KindSolver:
		return cfg.Tools.Solve
	}
	return nil
}
