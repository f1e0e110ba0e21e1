// Package exec provides an abstraction over executing external commands.
// Short helper commands go through Run; long-running computational tools
// (mesh generators, solvers) go through Start, which hands back a Process
// whose combined output is streamed and which is always reaped.
package exec

import (
	"context"
	"io"
	"time"
)

// Result holds the output from a completed command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// RunOptions configures a run-to-completion command.
type RunOptions struct {
	Name   string   // binary name or path
	Args   []string
	Dir    string   // working directory; empty inherits the caller's
	Env    []string // extra KEY=VALUE entries appended to the environment
	Stdin  io.Reader
	Stdout io.Writer // when set, stdout streams here instead of into Result
	Stderr io.Writer // when set, stderr streams here instead of into Result
}

// StartOptions configures long-running command execution.
// Stdout and stderr share one pipe so observers see lines in the order the
// process produced them.
type StartOptions struct {
	Name string // binary name or path
	Args []string
	Dir  string   // working directory; empty inherits the caller's
	Env  []string // extra KEY=VALUE entries appended to the environment

	// GracePeriod bounds how long the process may linger after its context
	// is cancelled: cancellation sends SIGTERM, and the process is killed
	// once the grace period passes without an exit. Zero means no forced
	// kill.
	GracePeriod time.Duration
}

// Executor runs external commands.
//
//go:generate go run github.com/matryer/moq@latest -pkg mocks -out mocks/executor.go . Executor
type Executor interface {
	// Run executes a command to completion. Nonzero exits surface as
	// os/exec.ExitError (extract with errors.As); the exit code is also
	// on the Result.
	Run(ctx context.Context, opts RunOptions) (*Result, error)

	// Start launches a command without waiting for it. The returned
	// Process exposes the combined output stream; the caller must drain
	// it and then call Wait.
	Start(ctx context.Context, opts StartOptions) (*Process, error)

	// LookPath resolves a binary name against PATH.
	LookPath(name string) (string, error)
}
