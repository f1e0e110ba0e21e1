package exec

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
)

// ErrNotStarted reports an operation on a process that never started.
var ErrNotStarted = errors.New("process not started")

// Process is a handle to a command launched with Start.
// The caller drains Output until EOF, then calls Wait. Wait is safe on
// every exit path: it closes the output pipe first, so a child blocked on
// a full pipe cannot stall the reap.
type Process struct {
	cmd *exec.Cmd
	out *os.File

	waitOnce sync.Once
	waitErr  error
	exitCode int
}

// PID returns the operating system process id.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Output returns the combined stdout/stderr stream.
// It reaches EOF when the process exits.
func (p *Process) Output() io.Reader {
	return p.out
}

// Signal sends sig to the process.
func (p *Process) Signal(sig os.Signal) error {
	if p.cmd.Process == nil {
		return ErrNotStarted
	}
	return p.cmd.Process.Signal(sig)
}

// Wait reaps the process and returns its exit code.
// Idempotent; concurrent callers all observe the first result. The exit
// code is -1 when the process was killed before exiting on its own.
func (p *Process) Wait() (int, error) {
	p.waitOnce.Do(func() {
		// Closing the read end first guarantees the child cannot block
		// forever on pipe writes if the caller stopped draining early.
		p.out.Close()

		p.waitErr = p.cmd.Wait()
		p.exitCode = -1
		if p.cmd.ProcessState != nil {
			p.exitCode = p.cmd.ProcessState.ExitCode()
		}
	})
	return p.exitCode, p.waitErr
}
