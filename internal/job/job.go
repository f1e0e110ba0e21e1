// Package job wraps external computational tools (mesh generation,
// solver runs) as cancellable, observable jobs. The Registry enforces
// at most one active job per case and kind and keeps a bounded history
// of finished ones; the Controller spawns the processes, streams their
// output as ordered progress events, and maps exits onto the job state
// machine.
package job

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/nextfoam/biprop/internal/fifo"
)

// Sentinel errors for job operations.
var (
	ErrJobNotFound       = errors.New("job not found")
	ErrDuplicateJob      = errors.New("a job of this kind is already active for the case")
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// DuplicateJobError reports a reservation attempt while a job of the
// same kind is still active for the case.
type DuplicateJobError struct {
	CaseID string
	Kind   Kind
}

func (e *DuplicateJobError) Error() string {
	return fmt.Sprintf("a %s job is already active for case %s", e.Kind, e.CaseID)
}

func (e *DuplicateJobError) Unwrap() error {
	return ErrDuplicateJob
}

// LaunchError reports a command that could not be spawned.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching %s: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ProcessFailure reports a process that ran but exited unsuccessfully.
type ProcessFailure struct {
	ExitCode int
}

func (e *ProcessFailure) Error() string {
	return fmt.Sprintf("process exited with code %d", e.ExitCode)
}

// Kind identifies the class of work a job performs.
type Kind string

// Job kinds.
const (
	KindMesh   Kind = "mesh-generation"
	KindSolver Kind = "solver-run"
	KindOther  Kind = "other"
)

// State represents the job lifecycle state.
type State string

// Job state constants.
const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

// validTransition reports whether the state machine permits from -> to.
// Pending may fail or be cancelled without ever running (unspawnable
// command, cancel before start); terminal states are immutable.
func validTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateRunning || to == StateFailed || to == StateCancelled
	case StateRunning:
		return to.Terminal()
	}
	return false
}

// ProgressEvent is one output line from a running job.
type ProgressEvent struct {
	Line string
	Time time.Time
}

// Job is a single launch of an external computational process. Fields
// are mutated only by the registry and controller; readers use the
// accessor methods, which are safe for concurrent use.
type Job struct {
	id     string
	kind   Kind
	caseID string
	clock  clockwork.Clock

	mu        sync.Mutex
	state     State
	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time
	pid       int
	exitCode  int
	hasExit   bool
	err       error
	progress  *progressRing
	subs      []*fifo.Queue[ProgressEvent]
	done      chan struct{}
}

func newJob(clock clockwork.Clock, caseID string, kind Kind, progressCap int) *Job {
	return &Job{
		id:        uuid.NewString(),
		kind:      kind,
		caseID:    caseID,
		clock:     clock,
		state:     StatePending,
		createdAt: clock.Now().UTC(),
		progress:  newProgressRing(progressCap),
		done:      make(chan struct{}),
	}
}

// ID returns the unique job identifier.
func (j *Job) ID() string { return j.id }

// Kind returns the class of work the job performs.
func (j *Job) Kind() Kind { return j.kind }

// CaseID returns the id of the case the job runs in.
func (j *Job) CaseID() string { return j.caseID }

// State returns the current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// CreatedAt returns when the job was reserved.
func (j *Job) CreatedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.createdAt
}

// StartedAt returns when the process started running, or the zero time
// if it never did.
func (j *Job) StartedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.startedAt
}

// EndedAt returns when the job reached a terminal state, or the zero
// time if it has not yet.
func (j *Job) EndedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.endedAt
}

// PID returns the operating system process id, or zero before Running.
func (j *Job) PID() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.pid
}

// ExitCode returns the process exit code. The second return is false
// when the process never exited on its own (not spawned, or killed).
func (j *Job) ExitCode() (int, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.exitCode, j.hasExit
}

// Err returns the terminal error: a ProcessFailure for a nonzero exit,
// a LaunchError for a command that never spawned, nil otherwise.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Done returns a channel closed once the job is terminal.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Progress returns the retained tail of the job's progress events in
// stream order. The full stream is in the job log file.
func (j *Job) Progress() []ProgressEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress.snapshot()
}

// Subscribe returns a lossless, ordered stream of the job's progress
// events, beginning with the retained history. The channel closes once
// the job is terminal and the stream is drained. The stop function
// releases the subscription early and is safe to call more than once.
func (j *Job) Subscribe() (<-chan ProgressEvent, func()) {
	q := fifo.New[ProgressEvent]()
	out := make(chan ProgressEvent)
	stop := make(chan struct{})

	j.mu.Lock()
	for _, ev := range j.progress.snapshot() {
		q.Push(ev)
	}
	if j.state.Terminal() {
		q.Close()
	} else {
		j.subs = append(j.subs, q)
	}
	j.mu.Unlock()

	go func() {
		defer close(out)
		for {
			ev, ok := q.Pop()
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-stop:
				return
			}
		}
	}()

	var once sync.Once
	stopFn := func() {
		once.Do(func() {
			j.mu.Lock()
			for i, sub := range j.subs {
				if sub == q {
					j.subs = append(j.subs[:i], j.subs[i+1:]...)
					break
				}
			}
			j.mu.Unlock()
			close(stop)
			q.Close()
		})
	}
	return out, stopFn
}

// markRunning transitions the job to Running and records the pid.
func (j *Job) markRunning(pid int) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !validTransition(j.state, StateRunning) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.state, StateRunning)
	}
	j.state = StateRunning
	j.startedAt = j.clock.Now().UTC()
	j.pid = pid
	return nil
}

// finish transitions the job to a terminal state, records the outcome,
// and closes the done channel and all progress subscriptions.
func (j *Job) finish(to State, exitCode int, hasExit bool, cause error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !to.Terminal() || !validTransition(j.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.state, to)
	}
	j.state = to
	j.endedAt = j.clock.Now().UTC()
	j.exitCode = exitCode
	j.hasExit = hasExit
	j.err = cause
	for _, q := range j.subs {
		q.Close()
	}
	j.subs = nil
	close(j.done)
	return nil
}

// appendProgress records one output line and fans it out to the open
// subscriptions. Push never blocks, so a slow subscriber cannot stall
// the stream reader.
func (j *Job) appendProgress(line string) {
	ev := ProgressEvent{Line: line, Time: j.clock.Now().UTC()}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress.add(ev)
	for _, q := range j.subs {
		q.Push(ev)
	}
}

// progressRing retains the newest events up to a fixed capacity.
type progressRing struct {
	buf   []ProgressEvent
	start int
	count int
}

func newProgressRing(capacity int) *progressRing {
	if capacity <= 0 {
		capacity = DefaultProgressBuffer
	}
	return &progressRing{buf: make([]ProgressEvent, capacity)}
}

func (r *progressRing) add(ev ProgressEvent) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = ev
		r.count++
		return
	}
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
}

func (r *progressRing) snapshot() []ProgressEvent {
	out := make([]ProgressEvent, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
