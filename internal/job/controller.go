package job

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nextfoam/biprop/internal/events"
	"github.com/nextfoam/biprop/internal/exec"
	"github.com/nextfoam/biprop/internal/joblog"
	"github.com/nextfoam/biprop/internal/session"
	"github.com/nextfoam/biprop/internal/slogger"
)

// DefaultGracePeriod bounds how long a cancelled process may linger
// between the termination signal and the forced kill.
const DefaultGracePeriod = 5 * time.Second

// maxProgressLine caps a single output line; longer ones abort the scan.
const maxProgressLine = 1024 * 1024

// CommandSpec describes the external command a job runs. Name and Args
// form the argv; Env entries are appended to the inherited environment.
type CommandSpec struct {
	Name string
	Args []string
	Env  []string
}

// dirtyMarker records that a finished job mutated the case directory.
type dirtyMarker interface {
	MarkDirty() error
}

// ControllerConfig configures process supervision.
type ControllerConfig struct {
	GracePeriod time.Duration // SIGTERM to SIGKILL window (default 5s)
}

// Controller launches external computational processes as jobs and
// supervises them. One reader goroutine per job drains the combined
// output stream, so progress reaches subscribers and the job log in the
// order the process wrote it.
type Controller struct {
	registry *Registry
	executor exec.Executor
	logs     *joblog.PathManager
	bus      events.Bus
	clock    clockwork.Clock
	grace    time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	marker  dirtyMarker
}

// NewController creates a controller. The registry tracks the jobs, the
// executor spawns them, and every progress line is teed to a log file
// under the path manager's tree.
func NewController(registry *Registry, executor exec.Executor, logs *joblog.PathManager, bus events.Bus, clock clockwork.Clock, config ControllerConfig) *Controller {
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultGracePeriod
	}
	return &Controller{
		registry: registry,
		executor: executor,
		logs:     logs,
		bus:      bus,
		clock:    clock,
		grace:    config.GracePeriod,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// SetDirtyMarker wires the session manager in after both exist. A
// succeeding job marks the session dirty because the case directory
// changed.
func (c *Controller) SetDirtyMarker(m dirtyMarker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marker = m
}

// Launch reserves a (case, kind) slot, spawns spec with the session's
// directory as working directory, and supervises the process in the
// background. A command that cannot be spawned fails the job with a
// LaunchError; such a job never reaches Running.
func (c *Controller) Launch(ctx context.Context, sess session.Session, kind Kind, spec CommandSpec) (*Job, error) {
	if spec.Name == "" {
		return nil, errors.New("command name is required")
	}

	j, err := c.registry.TryReserve(sess.ID, kind)
	if err != nil {
		return nil, err
	}
	c.publishState(j)

	logPath, err := c.logs.EnsureJobLog(sess.ID, j.ID())
	if err != nil {
		return nil, c.failLaunch(ctx, j, fmt.Errorf("create job log: %w", err))
	}
	logWriter, err := joblog.NewWriter(logPath)
	if err != nil {
		return nil, c.failLaunch(ctx, j, fmt.Errorf("open job log: %w", err))
	}

	jobCtx, cancel := context.WithCancel(ctx)
	proc, err := c.executor.Start(jobCtx, exec.StartOptions{
		Name:        spec.Name,
		Args:        spec.Args,
		Dir:         sess.Path,
		Env:         spec.Env,
		GracePeriod: c.grace,
	})
	if err != nil {
		cancel()
		_ = logWriter.Close() //nolint:errcheck // best-effort cleanup
		return nil, c.failLaunch(ctx, j, &LaunchError{Command: spec.Name, Err: err})
	}

	if err := j.markRunning(proc.PID()); err != nil {
		// Nothing else can touch a job between reserve and start.
		slogger.FromContext(ctx).Error("mark job running", "job", j.ID(), "error", err)
	}

	c.mu.Lock()
	c.cancels[j.ID()] = cancel
	c.mu.Unlock()

	c.publishState(j)

	slogger.FromContext(ctx).Debug("job started",
		"job", j.ID(),
		"kind", kind,
		"case", sess.ID,
		"pid", proc.PID(),
		"command", spec.Name,
	)

	go c.supervise(jobCtx, j, proc, logWriter)

	return j, nil
}

// Cancel requests cancellation of a job: the process receives SIGTERM
// and is killed once the grace period passes without an exit.
// Cancelling a job that is already terminal is a no-op.
func (c *Controller) Cancel(jobID string) error {
	c.mu.Lock()
	cancel, ok := c.cancels[jobID]
	c.mu.Unlock()

	if ok {
		cancel()
		return nil
	}
	if _, found := c.registry.Get(jobID); !found {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return nil
}

// Wait blocks until the job reaches a terminal state or ctx ends.
func (c *Controller) Wait(ctx context.Context, jobID string) error {
	j, found := c.registry.Get(jobID)
	if !found {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	select {
	case <-j.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelForCase force-cancels every active job of a case and waits for
// each to reach a terminal state. The session manager calls this before
// a case directory is discarded or the session repointed.
func (c *Controller) CancelForCase(ctx context.Context, caseID string) error {
	jobs := c.registry.ActiveForCase(caseID)
	for _, j := range jobs {
		if err := c.Cancel(j.ID()); err != nil && !errors.Is(err, ErrJobNotFound) {
			return err
		}
	}
	for _, j := range jobs {
		if err := c.Wait(ctx, j.ID()); err != nil && !errors.Is(err, ErrJobNotFound) {
			return err
		}
	}
	return nil
}

// supervise drains the process output into the job's progress stream
// and the log file, reaps the process, and lands the job in its
// terminal state.
func (c *Controller) supervise(ctx context.Context, j *Job, proc *exec.Process, logWriter *joblog.Writer) {
	log := slogger.FromContext(ctx)

	scanner := bufio.NewScanner(proc.Output())
	scanner.Buffer(make([]byte, 0, 64*1024), maxProgressLine)
	for scanner.Scan() {
		line := scanner.Text()
		j.appendProgress(line)
		if err := logWriter.WriteLine(line); err != nil {
			log.Warn("write job log", "job", j.ID(), "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Debug("job output stream ended early", "job", j.ID(), "error", err)
	}

	code, waitErr := proc.Wait()
	if err := logWriter.Close(); err != nil {
		log.Warn("close job log", "job", j.ID(), "error", err)
	}

	// A cancelled job lands Cancelled regardless of how the process
	// exited during the grace period.
	var state State
	var cause error
	switch {
	case ctx.Err() != nil:
		state = StateCancelled
	case waitErr == nil && code == 0:
		state = StateSucceeded
	case code != 0:
		state = StateFailed
		cause = &ProcessFailure{ExitCode: code}
	default:
		state = StateFailed
		cause = fmt.Errorf("wait for process: %w", waitErr)
	}

	if err := j.finish(state, code, code >= 0, cause); err != nil {
		log.Error("finish job", "job", j.ID(), "state", state, "error", err)
	}
	c.registry.Release(j)

	c.mu.Lock()
	delete(c.cancels, j.ID())
	c.mu.Unlock()

	c.publishState(j)

	if state == StateSucceeded {
		c.markCaseDirty(ctx, j)
	}

	log.Debug("job finished",
		"job", j.ID(),
		"kind", j.Kind(),
		"case", j.CaseID(),
		"state", state,
		"exit", code,
	)
}

// failLaunch lands a job that never spawned in Failed and surfaces the
// cause to the caller.
func (c *Controller) failLaunch(ctx context.Context, j *Job, cause error) error {
	if err := j.finish(StateFailed, 0, false, cause); err != nil {
		slogger.FromContext(ctx).Error("fail unspawned job", "job", j.ID(), "error", err)
	}
	c.registry.Release(j)
	c.publishState(j)
	return cause
}

func (c *Controller) markCaseDirty(ctx context.Context, j *Job) {
	c.mu.Lock()
	marker := c.marker
	c.mu.Unlock()
	if marker == nil {
		return
	}
	// The session may have been replaced or discarded since the job
	// started; that is not an error worth surfacing.
	if err := marker.MarkDirty(); err != nil {
		slogger.FromContext(ctx).Debug("mark session dirty", "job", j.ID(), "error", err)
	}
}

func (c *Controller) publishState(j *Job) {
	c.bus.Publish(events.Event{
		Type:    events.EventTypeJobState,
		CaseID:  j.CaseID(),
		JobID:   j.ID(),
		Payload: j.State(),
	})
}
