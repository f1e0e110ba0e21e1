package joblog

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"
)

const (
	// DefaultTailLines is how many lines log reads return when the
	// caller does not ask for a specific count.
	DefaultTailLines = 100

	// DefaultPollInterval is the cadence at which Follow checks a live
	// log for new output.
	DefaultPollInterval = 100 * time.Millisecond

	// tailChunk is the block size of the backwards scan that locates
	// the last n lines. Solver logs grow large; the scan touches only
	// the end of the file.
	tailChunk = 8 * 1024
)

// Reader reads job logs, including logs of runs started by other
// invocations.
type Reader struct {
	paths *PathManager
}

// NewReader creates a Reader over the given log tree.
func NewReader(paths *PathManager) *Reader {
	return &Reader{paths: paths}
}

// ReadAll returns every line of a job's log.
func (r *Reader) ReadAll(caseID, jobID string) ([]string, error) {
	//nolint:gosec // G304: path comes from the PathManager, not user input
	data, err := os.ReadFile(r.paths.JobLogPath(caseID, jobID))
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return splitLines(data), nil
}

// ReadLastN returns the last n lines of a job's log.
// n <= 0 means DefaultTailLines.
func (r *Reader) ReadLastN(caseID, jobID string, n int) ([]string, error) {
	if n <= 0 {
		n = DefaultTailLines
	}

	//nolint:gosec // G304: path comes from the PathManager, not user input
	file, err := os.Open(r.paths.JobLogPath(caseID, jobID))
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log: %w", err)
	}
	start, err := tailOffset(file, info.Size(), n)
	if err != nil {
		return nil, err
	}

	if _, err := file.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek log: %w", err)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return splitLines(data), nil
}

// FollowOptions adjusts how Follow replays and streams a log.
type FollowOptions struct {
	// History is how many existing lines to replay before streaming
	// new output. <= 0 means DefaultTailLines.
	History int

	// FromStart replays the whole log instead of the last History lines.
	FromStart bool

	// Interval is the poll cadence. <= 0 means DefaultPollInterval.
	Interval time.Duration
}

// Follow writes the tail of a job's log to out and keeps streaming as
// the run appends to it. It returns nil once the run has finished and
// the log is drained, or ctx.Err() when the context ends first. The end
// of the run is detected through the writer's lock on the log file, so
// a run started by another invocation can be followed to completion.
func (r *Reader) Follow(ctx context.Context, caseID, jobID string, out io.Writer, opts FollowOptions) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	//nolint:gosec // G304: path comes from the PathManager, not user input
	file, err := os.Open(r.paths.JobLogPath(caseID, jobID))
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	// History is replayed from the same handle that streams the live
	// tail, so no line can fall between the two.
	if !opts.FromStart {
		n := opts.History
		if n <= 0 {
			n = DefaultTailLines
		}
		info, err := file.Stat()
		if err != nil {
			return fmt.Errorf("stat log: %w", err)
		}
		start, err := tailOffset(file, info.Size(), n)
		if err != nil {
			return err
		}
		if _, err := file.Seek(start, io.SeekStart); err != nil {
			return fmt.Errorf("seek log: %w", err)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		copied, err := io.Copy(out, file)
		if err != nil {
			return fmt.Errorf("stream log: %w", err)
		}
		if copied == 0 && runFinished(file) {
			// Catch anything written between the copy and the probe.
			if _, err := io.Copy(out, file); err != nil {
				return fmt.Errorf("stream log: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runFinished reports whether the run writing this log has released its
// lock. A shared probe succeeds only once the writer closed the file.
func runFinished(file *os.File) bool {
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_SH|syscall.LOCK_NB); err != nil {
		return false
	}
	syscall.Flock(int(file.Fd()), syscall.LOCK_UN) //nolint:errcheck // best-effort unlock
	return true
}

// tailOffset returns the offset at which the last n lines begin,
// scanning backwards in chunks from the end of the file.
func tailOffset(file io.ReaderAt, size int64, n int) (int64, error) {
	if size == 0 {
		return 0, nil
	}

	end := size
	// A trailing newline closes the last line rather than opening a
	// new one.
	last := make([]byte, 1)
	if _, err := file.ReadAt(last, size-1); err != nil {
		return 0, fmt.Errorf("read log: %w", err)
	}
	if last[0] == '\n' {
		end--
	}

	buf := make([]byte, tailChunk)
	seen := 0
	for off := end; off > 0; {
		chunk := int64(len(buf))
		if off < chunk {
			chunk = off
		}
		off -= chunk
		if _, err := file.ReadAt(buf[:chunk], off); err != nil {
			return 0, fmt.Errorf("read log: %w", err)
		}
		for i := int(chunk) - 1; i >= 0; i-- {
			if buf[i] != '\n' {
				continue
			}
			seen++
			if seen == n {
				return off + int64(i) + 1, nil
			}
		}
	}
	return 0, nil
}

// splitLines splits log data into lines, dropping the empty segment a
// trailing newline would produce.
func splitLines(data []byte) []string {
	s := strings.TrimSuffix(string(data), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
