package joblog

import (
	"fmt"
	"os"
	"sync"
	"syscall"
)

// Writer appends job output to a log file. The combined stdout/stderr
// stream of a job is written line by line; the file holds the full stream
// even after in-memory progress buffers have evicted old lines.
//
// The writer holds an exclusive flock on the file until Close. Followers
// probe the lock to tell a live run from a finished one.
type Writer struct {
	mu   sync.Mutex
	file *os.File
}

// NewWriter creates a Writer for the given log file path and locks it.
// The file is created or truncated; job IDs are unique, so an existing
// file at the path is a leftover from a crashed run.
func NewWriter(path string) (*Writer, error) {
	//nolint:gosec // G304: path is constructed from trusted PathManager, not arbitrary user input
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	// Followers hold shared probes only momentarily, so this does not
	// wait on anything long-lived.
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		file.Close()
		return nil, fmt.Errorf("lock log file: %w", err)
	}
	return &Writer{file: file}, nil
}

// Write appends raw bytes to the log file.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	n, err := w.file.Write(p)
	if err != nil {
		return n, fmt.Errorf("write to log file: %w", err)
	}
	return n, nil
}

// WriteLine appends a single output line, adding the trailing newline.
func (w *Writer) WriteLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return os.ErrClosed
	}
	if _, err := w.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write to log file: %w", err)
	}
	return nil
}

// Sync flushes the log file to disk.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		return w.file.Sync()
	}
	return nil
}

// Close releases the run lock and closes the log file. Idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		syscall.Flock(int(w.file.Fd()), syscall.LOCK_UN) //nolint:errcheck // best-effort unlock
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("close log file: %w", err)
		}
		w.file = nil
	}
	return nil
}

// Path returns the path of the log file, or empty string after Close.
func (w *Writer) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		return w.file.Name()
	}
	return ""
}
