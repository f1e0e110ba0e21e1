package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	lockTimeout = 5 * time.Second
	fileMode    = 0644
)

// Store reads and writes case manifests. Writes are atomic (temp file +
// rename) and guarded by an advisory flock so a GUI and a CLI invocation
// touching the same case do not interleave.
type Store struct {
	clock clockwork.Clock
}

// NewStore creates a manifest store.
func NewStore(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{clock: clock}
}

// Path returns the manifest path for a case directory.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// IsCase reports whether dir carries a manifest file.
func IsCase(dir string) bool {
	info, err := os.Stat(Path(dir))
	return err == nil && info.Mode().IsRegular()
}

// Load reads the manifest of the case at dir.
// Returns ErrNotFound if the directory has no manifest.
func (s *Store) Load(ctx context.Context, dir string) (*Manifest, error) {
	path := Path(dir)

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer s.unlockAndClose(file)

	if err := s.acquireLock(ctx, file, syscall.LOCK_SH); err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.NewDecoder(file).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	return &m, nil
}

// Save writes the manifest into the case at dir, stamping Modified.
// The write is atomic: encode to a temp file, then rename over the manifest.
func (s *Store) Save(ctx context.Context, dir string, m *Manifest) error {
	path := Path(dir)

	// Hold the lock on the manifest path for the whole write so concurrent
	// savers serialize even though the rename swaps the inode.
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, fileMode)
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	defer s.unlockAndClose(file)

	if err := s.acquireLock(ctx, file, syscall.LOCK_EX); err != nil {
		return err
	}

	m.Version = 1
	m.Modified = s.clock.Now().UTC()

	tmp, err := os.CreateTemp(dir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(m); err != nil {
		tmp.Close()
		return fmt.Errorf("encode manifest: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp manifest: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename manifest: %w", err)
	}

	tmpPath = "" // Prevent cleanup
	return nil
}

// acquireLock attempts to acquire a file lock with timeout.
func (s *Store) acquireLock(ctx context.Context, file *os.File, lockType int) error {
	deadline := s.clock.Now().Add(lockTimeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := syscall.Flock(int(file.Fd()), lockType|syscall.LOCK_NB)
		if err == nil {
			return nil
		}

		if err != syscall.EWOULDBLOCK {
			return fmt.Errorf("acquire manifest lock: %w", err)
		}

		if s.clock.Now().After(deadline) {
			return ErrLockTimeout
		}

		s.clock.Sleep(10 * time.Millisecond)
	}
}

// unlockAndClose releases the lock and closes the file.
func (s *Store) unlockAndClose(file *os.File) {
	syscall.Flock(int(file.Fd()), syscall.LOCK_UN) //nolint:errcheck // best-effort unlock
	file.Close()
}
