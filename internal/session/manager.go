package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/nextfoam/biprop/internal/events"
	"github.com/nextfoam/biprop/internal/manifest"
	"github.com/nextfoam/biprop/internal/slogger"
)

// pointerFile records the current session path under the data dir so
// consecutive CLI invocations share the session.
const pointerFile = "current"

// jobCanceller is the internal interface for stopping a case's jobs
// before its directory is removed or the session repointed.
type jobCanceller interface {
	CancelForCase(ctx context.Context, caseID string) error
}

// ManagerConfig configures the Manager. All paths must be absolute.
type ManagerConfig struct {
	DataDir  string // Holds the current-session pointer (e.g. ~/.local/share/biprop)
	TempDir  string // Root for temporary case directories
	Template string // Base template tree copied into every new temp case
}

// Manager owns the current session (at most one) and its operations.
type Manager struct {
	mu       sync.Mutex
	store    *manifest.Store
	bus      events.Bus
	clock    clockwork.Clock
	jobs     jobCanceller
	dataDir  string
	tempDir  string
	template string
	current  *Session
}

// NewManager creates a new session manager.
func NewManager(store *manifest.Store, bus events.Bus, clock clockwork.Clock, cfg ManagerConfig) *Manager {
	return &Manager{
		store:    store,
		bus:      bus,
		clock:    clock,
		dataDir:  filepath.Clean(cfg.DataDir),
		tempDir:  filepath.Clean(cfg.TempDir),
		template: filepath.Clean(cfg.Template),
	}
}

// SetJobCanceller wires the execution controller in after both exist.
// Until set, discard and replace skip the force-cancel step.
func (m *Manager) SetJobCanceller(c jobCanceller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = c
}

// Current returns a snapshot of the current session.
func (m *Manager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return Session{}, false
	}
	return *m.current, true
}

// CreateTemp creates a fresh temporary case: a uniquely named directory
// under the temp root populated by a recursive copy of the base template
// plus a new manifest. The new session replaces the current one.
// Partially created directories are removed on failure.
func (m *Manager) CreateTemp(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := os.Stat(m.template)
	if err != nil {
		return Session{}, &IOError{Op: "read template", Err: err}
	}
	if !info.IsDir() {
		return Session{}, &IOError{Op: "read template", Err: fmt.Errorf("%s is not a directory", m.template)}
	}

	if err := os.MkdirAll(m.tempDir, 0o750); err != nil {
		return Session{}, &IOError{Op: "create temp root", Err: err}
	}

	dir, err := m.claimTempDir()
	if err != nil {
		return Session{}, err
	}

	cleanup := func() {
		_ = os.RemoveAll(dir) //nolint:errcheck // best-effort cleanup
	}

	if err := copyTree(m.template, dir); err != nil {
		cleanup()
		return Session{}, &IOError{Op: "copy template", Err: err}
	}

	id := uuid.NewString()
	if err := m.store.Save(ctx, dir, manifest.New(id, m.clock.Now().UTC())); err != nil {
		cleanup()
		return Session{}, &IOError{Op: "write manifest", Err: err}
	}

	m.replaceCurrentLocked(ctx)
	sess := Session{
		ID:          id,
		Path:        dir,
		IsTemporary: true,
		CreatedAt:   m.clock.Now(),
	}
	m.adoptLocked(ctx, sess)
	return sess, nil
}

// OpenExisting opens the case directory at path. The directory must
// exist and carry a readable manifest; InvalidCaseError otherwise.
// The opened session replaces the current one.
func (m *Manager) OpenExisting(ctx context.Context, path string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked(ctx, path)
}

func (m *Manager) openLocked(ctx context.Context, path string) (Session, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Session{}, &InvalidCaseError{Path: path, Reason: err.Error()}
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, &InvalidCaseError{Path: abs, Reason: "directory does not exist"}
		}
		return Session{}, &IOError{Op: "stat case directory", Err: err}
	}
	if !info.IsDir() {
		return Session{}, &InvalidCaseError{Path: abs, Reason: "not a directory"}
	}

	man, err := m.store.Load(ctx, abs)
	if err != nil {
		if errors.Is(err, manifest.ErrNotFound) {
			return Session{}, &InvalidCaseError{Path: abs, Reason: "missing " + manifest.FileName + " manifest"}
		}
		return Session{}, &InvalidCaseError{Path: abs, Reason: fmt.Sprintf("unreadable manifest: %v", err)}
	}

	m.replaceCurrentLocked(ctx)
	sess := Session{
		ID:          man.ID,
		Path:        abs,
		IsTemporary: m.isTempPath(abs),
		CreatedAt:   man.Created,
	}
	m.adoptLocked(ctx, sess)
	return sess, nil
}

// SaveAs copies the case tree to newPath. For a temporary session the
// manager repoints to the destination and clears the temporary and dirty
// flags; a saved session gets a plain copy with no repoint. On a partial
// write the destination is left as-is and the current session untouched.
func (m *Manager) SaveAs(ctx context.Context, newPath string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return Session{}, ErrNoSession
	}

	abs, err := filepath.Abs(newPath)
	if err != nil {
		return Session{}, &IOError{Op: "resolve destination", Err: err}
	}
	if _, err := os.Stat(abs); err == nil {
		return Session{}, &IOError{Op: "save case", Err: fmt.Errorf("%s: %w", abs, fs.ErrExist)}
	} else if !os.IsNotExist(err) {
		return Session{}, &IOError{Op: "save case", Err: err}
	}

	repoint := m.current.IsTemporary
	if repoint {
		// The old directory is abandoned after the repoint; nothing may
		// keep writing into it.
		m.cancelJobsLocked(ctx, m.current.ID, "save")
	}

	if err := copyTree(m.current.Path, abs); err != nil {
		return Session{}, &IOError{Op: "copy case", Err: err}
	}

	// Restamp the destination manifest so modified reflects this save.
	man, err := m.store.Load(ctx, abs)
	if err != nil {
		return Session{}, &IOError{Op: "read saved manifest", Err: err}
	}
	if err := m.store.Save(ctx, abs, man); err != nil {
		return Session{}, &IOError{Op: "write saved manifest", Err: err}
	}

	if !repoint {
		m.bus.Publish(events.Event{Type: events.EventTypeCaseSaved, CaseID: m.current.ID, Payload: abs})
		return *m.current, nil
	}

	wasDirty := m.current.IsDirty
	sess := Session{
		ID:        m.current.ID,
		Path:      abs,
		CreatedAt: m.current.CreatedAt,
	}
	m.current = &sess
	m.persistPointerLocked(ctx)
	if wasDirty {
		m.bus.Publish(events.Event{Type: events.EventTypeCaseDirty, CaseID: sess.ID, Payload: false})
	}
	m.bus.Publish(events.Event{Type: events.EventTypeCaseSaved, CaseID: sess.ID, Payload: abs})
	return sess, nil
}

// Discard removes a temporary session and its directory. Deletion
// failures are logged, not returned; the janitor retries on a later
// startup.
func (m *Manager) Discard(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ErrNoSession
	}
	if !m.current.IsTemporary {
		return ErrNotTemporary
	}

	sess := *m.current
	m.cancelJobsLocked(ctx, sess.ID, "discard")

	if err := os.RemoveAll(sess.Path); err != nil {
		slogger.FromContext(ctx).Warn("remove discarded case directory", "path", sess.Path, "error", err)
	}

	m.current = nil
	m.persistPointerLocked(ctx)
	m.bus.Publish(events.Event{Type: events.EventTypeCaseDiscarded, CaseID: sess.ID, Payload: sess.Path})
	return nil
}

// MarkDirty records an unsaved mutation of the current session.
func (m *Manager) MarkDirty() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ErrNoSession
	}
	if m.current.IsDirty {
		return nil
	}
	m.current.IsDirty = true
	m.bus.Publish(events.Event{Type: events.EventTypeCaseDirty, CaseID: m.current.ID, Payload: true})
	return nil
}

// ClearDirty marks the current session as saved.
func (m *Manager) ClearDirty() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ErrNoSession
	}
	if !m.current.IsDirty {
		return nil
	}
	m.current.IsDirty = false
	m.bus.Publish(events.Event{Type: events.EventTypeCaseDirty, CaseID: m.current.ID, Payload: false})
	return nil
}

// Restore reopens the session recorded by a previous invocation via the
// pointer file. Returns false when no pointer exists; a pointer to a
// directory that no longer validates is cleared.
func (m *Manager) Restore(ctx context.Context) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(m.dataDir, pointerFile))
	if err != nil {
		return Session{}, false
	}
	path := strings.TrimSpace(string(data))
	if path == "" {
		return Session{}, false
	}

	sess, err := m.openLocked(ctx, path)
	if err != nil {
		slogger.FromContext(ctx).Debug("clearing stale session pointer", "path", path, "error", err)
		m.persistPointerLocked(ctx)
		return Session{}, false
	}
	return sess, true
}

// replaceCurrentLocked drops the current session before another takes
// its place. Temp directories are left on disk for the janitor.
func (m *Manager) replaceCurrentLocked(ctx context.Context) {
	if m.current == nil {
		return
	}
	m.cancelJobsLocked(ctx, m.current.ID, "replace")
	m.current = nil
}

func (m *Manager) cancelJobsLocked(ctx context.Context, caseID, op string) {
	if m.jobs == nil {
		return
	}
	if err := m.jobs.CancelForCase(ctx, caseID); err != nil {
		slogger.FromContext(ctx).Warn("cancel case jobs", "op", op, "case", caseID, "error", err)
	}
}

func (m *Manager) adoptLocked(ctx context.Context, sess Session) {
	m.current = &sess
	m.persistPointerLocked(ctx)
	m.bus.Publish(events.Event{Type: events.EventTypeCaseOpened, CaseID: sess.ID, Payload: sess.Path})
}

// persistPointerLocked writes (or removes, when no session is current)
// the pointer file. Failures are logged; the session itself stays valid.
func (m *Manager) persistPointerLocked(ctx context.Context) {
	path := filepath.Join(m.dataDir, pointerFile)

	if m.current == nil {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slogger.FromContext(ctx).Warn("remove session pointer", "error", err)
		}
		return
	}

	if err := os.MkdirAll(m.dataDir, 0o750); err != nil {
		slogger.FromContext(ctx).Warn("persist session pointer", "error", err)
		return
	}
	if err := os.WriteFile(path, []byte(m.current.Path+"\n"), 0o600); err != nil {
		slogger.FromContext(ctx).Warn("persist session pointer", "error", err)
	}
}

// claimTempDir creates a uniquely named directory under the temp root.
// Names follow temp_YYYYMMDD_HHMMSS with a numeric suffix when several
// cases are created within the same second.
func (m *Manager) claimTempDir() (string, error) {
	base := "temp_" + m.clock.Now().Format("20060102_150405")
	for n := 0; ; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s_%02d", base, n)
		}
		dir := filepath.Join(m.tempDir, name)
		err := os.Mkdir(dir, 0o750)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", &IOError{Op: "create temp case directory", Err: err}
		}
		if n >= 99 {
			return "", &IOError{Op: "create temp case directory", Err: fmt.Errorf("no free name under %s", base)}
		}
	}
}

func (m *Manager) isTempPath(path string) bool {
	if filepath.Dir(filepath.Clean(path)) != m.tempDir {
		return false
	}
	return tempNameRe.MatchString(filepath.Base(path))
}
