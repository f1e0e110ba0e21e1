package session

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nextfoam/biprop/internal/slogger"
)

// DefaultRetention is how long abandoned temporary cases are kept.
const DefaultRetention = 7 * 24 * time.Hour

var tempNameRe = regexp.MustCompile(`^temp_\d{8}_\d{6}(_\d{2})?$`)

// currentProvider reports the session a sweep must never touch.
type currentProvider interface {
	Current() (Session, bool)
}

// Janitor removes abandoned temporary case directories. It runs once at
// process startup, not on a recurring timer.
type Janitor struct {
	tempDir   string
	retention time.Duration
	clock     clockwork.Clock
	sessions  currentProvider
}

// NewJanitor creates a janitor over the temp root. A retention of zero
// or less falls back to DefaultRetention.
func NewJanitor(tempDir string, retention time.Duration, clock clockwork.Clock, sessions currentProvider) *Janitor {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Janitor{
		tempDir:   filepath.Clean(tempDir),
		retention: retention,
		clock:     clock,
		sessions:  sessions,
	}
}

// Sweep deletes directories under the temp root that match the temp-case
// naming convention and whose modification time is older than the
// retention window. The current session's directory is always spared.
// Per-candidate failures are logged and do not abort the sweep; Sweep
// reports how many directories it removed.
func (j *Janitor) Sweep(ctx context.Context) int {
	log := slogger.FromContext(ctx)

	entries, err := os.ReadDir(j.tempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("read temp case root", "dir", j.tempDir, "error", err)
		}
		return 0
	}

	var currentPath string
	if sess, ok := j.sessions.Current(); ok {
		currentPath = filepath.Clean(sess.Path)
	}

	cutoff := j.clock.Now().Add(-j.retention)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !tempNameRe.MatchString(entry.Name()) {
			continue
		}

		dir := filepath.Join(j.tempDir, entry.Name())
		if dir == currentPath {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Warn("stat temp case", "dir", dir, "error", err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.RemoveAll(dir); err != nil {
			log.Warn("remove abandoned temp case", "dir", dir, "error", err)
			continue
		}
		log.Debug("removed abandoned temp case", "dir", dir)
		removed++
	}
	return removed
}
