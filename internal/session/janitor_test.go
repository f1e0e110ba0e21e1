package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCurrent struct {
	sess Session
	ok   bool
}

func (s stubCurrent) Current() (Session, bool) { return s.sess, s.ok }

func makeCaseDir(t *testing.T, tempDir, name string, mtime time.Time) string {
	t.Helper()
	dir := filepath.Join(tempDir, name)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "case.json"), []byte("{}"), 0o644))
	require.NoError(t, os.Chtimes(dir, mtime, mtime))
	return dir
}

func TestJanitor_Sweep(t *testing.T) {
	now := time.Date(2025, 6, 11, 10, 30, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)
	ctx := context.Background()

	t.Run("removes expired temp cases and spares young ones", func(t *testing.T) {
		tempDir := t.TempDir()
		old := makeCaseDir(t, tempDir, "temp_20250601_000000", now.Add(-8*24*time.Hour))
		young := makeCaseDir(t, tempDir, "temp_20250610_120000", now.Add(-24*time.Hour))

		j := NewJanitor(tempDir, DefaultRetention, clock, stubCurrent{})
		removed := j.Sweep(ctx)

		assert.Equal(t, 1, removed)
		_, err := os.Stat(old)
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(young)
		assert.NoError(t, err)
	})

	t.Run("never touches the current session", func(t *testing.T) {
		tempDir := t.TempDir()
		current := makeCaseDir(t, tempDir, "temp_20250501_000000", now.Add(-30*24*time.Hour))

		j := NewJanitor(tempDir, DefaultRetention, clock, stubCurrent{
			sess: Session{Path: current, IsTemporary: true},
			ok:   true,
		})
		removed := j.Sweep(ctx)

		assert.Zero(t, removed)
		_, err := os.Stat(current)
		assert.NoError(t, err)
	})

	t.Run("ignores entries outside the naming convention", func(t *testing.T) {
		tempDir := t.TempDir()
		keep := makeCaseDir(t, tempDir, "my-saved-case", now.Add(-30*24*time.Hour))
		stray := filepath.Join(tempDir, "temp_20250101_000000.bak")
		require.NoError(t, os.MkdirAll(stray, 0o750))
		require.NoError(t, os.Chtimes(stray, now.Add(-30*24*time.Hour), now.Add(-30*24*time.Hour)))

		j := NewJanitor(tempDir, DefaultRetention, clock, stubCurrent{})
		removed := j.Sweep(ctx)

		assert.Zero(t, removed)
		_, err := os.Stat(keep)
		assert.NoError(t, err)
		_, err = os.Stat(stray)
		assert.NoError(t, err)
	})

	t.Run("ignores plain files with temp-like names", func(t *testing.T) {
		tempDir := t.TempDir()
		file := filepath.Join(tempDir, "temp_20250101_000000")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(file, now.Add(-30*24*time.Hour), now.Add(-30*24*time.Hour)))

		j := NewJanitor(tempDir, DefaultRetention, clock, stubCurrent{})
		assert.Zero(t, j.Sweep(ctx))

		_, err := os.Stat(file)
		assert.NoError(t, err)
	})

	t.Run("accepts suffixed names", func(t *testing.T) {
		tempDir := t.TempDir()
		suffixed := makeCaseDir(t, tempDir, "temp_20250601_000000_01", now.Add(-8*24*time.Hour))

		j := NewJanitor(tempDir, DefaultRetention, clock, stubCurrent{})
		assert.Equal(t, 1, j.Sweep(ctx))

		_, err := os.Stat(suffixed)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("missing temp root is not an error", func(t *testing.T) {
		j := NewJanitor(filepath.Join(t.TempDir(), "nope"), DefaultRetention, clock, stubCurrent{})
		assert.Zero(t, j.Sweep(ctx))
	})

	t.Run("custom retention window", func(t *testing.T) {
		tempDir := t.TempDir()
		twoHours := makeCaseDir(t, tempDir, "temp_20250611_083000", now.Add(-2*time.Hour))
		fresh := makeCaseDir(t, tempDir, "temp_20250611_101500", now.Add(-15*time.Minute))

		j := NewJanitor(tempDir, time.Hour, clock, stubCurrent{})
		assert.Equal(t, 1, j.Sweep(ctx))

		_, err := os.Stat(twoHours)
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(fresh)
		assert.NoError(t, err)
	})

	t.Run("repeated sweeps are stable", func(t *testing.T) {
		tempDir := t.TempDir()
		makeCaseDir(t, tempDir, "temp_20250601_000000", now.Add(-8*24*time.Hour))
		young := makeCaseDir(t, tempDir, "temp_20250610_120000", now.Add(-24*time.Hour))

		j := NewJanitor(tempDir, DefaultRetention, clock, stubCurrent{})
		assert.Equal(t, 1, j.Sweep(ctx))
		assert.Zero(t, j.Sweep(ctx))

		_, err := os.Stat(young)
		assert.NoError(t, err)
	})
}

func TestNewJanitor_DefaultRetention(t *testing.T) {
	clock := clockwork.NewFakeClock()
	j := NewJanitor(t.TempDir(), 0, clock, stubCurrent{})
	assert.Equal(t, DefaultRetention, j.retention)
}

func TestJanitor_SweepAfterManagerLifecycle(t *testing.T) {
	mgr, env := newTestManager(t)
	ctx := context.Background()

	// Abandon one temp case by creating a second; the first ages out.
	first, err := mgr.CreateTemp(ctx)
	require.NoError(t, err)
	second, err := mgr.CreateTemp(ctx)
	require.NoError(t, err)

	aged := env.clock.Now().Add(-8 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(first.Path, aged, aged))
	require.NoError(t, os.Chtimes(second.Path, aged, aged))

	j := NewJanitor(env.tempDir, DefaultRetention, env.clock, mgr)
	assert.Equal(t, 1, j.Sweep(ctx))

	_, err = os.Stat(first.Path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(second.Path)
	assert.NoError(t, err, "current session survives even when aged")
}
