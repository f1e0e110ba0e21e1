package joblog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// finishedLog writes a log as a completed run leaves it: content on
// disk, no run lock held.
func finishedLog(t *testing.T, dir, caseID, jobID string, lines []string) {
	t.Helper()
	pm := NewPathManager(dir)
	path, err := pm.EnsureJobLog(caseID, jobID)
	require.NoError(t, err)

	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// liveLog opens a Writer on a fresh job log, holding the run lock until
// the writer is closed.
func liveLog(t *testing.T, dir, caseID, jobID string) *Writer {
	t.Helper()
	pm := NewPathManager(dir)
	path, err := pm.EnsureJobLog(caseID, jobID)
	require.NoError(t, err)

	w, err := NewWriter(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func waitFollow(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not return")
		return nil
	}
}

func TestReader_ReadAll(t *testing.T) {
	t.Run("returns every line", func(t *testing.T) {
		dir := t.TempDir()
		lines := []string{"Create time", "Reading field p", "deltaT = 1e-06"}
		finishedLog(t, dir, "case1", "job1", lines)

		got, err := NewReader(NewPathManager(dir)).ReadAll("case1", "job1")

		require.NoError(t, err)
		assert.Equal(t, lines, got)
	})

	t.Run("empty log yields no lines", func(t *testing.T) {
		dir := t.TempDir()
		finishedLog(t, dir, "case1", "job1", nil)

		got, err := NewReader(NewPathManager(dir)).ReadAll("case1", "job1")

		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("missing log is an error", func(t *testing.T) {
		dir := t.TempDir()

		_, err := NewReader(NewPathManager(dir)).ReadAll("case1", "missing")

		assert.Error(t, err)
	})
}

func TestReader_ReadLastN(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	for i := 1; i <= 10; i++ {
		lines = append(lines, fmt.Sprintf("iteration %d", i))
	}
	finishedLog(t, dir, "case1", "job1", lines)
	reader := NewReader(NewPathManager(dir))

	t.Run("returns the last n lines", func(t *testing.T) {
		got, err := reader.ReadLastN("case1", "job1", 3)
		require.NoError(t, err)
		assert.Equal(t, lines[7:], got)
	})

	t.Run("caps at the full log", func(t *testing.T) {
		got, err := reader.ReadLastN("case1", "job1", 100)
		require.NoError(t, err)
		assert.Equal(t, lines, got)
	})

	t.Run("defaults when n is not positive", func(t *testing.T) {
		got, err := reader.ReadLastN("case1", "job1", 0)
		require.NoError(t, err)
		assert.Equal(t, lines, got)
	})

	t.Run("empty log yields no lines", func(t *testing.T) {
		finishedLog(t, dir, "case1", "empty", nil)

		got, err := reader.ReadLastN("case1", "empty", 5)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("missing log is an error", func(t *testing.T) {
		_, err := reader.ReadLastN("case1", "missing", 5)
		assert.Error(t, err)
	})

	t.Run("handles a log without trailing newline", func(t *testing.T) {
		pm := NewPathManager(dir)
		path, err := pm.EnsureJobLog("case1", "partial")
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree"), 0o644))

		got, err := reader.ReadLastN("case1", "partial", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"two", "three"}, got)
	})
}

func TestTailOffset(t *testing.T) {
	tests := []struct {
		name string
		data string
		n    int
		want int64
	}{
		{"empty file", "", 5, 0},
		{"fewer lines than requested", "a\nb\n", 5, 0},
		{"exact line count", "a\nb\nc\n", 3, 0},
		{"trailing newline", "aa\nbb\ncc\n", 2, 3},
		{"no trailing newline", "aa\nbb\ncc", 2, 3},
		{"single line", "solo\n", 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tailOffset(strings.NewReader(tt.data), int64(len(tt.data)), tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("spans multiple scan chunks", func(t *testing.T) {
		line := strings.Repeat("x", 1000)
		data := strings.Repeat(line+"\n", 40)

		got, err := tailOffset(strings.NewReader(data), int64(len(data)), 2)

		require.NoError(t, err)
		assert.Equal(t, int64(len(data)-2*(len(line)+1)), got)
	})
}

func TestReader_Follow(t *testing.T) {
	t.Run("replays history and streams until the run finishes", func(t *testing.T) {
		dir := t.TempDir()
		w := liveLog(t, dir, "case1", "job1")
		for i := 1; i <= 5; i++ {
			require.NoError(t, w.WriteLine(fmt.Sprintf("iteration %d", i)))
		}

		reader := NewReader(NewPathManager(dir))
		var out bytes.Buffer
		done := make(chan error, 1)
		go func() {
			done <- reader.Follow(context.Background(), "case1", "job1", &out, FollowOptions{
				History:  3,
				Interval: 10 * time.Millisecond,
			})
		}()

		time.Sleep(50 * time.Millisecond)
		require.NoError(t, w.WriteLine("iteration 6"))
		_, err := w.Write([]byte("ClockTime = 4 s"))
		require.NoError(t, err)
		time.Sleep(50 * time.Millisecond)
		require.NoError(t, w.Close())

		require.NoError(t, waitFollow(t, done))

		got := out.String()
		assert.NotContains(t, got, "iteration 1\n")
		assert.NotContains(t, got, "iteration 2\n")
		assert.Contains(t, got, "iteration 3\n")
		assert.Contains(t, got, "iteration 5\n")
		assert.Contains(t, got, "iteration 6\n")
		assert.Contains(t, got, "ClockTime = 4 s")
	})

	t.Run("returns once a finished run is drained", func(t *testing.T) {
		dir := t.TempDir()
		finishedLog(t, dir, "case1", "job1", []string{"one", "two", "three"})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var out bytes.Buffer
		err := NewReader(NewPathManager(dir)).Follow(ctx, "case1", "job1", &out, FollowOptions{
			History:  2,
			Interval: 10 * time.Millisecond,
		})

		require.NoError(t, err)
		assert.Equal(t, "two\nthree\n", out.String())
	})

	t.Run("from start replays the whole log", func(t *testing.T) {
		dir := t.TempDir()
		finishedLog(t, dir, "case1", "job1", []string{"one", "two", "three"})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var out bytes.Buffer
		err := NewReader(NewPathManager(dir)).Follow(ctx, "case1", "job1", &out, FollowOptions{
			History:   1,
			FromStart: true,
			Interval:  10 * time.Millisecond,
		})

		require.NoError(t, err)
		assert.Equal(t, "one\ntwo\nthree\n", out.String())
	})

	t.Run("stays live while the writer holds the lock", func(t *testing.T) {
		dir := t.TempDir()
		w := liveLog(t, dir, "case1", "job1")
		require.NoError(t, w.WriteLine("booting"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var out bytes.Buffer
		done := make(chan error, 1)
		go func() {
			done <- NewReader(NewPathManager(dir)).Follow(ctx, "case1", "job1", &out, FollowOptions{
				Interval: 10 * time.Millisecond,
			})
		}()

		// Plenty of quiet polls; the probe must keep reporting a live run.
		time.Sleep(100 * time.Millisecond)
		select {
		case err := <-done:
			t.Fatalf("follow returned early: %v", err)
		default:
		}

		cancel()
		assert.ErrorIs(t, waitFollow(t, done), context.Canceled)
	})

	t.Run("missing log is an error", func(t *testing.T) {
		dir := t.TempDir()

		err := NewReader(NewPathManager(dir)).Follow(context.Background(), "case1", "missing", &bytes.Buffer{}, FollowOptions{})

		assert.Error(t, err)
	})
}
