package exec

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	e := New()
	require.NotNil(t, e)
}

func TestExecutor_Run(t *testing.T) {
	e := New()

	t.Run("captures stdout", func(t *testing.T) {
		result, err := e.Run(context.Background(), RunOptions{
			Name: "echo",
			Args: []string{"hello"},
		})

		require.NoError(t, err)
		assert.Equal(t, "hello\n", string(result.Stdout))
		assert.Empty(t, result.Stderr)
		assert.Equal(t, 0, result.ExitCode)
	})

	t.Run("captures stderr", func(t *testing.T) {
		result, err := e.Run(context.Background(), RunOptions{
			Name: "sh",
			Args: []string{"-c", "echo error >&2"},
		})

		require.NoError(t, err)
		assert.Empty(t, result.Stdout)
		assert.Equal(t, "error\n", string(result.Stderr))
		assert.Equal(t, 0, result.ExitCode)
	})

	t.Run("captures exit code on failure", func(t *testing.T) {
		result, err := e.Run(context.Background(), RunOptions{
			Name: "sh",
			Args: []string{"-c", "exit 42"},
		})

		require.Error(t, err)
		var exitErr *exec.ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 42, result.ExitCode)
	})

	t.Run("streams to provided stdout writer", func(t *testing.T) {
		var buf bytes.Buffer
		result, err := e.Run(context.Background(), RunOptions{
			Name:   "echo",
			Args:   []string{"streamed"},
			Stdout: &buf,
		})

		require.NoError(t, err)
		assert.Nil(t, result.Stdout, "Stdout should be nil when streaming")
		assert.Equal(t, "streamed\n", buf.String())
	})

	t.Run("streams to provided stderr writer", func(t *testing.T) {
		var buf bytes.Buffer
		result, err := e.Run(context.Background(), RunOptions{
			Name:   "sh",
			Args:   []string{"-c", "echo error >&2"},
			Stderr: &buf,
		})

		require.NoError(t, err)
		assert.Nil(t, result.Stderr, "Stderr should be nil when streaming")
		assert.Equal(t, "error\n", buf.String())
	})

	t.Run("respects working directory", func(t *testing.T) {
		result, err := e.Run(context.Background(), RunOptions{
			Name: "pwd",
			Dir:  "/tmp",
		})

		require.NoError(t, err)
		// On macOS, /tmp is a symlink to /private/tmp
		assert.Contains(t, string(result.Stdout), "/tmp",
			"expected output to contain /tmp, got: %s", string(result.Stdout))
	})

	t.Run("passes environment variables", func(t *testing.T) {
		result, err := e.Run(context.Background(), RunOptions{
			Name: "sh",
			Args: []string{"-c", "echo $TEST_VAR"},
			Env:  []string{"TEST_VAR=hello_env"},
		})

		require.NoError(t, err)
		assert.Equal(t, "hello_env\n", string(result.Stdout))
	})

	t.Run("reads from stdin", func(t *testing.T) {
		result, err := e.Run(context.Background(), RunOptions{
			Name:  "cat",
			Stdin: strings.NewReader("input data"),
		})

		require.NoError(t, err)
		assert.Equal(t, "input data", string(result.Stdout))
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := e.Run(ctx, RunOptions{
			Name: "sleep",
			Args: []string{"10"},
		})

		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "signal: killed"),
			"expected context deadline or killed signal, got: %v", err)
	})

	t.Run("returns error for nonexistent command", func(t *testing.T) {
		_, err := e.Run(context.Background(), RunOptions{
			Name: "nonexistent_command_12345",
		})

		require.Error(t, err)
	})
}

func TestExecutor_Start(t *testing.T) {
	e := New()

	t.Run("interleaves stdout and stderr in production order", func(t *testing.T) {
		p, err := e.Start(context.Background(), StartOptions{
			Name: "sh",
			Args: []string{"-c", "echo one; echo two >&2; echo three; echo four >&2"},
		})
		require.NoError(t, err)

		var lines []string
		scanner := bufio.NewScanner(p.Output())
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		require.NoError(t, scanner.Err())

		code, err := p.Wait()
		require.NoError(t, err)
		assert.Equal(t, 0, code)
		assert.Equal(t, []string{"one", "two", "three", "four"}, lines)
	})

	t.Run("reports exit code through wait", func(t *testing.T) {
		p, err := e.Start(context.Background(), StartOptions{
			Name: "sh",
			Args: []string{"-c", "echo partial; exit 42"},
		})
		require.NoError(t, err)

		out, err := io.ReadAll(p.Output())
		require.NoError(t, err)
		assert.Equal(t, "partial\n", string(out))

		code, err := p.Wait()
		require.Error(t, err)
		var exitErr *exec.ExitError
		assert.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 42, code)
	})

	t.Run("returns error for nonexistent command", func(t *testing.T) {
		p, err := e.Start(context.Background(), StartOptions{
			Name: "nonexistent_command_12345",
		})

		require.Error(t, err)
		assert.Nil(t, p)
	})

	t.Run("respects working directory", func(t *testing.T) {
		p, err := e.Start(context.Background(), StartOptions{
			Name: "pwd",
			Dir:  "/tmp",
		})
		require.NoError(t, err)

		out, err := io.ReadAll(p.Output())
		require.NoError(t, err)
		assert.Contains(t, string(out), "/tmp")

		_, err = p.Wait()
		require.NoError(t, err)
	})

	t.Run("passes environment variables", func(t *testing.T) {
		p, err := e.Start(context.Background(), StartOptions{
			Name: "sh",
			Args: []string{"-c", "echo $START_VAR"},
			Env:  []string{"START_VAR=from_start"},
		})
		require.NoError(t, err)

		out, err := io.ReadAll(p.Output())
		require.NoError(t, err)
		assert.Equal(t, "from_start\n", string(out))

		_, err = p.Wait()
		require.NoError(t, err)
	})

	t.Run("exposes the process id", func(t *testing.T) {
		p, err := e.Start(context.Background(), StartOptions{
			Name: "echo",
			Args: []string{"pid"},
		})
		require.NoError(t, err)
		assert.Positive(t, p.PID())

		_, _ = io.ReadAll(p.Output())
		_, err = p.Wait()
		require.NoError(t, err)
	})

	t.Run("cancellation terminates a cooperating process", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		p, err := e.Start(ctx, StartOptions{
			Name:        "sh",
			Args:        []string{"-c", "echo ready; sleep 10"},
			GracePeriod: 5 * time.Second,
		})
		require.NoError(t, err)

		scanner := bufio.NewScanner(p.Output())
		require.True(t, scanner.Scan())
		require.Equal(t, "ready", scanner.Text())

		start := time.Now()
		cancel()

		code, err := p.Wait()
		require.Error(t, err)
		assert.Equal(t, -1, code)
		assert.Less(t, time.Since(start), 5*time.Second,
			"SIGTERM should stop the process well before the grace period")
	})

	t.Run("cancellation kills a stubborn process after the grace period", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		p, err := e.Start(ctx, StartOptions{
			Name:        "sh",
			Args:        []string{"-c", `trap "" TERM; echo ready; sleep 10`},
			GracePeriod: 200 * time.Millisecond,
		})
		require.NoError(t, err)

		scanner := bufio.NewScanner(p.Output())
		require.True(t, scanner.Scan())
		require.Equal(t, "ready", scanner.Text())

		start := time.Now()
		cancel()

		code, err := p.Wait()
		require.Error(t, err)
		assert.Equal(t, -1, code)
		assert.Less(t, time.Since(start), 5*time.Second,
			"process ignoring SIGTERM should be killed after the grace period")
	})

	t.Run("signal reaches the process", func(t *testing.T) {
		p, err := e.Start(context.Background(), StartOptions{
			Name: "sh",
			Args: []string{"-c", "echo ready; sleep 10"},
		})
		require.NoError(t, err)

		scanner := bufio.NewScanner(p.Output())
		require.True(t, scanner.Scan())

		require.NoError(t, p.Signal(syscall.SIGTERM))

		code, err := p.Wait()
		require.Error(t, err)
		assert.Equal(t, -1, code)
	})

	t.Run("wait is idempotent", func(t *testing.T) {
		p, err := e.Start(context.Background(), StartOptions{
			Name: "sh",
			Args: []string{"-c", "exit 7"},
		})
		require.NoError(t, err)

		_, _ = io.ReadAll(p.Output())

		code1, err1 := p.Wait()
		code2, err2 := p.Wait()
		assert.Equal(t, code1, code2)
		assert.Equal(t, err1, err2)
		assert.Equal(t, 7, code1)
	})

	t.Run("wait does not hang when output is never drained", func(t *testing.T) {
		// Writes far more than a pipe buffer holds, so the child blocks on
		// the full pipe until Wait closes the read end.
		p, err := e.Start(context.Background(), StartOptions{
			Name: "sh",
			Args: []string{"-c", "dd if=/dev/zero bs=1024 count=256 2>/dev/null"},
		})
		require.NoError(t, err)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = p.Wait()
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Wait blocked on an undrained output pipe")
		}
	})
}

func TestExecutor_LookPath(t *testing.T) {
	e := New()

	t.Run("finds existing command", func(t *testing.T) {
		path, err := e.LookPath("echo")

		require.NoError(t, err)
		assert.NotEmpty(t, path)
		assert.True(t, strings.HasSuffix(path, "echo") || strings.Contains(path, "echo"),
			"expected path to contain echo, got: %s", path)
	})

	t.Run("returns error for nonexistent command", func(t *testing.T) {
		_, err := e.LookPath("nonexistent_command_12345")

		require.Error(t, err)
		var execErr *exec.Error
		assert.ErrorAs(t, err, &execErr)
	})
}
