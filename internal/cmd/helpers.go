package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextfoam/biprop/internal/config"
	"github.com/nextfoam/biprop/internal/exec"
	"github.com/nextfoam/biprop/internal/job"
	"github.com/nextfoam/biprop/internal/joblog"
	"github.com/nextfoam/biprop/internal/loader"
	"github.com/nextfoam/biprop/internal/manifest"
	"github.com/nextfoam/biprop/internal/prompt"
	"github.com/nextfoam/biprop/internal/services"
	"github.com/nextfoam/biprop/internal/session"
)

// resolveService pulls a typed service out of the context registry.
func resolveService[T any](ctx context.Context, key services.Key) (T, error) {
	var zero T

	registry := ServicesFromContext(ctx)
	if registry == nil {
		return zero, errors.New("services not initialized")
	}
	return services.Get[T](registry, key)
}

func requireSessions(ctx context.Context) (*session.Manager, error) {
	return resolveService[*session.Manager](ctx, services.KeySessions)
}

func requireController(ctx context.Context) (*job.Controller, error) {
	return resolveService[*job.Controller](ctx, services.KeyController)
}

func requireManifests(ctx context.Context) (*manifest.Store, error) {
	return resolveService[*manifest.Store](ctx, services.KeyManifests)
}

func requireLoader(ctx context.Context) (*loader.Loader, error) {
	return resolveService[*loader.Loader](ctx, services.KeyLoader)
}

func requireJobLogs(ctx context.Context) (*joblog.PathManager, error) {
	return resolveService[*joblog.PathManager](ctx, services.KeyJobLogs)
}

func requireJanitor(ctx context.Context) (*session.Janitor, error) {
	return resolveService[*session.Janitor](ctx, services.KeyJanitor)
}

func requirePrompter(ctx context.Context) (prompt.Prompter, error) {
	return resolveService[prompt.Prompter](ctx, services.KeyPrompter)
}

func requireExecutor(ctx context.Context) (exec.Executor, error) {
	return resolveService[exec.Executor](ctx, services.KeyExecutor)
}

// ensureSession returns the session a command operates on: the path
// argument when given, otherwise the current session, otherwise a fresh
// temporary case.
func ensureSession(ctx context.Context, pathArg string) (session.Session, error) {
	sessions, err := requireSessions(ctx)
	if err != nil {
		return session.Session{}, err
	}

	if pathArg != "" {
		return sessions.OpenExisting(ctx, pathArg)
	}
	if sess, ok := sessions.Current(); ok {
		return sess, nil
	}
	return sessions.CreateTemp(ctx)
}

// guardReplace resolves unsaved changes before the current case is
// replaced. It returns false when the user keeps the current case.
func guardReplace(cmd *cobra.Command) (bool, error) {
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return false, fmt.Errorf("get force flag: %w", err)
	}

	ctx := cmd.Context()
	sessions, err := requireSessions(ctx)
	if err != nil {
		return false, err
	}
	sess, ok := sessions.Current()
	if !ok || !sess.IsDirty || force {
		return true, nil
	}

	prompter, err := requirePrompter(ctx)
	if err != nil {
		return false, err
	}

	const (
		saveFirst = iota
		switchAway
		keep
	)
	choice, err := prompter.Choice(
		fmt.Sprintf("%s has unsaved changes", sess.Path),
		[]string{"Save to a new location", "Switch without saving", "Keep the current case"},
	)
	if err != nil {
		if errors.Is(err, prompt.ErrCanceled) {
			return false, nil
		}
		return false, err
	}

	switch choice {
	case saveFirst:
		dest, err := prompter.Ask("Save case to", "~/cases/thruster-v2")
		if err != nil {
			if errors.Is(err, prompt.ErrCanceled) {
				return false, nil
			}
			return false, err
		}
		if dest == "" {
			return false, nil
		}
		saved, err := sessions.SaveAs(ctx, expandHome(dest))
		if err != nil {
			return false, fmt.Errorf("save case: %w", err)
		}
		if sess.IsTemporary {
			fmt.Printf("Saved case to %s\n", saved.Path)
		} else {
			fmt.Printf("Copied case to %s\n", dest)
		}
		return true, nil
	case switchAway:
		return true, nil
	case keep:
		fallthrough
	default:
		return false, nil
	}
}

// expandHome resolves a leading ~ against the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// currentSession returns the current session or an error telling the user
// how to start one.
func currentSession(ctx context.Context) (session.Session, error) {
	sessions, err := requireSessions(ctx)
	if err != nil {
		return session.Session{}, err
	}

	sess, ok := sessions.Current()
	if !ok {
		return session.Session{}, errors.New("no case is open; run 'biprop new' or 'biprop open <path>'")
	}
	return sess, nil
}

func defaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, config.DefaultDataDir), nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
