// Package cmd implements the biprop CLI commands using Cobra.
// It provides commands for managing simulation case directories and for
// dispatching the external mesh and solver tools as supervised jobs.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/nextfoam/biprop/internal/config"
	"github.com/nextfoam/biprop/internal/events"
	"github.com/nextfoam/biprop/internal/exec"
	"github.com/nextfoam/biprop/internal/job"
	"github.com/nextfoam/biprop/internal/joblog"
	"github.com/nextfoam/biprop/internal/loader"
	"github.com/nextfoam/biprop/internal/manifest"
	"github.com/nextfoam/biprop/internal/prompt"
	"github.com/nextfoam/biprop/internal/services"
	"github.com/nextfoam/biprop/internal/session"
	"github.com/nextfoam/biprop/internal/slogger"
)

// appConfig holds the loaded application configuration.
var appConfig *config.Config

// configLoader is used for reading and writing configuration keys.
var configLoader *config.Loader

var rootCmd = &cobra.Command{
	Use:   "biprop",
	Short: "Manage bipropellant thruster simulation cases",
	Long: `Biprop manages directory-backed simulation cases for the bipropellant
thruster workflow: temporary case creation from a base template, saving,
geometry import, and supervised execution of the external mesh and solver
tools with streamed progress output.

New cases start as temporary directories that are cleaned up automatically
after the retention window unless saved with 'biprop save'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !needsServices(cmd) {
			return nil
		}

		logger := slogger.New(effectiveVerbosity(cmd), nil)
		ctx := slogger.WithLogger(cmd.Context(), logger)

		registry, err := initServices(logger)
		if err != nil {
			return err
		}

		ctx = WithConfig(ctx, appConfig)
		ctx = WithLoader(ctx, configLoader)
		ctx = WithServices(ctx, registry)
		cmd.SetContext(ctx)

		// Reopen the session a previous invocation left behind, then sweep
		// abandoned temp cases. Restore must come first so the sweep never
		// touches the current session's directory.
		sessions := services.MustGet[*session.Manager](registry, services.KeySessions)
		if sess, ok := sessions.Restore(ctx); ok {
			logger.Debug("restored session", "path", sess.Path)
		}
		if cmd.Name() != "clean" {
			janitor := services.MustGet[*session.Janitor](registry, services.KeyJanitor)
			if removed := janitor.Sweep(ctx); removed > 0 {
				logger.Debug("startup sweep removed abandoned temp cases", "count", removed)
			}
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		// Drain the decode pool so no background load outlives the command.
		if registry := ServicesFromContext(cmd.Context()); registry != nil {
			if ld, err := services.Get[*loader.Loader](registry, services.KeyLoader); err == nil {
				ld.Close()
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().CountP("verbose", "v", "increase log verbosity (-v info, -vv debug)")
}

func initConfig() {
	cfgLoader, err := config.NewLoader()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
		return
	}

	cfg, err := cfgLoader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		return
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config validation failed: %v\n", err)
	}

	appConfig = cfg
	configLoader = cfgLoader
}

// needsServices reports whether the command requires the service registry.
// Help-like commands and the config tree work without it, so a broken data
// directory never locks the user out of fixing their configuration.
func needsServices(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", "version", "config":
			return false
		}
	}
	return true
}

// effectiveVerbosity combines the -v flag count with the configured level;
// the flag wins when given.
func effectiveVerbosity(cmd *cobra.Command) int {
	if count, err := cmd.Flags().GetCount("verbose"); err == nil && count > 0 {
		return count
	}
	if appConfig != nil {
		return appConfig.Logging.Verbosity
	}
	return 0
}

// initServices builds every shared component in dependency order (leaf
// services first) and registers each in the service registry. Components
// are resolved from the registry afterwards, never through package state.
func initServices(logger *slog.Logger) (*services.Registry, error) {
	paths, err := resolvePaths()
	if err != nil {
		return nil, err
	}

	clock := clockwork.NewRealClock()
	bus := events.New(events.WithLogger(logger))
	store := manifest.NewStore(clock)

	sessions := session.NewManager(store, bus, clock, session.ManagerConfig{
		DataDir:  paths.dataDir,
		TempDir:  paths.tempDir,
		Template: paths.template,
	})

	retention := session.DefaultRetention
	workers := 0
	jobsCfg := job.RegistryConfig{}
	grace := job.ControllerConfig{}
	if appConfig != nil {
		retention = appConfig.Retention.TempCase
		workers = appConfig.Loader.Workers
		jobsCfg.HistoryCap = appConfig.Jobs.HistoryCap
		jobsCfg.ProgressBuffer = appConfig.Jobs.ProgressBuffer
		grace.GracePeriod = appConfig.Jobs.GracePeriod
	}

	janitor := session.NewJanitor(paths.tempDir, retention, clock, sessions)
	artifacts := loader.New(workers, loader.WithBus(bus))
	jobs := job.NewRegistry(clock, jobsCfg)
	executor := exec.New()
	logs := joblog.NewPathManager(filepath.Join(paths.dataDir, "logs"))
	controller := job.NewController(jobs, executor, logs, bus, clock, grace)

	// The manager and controller reference each other through narrow
	// interfaces: discarding a session cancels its jobs, and a finished
	// job marks the session dirty.
	sessions.SetJobCanceller(controller)
	controller.SetDirtyMarker(sessions)

	registry := services.NewRegistry()
	for _, entry := range []struct {
		key      services.Key
		instance any
	}{
		{services.KeyConfig, appConfig},
		{services.KeyLogger, logger},
		{services.KeyBus, bus},
		{services.KeyManifests, store},
		{services.KeySessions, sessions},
		{services.KeyJanitor, janitor},
		{services.KeyLoader, artifacts},
		{services.KeyJobs, jobs},
		{services.KeyController, controller},
		{services.KeyExecutor, executor},
		{services.KeyJobLogs, logs},
		{services.KeyPrompter, prompt.New()},
	} {
		if err := registry.Register(entry.key, entry.instance); err != nil {
			return nil, fmt.Errorf("register %s service: %w", entry.key, err)
		}
	}

	return registry, nil
}

// appPaths holds the resolved filesystem locations for this invocation.
type appPaths struct {
	dataDir  string
	tempDir  string
	template string
}

// resolvePaths returns the configured paths, falling back to the defaults
// under the home directory when no configuration could be loaded.
func resolvePaths() (appPaths, error) {
	if appConfig != nil {
		return appPaths{
			dataDir:  appConfig.Paths.DataDir,
			tempDir:  appConfig.Paths.TempDir,
			template: appConfig.Paths.Template,
		}, nil
	}

	dataDir, err := defaultDataDir()
	if err != nil {
		return appPaths{}, err
	}
	return appPaths{
		dataDir:  dataDir,
		tempDir:  filepath.Join(dataDir, "temp"),
		template: filepath.Join(dataDir, "basecase"),
	}, nil
}
