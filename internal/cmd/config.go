package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nextfoam/biprop/internal/config"
	"github.com/nextfoam/biprop/internal/exec"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View and modify configuration",
	Long: `View and modify biprop configuration.

The configuration file lives at ~/.config/biprop/config.yaml and is
created with defaults on first use.`,
	Example: `  # Show all config
  biprop config show

  # Show one key
  biprop config show retention.temp_case

  # Set a value
  biprop config set jobs.grace_period 10s

  # Open the config file in $EDITOR
  biprop config --edit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		editFlag, _ := cmd.Flags().GetBool("edit")
		if editFlag {
			return runConfigEdit(cmd.Context())
		}
		return runConfigShowAll()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show [key]",
	Short: "Show configuration values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return runConfigShowKey(args[0])
		}
		return runConfigShowAll()
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigSet(args[0], args[1])
	},
}

func runConfigEdit(ctx context.Context) error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		return config.ErrNoEditor
	}

	cfgLoader, err := config.NewLoader()
	if err != nil {
		return fmt.Errorf("init config loader: %w", err)
	}

	// Load creates the file when missing, so the editor never opens a
	// blank buffer.
	if _, err := cfgLoader.Load(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	_, err = exec.New().Run(ctx, exec.RunOptions{
		Name:   editor,
		Args:   []string{cfgLoader.Path()},
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	return err
}

func runConfigShowAll() error {
	cfgLoader, err := config.NewLoader()
	if err != nil {
		return fmt.Errorf("init config loader: %w", err)
	}

	if _, err := cfgLoader.Load(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	out, err := yaml.Marshal(cfgLoader.Settings())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	fmt.Print(string(out))
	return nil
}

func runConfigShowKey(key string) error {
	if err := config.ValidateKey(key); err != nil {
		return err
	}

	cfgLoader, err := config.NewLoader()
	if err != nil {
		return fmt.Errorf("init config loader: %w", err)
	}

	// Load to ensure the file exists
	if _, err := cfgLoader.Load(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	value, err := cfgLoader.Get(key)
	if err != nil {
		return err
	}

	if value == nil {
		fmt.Println("")
		return nil
	}

	switch v := value.(type) {
	case string:
		fmt.Println(v)
	case map[string]any, []any:
		out, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal value: %w", err)
		}
		fmt.Print(string(out))
	default:
		fmt.Println(value)
	}

	return nil
}

func runConfigSet(key, value string) error {
	cfgLoader, err := config.NewLoader()
	if err != nil {
		return fmt.Errorf("init config loader: %w", err)
	}

	// Load first to ensure the file exists
	if _, err := cfgLoader.Load(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := cfgLoader.Set(key, value); err != nil {
		return err
	}

	fmt.Printf("Set %s = %s\n", key, value)
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)

	configCmd.Flags().Bool("edit", false, "open config file in $EDITOR")
}
