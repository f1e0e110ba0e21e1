// Package config loads and persists the biprop configuration file:
// filesystem locations, temp-case retention, job supervision limits,
// decode-pool size, and the external tool command lines.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration locations, relative to the home directory.
const (
	DefaultConfigDir  = ".config/biprop"
	DefaultConfigFile = "config.yaml"
	DefaultDataDir    = ".local/share/biprop"
)

// Sentinel errors for configuration operations.
var (
	ErrInvalidKey      = errors.New("invalid configuration key")
	ErrInvalidDuration = errors.New("invalid duration value")
	ErrInvalidNumber   = errors.New("invalid numeric value")
	ErrNoEditor        = errors.New("$EDITOR environment variable not set")
)

// durationKeys lists keys whose values must parse as a Go duration.
var durationKeys = map[string]bool{
	"retention.temp_case": true,
	"jobs.grace_period":   true,
}

// numericKeys lists keys whose values must parse as a non-negative integer.
var numericKeys = map[string]bool{
	"jobs.history_cap":     true,
	"jobs.progress_buffer": true,
	"loader.workers":       true,
	"logging.verbosity":    true,
}

// defaults maps every key to its out-of-the-box value. The keys mirror
// the Config struct tags; collectKeys derives the valid-key set from
// those same tags.
var defaults = map[string]any{
	"paths.data_dir":       "~/" + DefaultDataDir,
	"paths.temp_dir":       "~/" + DefaultDataDir + "/temp",
	"paths.template":       "~/" + DefaultDataDir + "/basecase",
	"retention.temp_case":  "168h",
	"jobs.grace_period":    "5s",
	"jobs.history_cap":     50,
	"jobs.progress_buffer": 1000,
	"loader.workers":       4,
	"tools.mesh":           []string{"./Allrun"},
	"tools.solve":          []string{"./Allrun"},
	"logging.verbosity":    0,
}

// envBindings ties config keys to dedicated environment variables, on
// top of the automatic BIPROP_ prefix mapping.
var envBindings = map[string]string{
	"paths.data_dir":      "BIPROP_DATA_DIR",
	"paths.temp_dir":      "BIPROP_TEMP_DIR",
	"paths.template":      "BIPROP_TEMPLATE",
	"retention.temp_case": "BIPROP_TEMP_RETENTION",
}

// validKeys holds every settable dot-notation key, derived once from the
// Config struct tags.
var validKeys = func() map[string]bool {
	keys := make(map[string]bool)
	collectKeys(reflect.TypeOf(Config{}), "", keys)
	return keys
}()

// validate is the shared validator instance.
var validate = validator.New()

// Config represents the full biprop configuration.
type Config struct {
	Paths     PathsConfig     `mapstructure:"paths" validate:"required"`
	Retention RetentionConfig `mapstructure:"retention"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Loader    LoaderConfig    `mapstructure:"loader"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// PathsConfig holds filesystem location configuration.
type PathsConfig struct {
	DataDir  string `mapstructure:"data_dir" validate:"required"`
	TempDir  string `mapstructure:"temp_dir" validate:"required"`
	Template string `mapstructure:"template" validate:"required"`
}

// RetentionConfig holds temp-case cleanup configuration.
type RetentionConfig struct {
	TempCase time.Duration `mapstructure:"temp_case" validate:"min=0"`
}

// JobsConfig holds external job execution configuration.
type JobsConfig struct {
	GracePeriod    time.Duration `mapstructure:"grace_period" validate:"min=0"`
	HistoryCap     int           `mapstructure:"history_cap" validate:"min=1"`
	ProgressBuffer int           `mapstructure:"progress_buffer" validate:"min=1"`
}

// LoaderConfig holds background artifact loading configuration.
type LoaderConfig struct {
	Workers int `mapstructure:"workers" validate:"min=1"`
}

// ToolsConfig holds the external tool command lines, run with the case
// directory as working directory.
type ToolsConfig struct {
	Mesh  []string `mapstructure:"mesh" validate:"required,min=1"`
	Solve []string `mapstructure:"solve" validate:"required,min=1"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Verbosity int `mapstructure:"verbosity" validate:"min=0,max=2"`
}

// Validate checks the configuration against the struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Loader reads and writes the configuration file.
type Loader struct {
	v       *viper.Viper
	path    string
	homeDir string
}

// NewLoader creates a loader rooted at ~/.config/biprop/config.yaml.
func NewLoader() (*Loader, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home directory: %w", err)
	}

	v := viper.New()
	path := filepath.Join(home, DefaultConfigDir, DefaultConfigFile)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BIPROP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		v.BindEnv(key, env) //nolint:errcheck // BindEnv only fails with zero arguments
	}

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	return &Loader{v: v, path: path, homeDir: home}, nil
}

// Load reads the configuration file, writing one with the defaults
// first when none exists.
func (l *Loader) Load() (*Config, error) {
	if _, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) {
		if err := l.writeDefault(); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	for _, p := range []*string{&cfg.Paths.DataDir, &cfg.Paths.TempDir, &cfg.Paths.Template} {
		*p = l.expandPath(*p)
	}

	return &cfg, nil
}

// Path returns the configuration file path.
func (l *Loader) Path() string {
	return l.path
}

// Settings returns the merged configuration as nested maps, keyed the way
// the file spells them. Used to render 'config show'.
func (l *Loader) Settings() map[string]any {
	return l.v.AllSettings()
}

// Get returns a configuration value by dot-notation key.
func (l *Loader) Get(key string) (any, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return l.v.Get(key), nil
}

// Set writes a configuration value by dot-notation key, checking the
// value shape for duration and numeric keys before persisting.
func (l *Loader) Set(key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	if durationKeys[key] {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%w: %s=%s", ErrInvalidDuration, key, value)
		}
	}

	if numericKeys[key] {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %s=%s", ErrInvalidNumber, key, value)
		}
	}

	l.v.Set(key, value)
	return l.v.WriteConfig()
}

// writeDefault materializes the default configuration file.
func (l *Loader) writeDefault() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return l.v.SafeWriteConfigAs(l.path)
}

// expandPath replaces a leading ~ with the home directory.
func (l *Loader) expandPath(path string) string {
	switch {
	case path == "~":
		return l.homeDir
	case strings.HasPrefix(path, "~/"):
		return filepath.Join(l.homeDir, path[2:])
	}
	return path
}

// ValidateKey reports whether key names a known configuration setting.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if !validKeys[key] {
		return fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return nil
}

// collectKeys walks the mapstructure tags of t, adding each dot-joined
// key and recursing into nested structs.
func collectKeys(t reflect.Type, prefix string, out map[string]bool) {
	for i := range t.NumField() {
		field := t.Field(i)
		tag, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		out[key] = true

		if field.Type.Kind() == reflect.Struct {
			collectKeys(field.Type, key, out)
		}
	}
}
