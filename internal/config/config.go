package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete tagrade configuration
type Config struct {
	Class   ClassConfig   `mapstructure:"class"`
	Shared  SharedConfig  `mapstructure:"shared"`
	Roster  RosterConfig  `mapstructure:"roster"`
	Locks   LocksConfig   `mapstructure:"locks"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Signals SignalsConfig `mapstructure:"signals"`
	TUI     TUIConfig     `mapstructure:"tui"`
}

// ClassConfig identifies the course being graded
type ClassConfig struct {
	// Code is the course code, e.g. "CS1400". It names the per-class
	// directory under shared.root.
	Code string `mapstructure:"code"`
	// Term is informational, e.g. "Fall 2026"
	Term string `mapstructure:"term"`
}

// SharedConfig locates the shared data tree every grader sees
type SharedConfig struct {
	// Root is the shared filesystem directory holding one subdirectory per class
	Root string `mapstructure:"root"`
	// LocksDir overrides the locks directory name (default: "locks")
	LocksDir string `mapstructure:"locks_dir"`
	// SubmissionsDir overrides the submissions directory name (default: "submissions")
	SubmissionsDir string `mapstructure:"submissions_dir"`
}

// RosterConfig points at the roster snapshot
type RosterConfig struct {
	// Path to a .yaml, .yml, .toml or .json snapshot. Relative paths are
	// resolved against the class directory.
	Path string `mapstructure:"path"`
}

// LocksConfig controls lock identity
type LocksConfig struct {
	// Holder is the name recorded in every lock this process creates.
	// Empty means the operating system username.
	Holder string `mapstructure:"holder"`
}

// WatchConfig controls the lock directory watcher
type WatchConfig struct {
	IntervalMs int `mapstructure:"interval_ms"`
	// UseFsnotify schedules an early poll on filesystem events
	UseFsnotify bool `mapstructure:"use_fsnotify"`
}

// FetchConfig configures the submission platform client
type FetchConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Token          string `mapstructure:"token"`
	MaxAttempts    int    `mapstructure:"max_attempts"`
	RetryDelayMs   int    `mapstructure:"retry_delay_ms"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled writes JSON logs to <class>/logs/<holder>.log
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// MaxSizeMB rotates the log file once it reaches this size (0 disables)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is how many rotated log files to keep
	MaxBackups int `mapstructure:"max_backups"`
}

// MetricsConfig controls the Prometheus textfile export
type MetricsConfig struct {
	// Textfile is written on exit when non-empty, for node_exporter's
	// textfile collector.
	Textfile string `mapstructure:"textfile"`
}

// SignalsConfig controls interrupt recovery
type SignalsConfig struct {
	// GraceMs is how long a running command may take to unwind after an
	// interrupt before locks are released from the signal handler.
	GraceMs int `mapstructure:"grace_ms"`
}

// TUIConfig controls the lock browser
type TUIConfig struct {
	// Theme is the color theme: "default" or "mono"
	Theme string `mapstructure:"theme"`
	// ShowHost adds the host+pid column to the lock list
	ShowHost bool `mapstructure:"show_host"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Shared: SharedConfig{
			Root:           "/srv/tagrade",
			LocksDir:       "locks",
			SubmissionsDir: "submissions",
		},
		Roster: RosterConfig{
			Path: "roster.yaml",
		},
		Watch: WatchConfig{
			IntervalMs:  1000,
			UseFsnotify: false,
		},
		Fetch: FetchConfig{
			MaxAttempts:    3,
			RetryDelayMs:   2000,
			TimeoutSeconds: 30,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Signals: SignalsConfig{
			GraceMs: 3000,
		},
		TUI: TUIConfig{
			Theme: "default",
		},
	}
}

// Interval returns the poll interval as a time.Duration
func (c *WatchConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// RetryDelay returns the pause between fetch attempts
func (c *FetchConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// Timeout returns the per-request HTTP timeout
func (c *FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Grace returns the signal grace period
func (c *SignalsConfig) Grace() time.Duration {
	return time.Duration(c.GraceMs) * time.Millisecond
}

// ClassDir returns <shared.root>/<class.code>
func (c *Config) ClassDir() string {
	return filepath.Join(c.Shared.Root, c.Class.Code)
}

// RosterPath resolves roster.path against the class directory
func (c *Config) RosterPath() string {
	if c.Roster.Path == "" || filepath.IsAbs(c.Roster.Path) {
		return c.Roster.Path
	}
	return filepath.Join(c.ClassDir(), c.Roster.Path)
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("class.code", defaults.Class.Code)
	viper.SetDefault("class.term", defaults.Class.Term)

	viper.SetDefault("shared.root", defaults.Shared.Root)
	viper.SetDefault("shared.locks_dir", defaults.Shared.LocksDir)
	viper.SetDefault("shared.submissions_dir", defaults.Shared.SubmissionsDir)

	viper.SetDefault("roster.path", defaults.Roster.Path)

	viper.SetDefault("locks.holder", defaults.Locks.Holder)

	viper.SetDefault("watch.interval_ms", defaults.Watch.IntervalMs)
	viper.SetDefault("watch.use_fsnotify", defaults.Watch.UseFsnotify)

	viper.SetDefault("fetch.base_url", defaults.Fetch.BaseURL)
	viper.SetDefault("fetch.token", defaults.Fetch.Token)
	viper.SetDefault("fetch.max_attempts", defaults.Fetch.MaxAttempts)
	viper.SetDefault("fetch.retry_delay_ms", defaults.Fetch.RetryDelayMs)
	viper.SetDefault("fetch.timeout_seconds", defaults.Fetch.TimeoutSeconds)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	viper.SetDefault("metrics.textfile", defaults.Metrics.Textfile)

	viper.SetDefault("signals.grace_ms", defaults.Signals.GraceMs)

	viper.SetDefault("tui.theme", defaults.TUI.Theme)
	viper.SetDefault("tui.show_host", defaults.TUI.ShowHost)
}

// EnvPrefix is the prefix of environment variable overrides,
// e.g. TAGRADE_LOCKS_HOLDER for locks.holder.
const EnvPrefix = "TAGRADE"

// BindEnv enables environment variable overrides for every config key
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when the
// loaded configuration is invalid
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tagrade")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tagrade"
	}
	return filepath.Join(home, ".config", "tagrade")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
