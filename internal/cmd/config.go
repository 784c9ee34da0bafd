package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tagrade/tagrade/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View tagrade configuration",
	Long: `View the effective tagrade configuration or create a config file.

Without arguments, displays the current configuration.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/tagrade/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var configInitForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing config file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	settings := viper.AllSettings()
	if fetch, ok := settings["fetch"].(map[string]any); ok {
		if token, _ := fetch["token"].(string); token != "" {
			fetch["token"] = "********"
		}
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	fmt.Fprint(out, string(data))

	if _, err := config.Load(); err != nil {
		fmt.Fprintf(out, "\n# Invalid configuration:\n")
		for _, line := range strings.Split(strings.TrimSpace(err.Error()), "\n") {
			fmt.Fprintf(out, "#   %s\n", strings.TrimSpace(line))
		}
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()
	if cfgFile != "" {
		configFile = cfgFile
	}

	if _, err := os.Stat(configFile); err == nil && !configInitForce {
		return fmt.Errorf("config file already exists at %s\nUse --force to overwrite it", configFile)
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(configFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := writeDefaultConfig(f, config.Default()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Set class.code and shared.root before grading.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", config.ConfigFile())
	fmt.Fprintln(out, "  2. ./config.yaml (current directory)")
	fmt.Fprintf(out, "\nEnvironment variables: %s_* (e.g., %s_SHARED_ROOT)\n", config.EnvPrefix, config.EnvPrefix)
	return nil
}

type configEntry struct {
	key     string
	value   any
	comment string
}

type configSection struct {
	name    string
	comment string
	entries []configEntry
}

func defaultConfigSections(d *config.Config) []configSection {
	return []configSection{
		{"class", "The course being graded", []configEntry{
			{"code", d.Class.Code, "Course code; names the class directory under shared.root"},
			{"term", d.Class.Term, ""},
		}},
		{"shared", "The directory tree every assistant shares", []configEntry{
			{"root", d.Shared.Root, ""},
			{"locks_dir", d.Shared.LocksDir, ""},
			{"submissions_dir", d.Shared.SubmissionsDir, ""},
		}},
		{"roster", "", []configEntry{
			{"path", d.Roster.Path, "YAML, TOML or JSON snapshot, relative to the class directory"},
		}},
		{"locks", "", []configEntry{
			{"holder", d.Locks.Holder, "Name recorded in your locks (default: your username)"},
		}},
		{"watch", "Lock directory watcher used by 'tagrade locks browse'", []configEntry{
			{"interval_ms", d.Watch.IntervalMs, ""},
			{"use_fsnotify", d.Watch.UseFsnotify, "Poll early on filesystem events (not reliable on NFS)"},
		}},
		{"fetch", "Submission platform", []configEntry{
			{"base_url", d.Fetch.BaseURL, ""},
			{"token", d.Fetch.Token, "Prefer TAGRADE_FETCH_TOKEN over storing the token here"},
			{"max_attempts", d.Fetch.MaxAttempts, ""},
			{"retry_delay_ms", d.Fetch.RetryDelayMs, ""},
			{"timeout_seconds", d.Fetch.TimeoutSeconds, ""},
		}},
		{"logging", "", []configEntry{
			{"enabled", d.Logging.Enabled, "JSON logs in <class>/logs/<holder>.log"},
			{"level", d.Logging.Level, "debug, info, warn or error"},
			{"max_size_mb", d.Logging.MaxSizeMB, "Rotate the log file at this size (0 disables)"},
			{"max_backups", d.Logging.MaxBackups, ""},
		}},
		{"metrics", "", []configEntry{
			{"textfile", d.Metrics.Textfile, "Prometheus textfile written on exit (empty disables)"},
		}},
		{"signals", "", []configEntry{
			{"grace_ms", d.Signals.GraceMs, "How long an interrupted command may take to release its locks"},
		}},
		{"tui", "", []configEntry{
			{"theme", d.TUI.Theme, "default or mono"},
			{"show_host", d.TUI.ShowHost, ""},
		}},
	}
}

// writeDefaultConfig renders d as a commented YAML document.
func writeDefaultConfig(w io.Writer, d *config.Config) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, sec := range defaultConfigSections(d) {
		section := &yaml.Node{Kind: yaml.MappingNode}
		for _, e := range sec.entries {
			var value yaml.Node
			if err := value.Encode(e.value); err != nil {
				return err
			}
			section.Content = append(section.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: e.key, HeadComment: e.comment},
				&value,
			)
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: sec.name, HeadComment: sec.comment},
			section,
		)
	}
	doc := &yaml.Node{
		Kind:        yaml.DocumentNode,
		HeadComment: "tagrade configuration",
		Content:     []*yaml.Node{root},
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
