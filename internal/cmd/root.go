package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tagrade/tagrade/internal/app"
	"github.com/tagrade/tagrade/internal/config"
	"github.com/tagrade/tagrade/internal/errors"
)

var rootCmd = &cobra.Command{
	Use:   "tagrade",
	Short: "Grading assistant with shared submission locks",
	Long: `tagrade downloads student submissions for grading and keeps teaching
assistants who share a filesystem from grading the same student, or
answering the same student's e-mail, at the same time.

Every grading session takes a lock in <shared.root>/<class>/locks that the
other assistants see immediately. Locks are released when the session ends,
including on Ctrl-C; 'tagrade locks' cleans up after crashed sessions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	cfgFile    string
	holderFlag string
	classFlag  string

	// configErr is set when an explicitly requested config file could not
	// be read.
	configErr error

	// appOptions are passed to every app.New; tests use it to swap the
	// fetcher and logger.
	appOptions []app.Option
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// PrintError writes an error returned by Execute to w and returns the exit
// status. Errors below error severity are labelled with it.
func PrintError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	switch sev := errors.GetSeverity(err); sev {
	case errors.SeverityError, errors.SeverityCritical:
		fmt.Fprintf(w, "tagrade: %v\n", err)
	default:
		fmt.Fprintf(w, "tagrade: %s: %v\n", sev, err)
	}
	if errors.Is(err, app.ErrInterrupted) {
		return app.ExitInterrupted
	}
	return 1
}

// SetVersion sets the string printed by --version.
func SetVersion(v string) {
	if v == "" {
		v = "dev"
	}
	rootCmd.Version = v
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.config/tagrade/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&holderFlag, "holder", "", "name recorded in your locks (default: locks.holder or your username)")
	rootCmd.PersistentFlags().StringVar(&classFlag, "class", "", "class code (overrides class.code)")
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()
	configErr = nil

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	// e.g. TAGRADE_SHARED_ROOT for shared.root
	config.BindEnv()

	_ = viper.BindPFlag("locks.holder", rootCmd.PersistentFlags().Lookup("holder"))
	_ = viper.BindPFlag("class.code", rootCmd.PersistentFlags().Lookup("class"))

	// A missing default config file is fine; a missing --config is not.
	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		configErr = err
	}
}

// newApp loads and validates the configuration and wires the process
// context from it.
func newApp() (*app.App, error) {
	if configErr != nil {
		return nil, configErr
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, appOptions...)
}

// runApp runs fn under signal handling: an interrupt cancels ctx, waits for
// fn's releases and then removes anything this holder still has locked.
func runApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) (err error) {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); err == nil {
			err = cerr
		}
	}()

	return a.Run(cmd.Context(), func(ctx context.Context) error {
		return fn(ctx, a)
	})
}

// withApp is runApp without signal recovery, for commands that never take
// locks themselves.
func withApp(fn func(a *app.App) error) (err error) {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(a)
}
