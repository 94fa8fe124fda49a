package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/abdul-hamid-achik/hitcall/packages/core/config"
	"github.com/abdul-hamid-achik/hitcall/packages/store"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	cfgFileFlag string
	verboseFlag bool

	// Set by loadConfig before any command runs.
	appConfig = config.DefaultConfig()
	homeDir   string
	logger    = slog.New(slog.NewTextHandler(io.Discard, nil))
)

var rootCmd = &cobra.Command{
	Use:   "hitcall",
	Short: "Run API calls described in a file. Keep the tokens they return.",
	Long: `hitcall executes one request from a JSON or YAML descriptor, prints the
response and saves selected response fields to disk. Saved values are sent
back as bearer credentials or substituted into later request bodies.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if !errors.As(err, &ee) || !ee.reported {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFileFlag, "config", "", "config file (default is $HOME/.hitcall.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Verbose output and debug logging")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return withExitCode(ExitUsageError, err)
	})

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(varsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads .env, the config file and the environment, then builds
// the diagnostic logger.
func loadConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv("."); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	}

	home, err := homedir.Dir()
	if err != nil {
		return withExitCode(ExitConfigError, fmt.Errorf("finding home directory: %w", err))
	}
	homeDir = home

	cfg, err := config.Load(cfgFileFlag, home)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	appConfig = cfg

	level, err := logLevel(cfg.LogLevel, verboseFlag || cfg.Verbose)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	if cfg.File != "" {
		logger.Debug("config loaded", "file", cfg.File)
	} else {
		logger.Debug("no config file", "default", config.DefaultPath(home))
	}
	return nil
}

func logLevel(name string, verbose bool) (slog.Level, error) {
	if verbose {
		return slog.LevelDebug, nil
	}
	var level slog.Level
	if name == "" {
		return slog.LevelWarn, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid logLevel %q: %w", name, err)
	}
	return level, nil
}

func newStore() *store.Store {
	return store.New(homeDir, store.WithLogger(logger))
}
