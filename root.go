package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/garimto81/archive-analyzer/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath   string
	flagDBPath       string
	flagNASPath      string
	flagPollInterval int
	flagDebounce     int
	flagWatchMode    string
	flagJSON         bool
	flagVerbose      bool
	flagQuiet        bool
)

// resolvedCfg holds the effective configuration loaded by
// PersistentPreRunE. Available to all subcommands after the root pre-run
// phase completes.
var resolvedCfg *config.Config

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracker",
		Short: "Archive file-identity tracker",
		Long: `Keeps the catalog database synchronized with the NAS media archive.

Watches the archive for file changes, recognizes moved files by content
identity, and records every semantic event in an append-only history log.`,
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path (TOML)")
	cmd.PersistentFlags().StringVar(&flagDBPath, "db-path", "", "catalog database file")
	cmd.PersistentFlags().StringVar(&flagNASPath, "nas-path", "", "archive root on the NAS mount")
	cmd.PersistentFlags().IntVar(&flagPollInterval, "poll-interval", 0, "poll interval in seconds")
	cmd.PersistentFlags().IntVar(&flagDebounce, "debounce", 0, "debounce window in seconds")
	cmd.PersistentFlags().StringVar(&flagWatchMode, "watch-mode", "", "observation mode: poll or native")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newReconcileCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newExtractCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain and stores the result in resolvedCfg.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		DBPath:     flagDBPath,
		NASPath:    flagNASPath,
		WatchMode:  flagWatchMode,
	}

	// Only pass the interval flags if the user explicitly set them;
	// --poll-interval 0 must fail validation, not fall back silently.
	if cmd.Flags().Changed("poll-interval") {
		cli.PollInterval = &flagPollInterval
	}

	if cmd.Flags().Changed("debounce") {
		cli.Debounce = &flagDebounce
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config
// and CLI flags. Config-file log level is the baseline; --verbose and
// --quiet override it because CLI flags always win. Format "auto" picks
// JSON when stderr is not a terminal.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	useJSON := flagJSON
	if !useJSON && resolvedCfg != nil {
		switch resolvedCfg.LogFormat {
		case "json":
			useJSON = true
		case "auto":
			useJSON = !isatty.IsTerminal(os.Stderr.Fd())
		}
	}

	if useJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
