package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/garimto81/archive-analyzer/internal/catalog"
	"github.com/garimto81/archive-analyzer/internal/tracker"
)

func newRunCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the archive and apply changes to the catalog",
		Long: `Start the tracker daemon: observe the archive, debounce raw events,
and apply semantic changes to the catalog until interrupted.

With --once, wait one poll interval plus the debounce window, drain,
print the result counters, and exit. Suitable for cron.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()
			ctx := shutdownContext(cmd.Context(), logger)

			store, err := openCatalog(ctx, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			// One daemon per database. The pidfile lock makes a second
			// `tracker run` against the same catalog fail fast.
			cleanup, err := writePIDFile(pidFilePath(resolvedCfg.DBPath))
			if err != nil {
				return err
			}
			defer cleanup()

			tr, err := tracker.New(resolvedCfg, store, logger)
			if err != nil {
				return err
			}

			var result *tracker.Result
			if once {
				result, err = tr.RunOnce(ctx)
			} else {
				result, err = tr.Run(ctx)
			}

			if result != nil {
				printResult(result)
			}

			return err
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run one poll cycle, drain, and exit")

	return cmd
}

// openCatalog opens the configured database, creating its directory on
// first use.
func openCatalog(ctx context.Context, logger *slog.Logger) (*catalog.Store, error) {
	dbPath := resolvedCfg.DBPath

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	store, err := catalog.Open(ctx, dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	return store, nil
}

// pidFilePath derives the daemon pidfile from the database location, so
// the lock scope matches the resource being guarded.
func pidFilePath(dbPath string) string {
	return dbPath + ".pid"
}

// printResult writes the per-run counters to stdout.
func printResult(result *tracker.Result) {
	if flagJSON {
		out := struct {
			Created    int      `json:"created"`
			Updated    int      `json:"updated"`
			Moved      int      `json:"moved"`
			Deleted    int      `json:"deleted"`
			Reanimated int      `json:"reanimated"`
			Errors     int      `json:"errors"`
			ErrorList  []string `json:"error_list,omitempty"`
		}{result.Created, result.Updated, result.Moved, result.Deleted,
			result.Reanimated, result.Errors, result.ErrorList}

		json.NewEncoder(os.Stdout).Encode(out)

		return
	}

	fmt.Printf("created %d, updated %d, moved %d, deleted %d, reanimated %d, errors %d\n",
		result.Created, result.Updated, result.Moved, result.Deleted,
		result.Reanimated, result.Errors)

	for _, line := range result.ErrorList {
		fmt.Printf("  error: %s\n", line)
	}
}
