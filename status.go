package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show catalog counters and daemon state",
		Long: `Print a read-only summary of the catalog: active and deleted row
counts, total tracked bytes, history totals by event type, and whether
a tracker daemon currently holds this database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			store, err := openCatalog(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			daemonPID := runningDaemonPID(pidFilePath(resolvedCfg.DBPath))

			if flagJSON {
				out := struct {
					ActiveFiles    int64            `json:"active_files"`
					DeletedFiles   int64            `json:"deleted_files"`
					ActiveBytes    int64            `json:"active_bytes"`
					HistoryTotal   int64            `json:"history_total"`
					HistoryByEvent map[string]int64 `json:"history_by_event"`
					LastDetectedAt string           `json:"last_detected_at,omitempty"`
					LastVerifiedAt string           `json:"last_verified_at,omitempty"`
					DaemonPID      int              `json:"daemon_pid,omitempty"`
				}{
					stats.ActiveFiles, stats.DeletedFiles, stats.ActiveBytes,
					stats.HistoryTotal, stats.HistoryByEvent,
					formatStamp(stats.LastDetectedAt), formatStamp(stats.LastVerifiedAt),
					daemonPID,
				}

				return json.NewEncoder(os.Stdout).Encode(out)
			}

			fmt.Printf("database:       %s\n", resolvedCfg.DBPath)
			fmt.Printf("active files:   %s (%s)\n",
				humanize.Comma(stats.ActiveFiles), humanize.IBytes(uint64(stats.ActiveBytes)))
			fmt.Printf("deleted files:  %s\n", humanize.Comma(stats.DeletedFiles))
			fmt.Printf("history events: %s\n", humanize.Comma(stats.HistoryTotal))

			for _, event := range sortedKeys(stats.HistoryByEvent) {
				fmt.Printf("  %-12s %s\n", event, humanize.Comma(stats.HistoryByEvent[event]))
			}

			if !stats.LastDetectedAt.IsZero() {
				fmt.Printf("last event:     %s\n", humanize.Time(stats.LastDetectedAt))
			}

			if !stats.LastVerifiedAt.IsZero() {
				fmt.Printf("last reconcile: %s\n", humanize.Time(stats.LastVerifiedAt))
			}

			if daemonPID > 0 {
				fmt.Printf("daemon:         running (pid %d)\n", daemonPID)
			} else {
				fmt.Println("daemon:         not running")
			}

			return nil
		},
	}
}

// runningDaemonPID returns the pid from the daemon pidfile when that
// process is still alive, 0 otherwise.
func runningDaemonPID(pidPath string) int {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return 0
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0
	}

	// Signal 0 probes liveness without sending anything.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return 0
	}

	return pid
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.Format(time.RFC3339)
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
