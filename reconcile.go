package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/garimto81/archive-analyzer/internal/tracker"
)

func newReconcileCmd() *cobra.Command {
	var (
		dryRun bool
		intake bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one full reconciliation sweep",
		Long: `Check every active catalog row against the filesystem, soft-deleting
rows whose paths are gone. With --intake, also walk the archive and
catalog video files the tracker has never seen.

With --dry-run, report what would change without writing anything.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()
			ctx := shutdownContext(cmd.Context(), logger)

			store, err := openCatalog(ctx, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			tr, err := tracker.New(resolvedCfg, store, logger)
			if err != nil {
				return err
			}

			report, result, err := tr.Reconcile(ctx, tracker.ReconcileOptions{
				DryRun: dryRun,
				Intake: intake,
			})
			if err != nil {
				return err
			}

			printReconcileReport(report, dryRun)
			printResult(result)

			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without queueing events")
	cmd.Flags().BoolVar(&intake, "intake", false, "also catalog unknown on-disk files")

	return cmd
}

func printReconcileReport(report *tracker.ReconcileReport, dryRun bool) {
	if flagJSON {
		out := struct {
			Checked  int  `json:"checked"`
			Missing  int  `json:"missing"`
			Verified int  `json:"verified"`
			Orphans  int  `json:"orphans"`
			DryRun   bool `json:"dry_run"`
		}{report.Checked, report.Missing, report.Verified, report.Orphans, dryRun}

		json.NewEncoder(os.Stdout).Encode(out)

		return
	}

	suffix := ""
	if dryRun {
		suffix = " (dry run)"
	}

	fmt.Printf("checked %d, verified %d, missing %d, orphans %d%s\n",
		report.Checked, report.Verified, report.Missing, report.Orphans, suffix)
}
