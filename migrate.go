package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/garimto81/archive-analyzer/internal/catalog"
)

func newMigrateCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade the catalog schema",
		Long: `Bring the catalog database schema current. A timestamped backup copy
of the database file is taken first, legacy tables get their missing
columns added, and pending versioned migrations are applied.

With --dry-run, list what would change without touching the database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			result, err := catalog.Migrate(cmd.Context(), resolvedCfg.DBPath, dryRun, logger)
			if err != nil {
				return fmt.Errorf("migrating %s: %w", resolvedCfg.DBPath, err)
			}

			printMigrateResult(result)

			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report pending changes without applying")

	return cmd
}

func printMigrateResult(result *catalog.MigrateResult) {
	if flagJSON {
		out := struct {
			BackupPath   string   `json:"backup_path,omitempty"`
			ColumnsAdded []string `json:"columns_added,omitempty"`
			Migrations   []string `json:"migrations,omitempty"`
			DryRun       bool     `json:"dry_run"`
		}{result.BackupPath, result.ColumnsAdded, result.Pending, result.DryRun}

		json.NewEncoder(os.Stdout).Encode(out)

		return
	}

	verb := "applied"
	if result.DryRun {
		verb = "pending"
	}

	if result.BackupPath != "" {
		fmt.Printf("backup: %s\n", result.BackupPath)
	}

	for _, col := range result.ColumnsAdded {
		fmt.Printf("column %s: %s\n", verb, col)
	}

	for _, src := range result.Pending {
		fmt.Printf("migration %s: %s\n", verb, src)
	}

	if result.BackupPath == "" && len(result.ColumnsAdded) == 0 && len(result.Pending) == 0 {
		fmt.Println("schema is current")
	}
}
