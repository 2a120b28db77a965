package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/garimto81/archive-analyzer/internal/archivepath"
	"github.com/garimto81/archive-analyzer/internal/extract"
)

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract PATH...",
		Short: "Parse structured-name metadata from archive paths",
		Long: `Run the metadata extractor on the given paths and print the parsed
fields. The paths are treated as strings; nothing is read from disk.
Useful for tuning the pattern tables against real archive names.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			extractor, err := extract.New()
			if err != nil {
				return err
			}

			for i, raw := range args {
				path := archivepath.Canonical(raw)
				meta := extractor.Extract(path, archivepath.Basename(path))

				if flagJSON {
					if err := printExtractJSON(path, meta); err != nil {
						return err
					}

					continue
				}

				if i > 0 {
					fmt.Println()
				}

				printExtractText(path, meta)
			}

			return nil
		},
	}
}

func printExtractJSON(path string, meta extract.Metadata) error {
	out := struct {
		Path         string   `json:"path"`
		Brand        string   `json:"brand,omitempty"`
		Year         int      `json:"year,omitempty"`
		Location     string   `json:"location,omitempty"`
		EventType    string   `json:"event_type,omitempty"`
		ContentType  string   `json:"content_type,omitempty"`
		Series       string   `json:"series,omitempty"`
		Day          string   `json:"day,omitempty"`
		Episode      string   `json:"episode,omitempty"`
		BuyIn        string   `json:"buy_in,omitempty"`
		Players      []string `json:"players,omitempty"`
		Tags         []string `json:"tags,omitempty"`
		DisplayTitle string   `json:"display_title,omitempty"`
	}{
		path, meta.Brand, meta.Year, meta.Location, meta.EventType,
		meta.ContentType, meta.Series, meta.Day, meta.Episode, meta.BuyIn,
		meta.Players, meta.Tags, meta.DisplayTitle,
	}

	return json.NewEncoder(os.Stdout).Encode(out)
}

func printExtractText(path string, meta extract.Metadata) {
	fmt.Printf("path:  %s\n", path)
	fmt.Printf("title: %s\n", meta.DisplayTitle)

	printField("brand", meta.Brand)

	if meta.Year != 0 {
		printField("year", fmt.Sprintf("%d", meta.Year))
	}

	printField("location", meta.Location)
	printField("event", meta.EventType)
	printField("content", meta.ContentType)
	printField("series", meta.Series)
	printField("day", meta.Day)
	printField("episode", meta.Episode)
	printField("buy-in", meta.BuyIn)

	if len(meta.Players) > 0 {
		printField("players", strings.Join(meta.Players, ", "))
	}

	if len(meta.Tags) > 0 {
		printField("tags", strings.Join(meta.Tags, ", "))
	}
}

func printField(name, value string) {
	if value != "" {
		fmt.Printf("  %-9s %s\n", name, value)
	}
}
