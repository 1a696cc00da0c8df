package main

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/spf13/cobra"

	"iocdash/internal/iocdashcore"
)

// countReport is the JSON shape of the count command.
type countReport struct {
	IndexedIndicators uint64                       `json:"indexedIndicators"`
	Collection        *iocdashcore.CollectionStats `json:"collection,omitempty"`
}

func newCountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Show index and database totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := bleve.Open(a.cfg.IndexPath)
			if err != nil {
				return fmt.Errorf("failed to open index %s: %w", a.cfg.IndexPath, err)
			}
			defer index.Close()

			count, err := index.DocCount()
			if err != nil {
				return fmt.Errorf("failed to get document count: %w", err)
			}
			report := countReport{IndexedIndicators: count}

			store, err := iocdashcore.NewSnapshotStore(a.cfg.DBPath, a.logger)
			if err != nil {
				a.logger.Warnw("Database unavailable, skipping collection stats", "error", err)
			} else {
				defer store.Close()
				if report.Collection, err = store.CollectionStats(); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if a.outputJSON {
				return writeJSON(out, report)
			}

			fmt.Fprintf(out, "Indicators in index: %d\n", report.IndexedIndicators)
			if stats := report.Collection; stats != nil {
				fmt.Fprintf(out, "Documents stored: %d\n", stats.TotalDocuments)
				fmt.Fprintf(out, "Indicators stored: %d (%d unique)\n", stats.TotalIndicators, stats.UniqueIndicators)
				for _, kind := range iocdashcore.AllIndicatorTypes {
					if n := stats.TypeFrequency[kind]; n > 0 {
						fmt.Fprintf(out, "  %-9s %d\n", kind, n)
					}
				}
			}
			return nil
		},
	}
}
