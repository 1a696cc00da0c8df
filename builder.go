package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"iocdash/internal/bootstrap"
	"iocdash/internal/iocdashcore"
)

// newParseCmd parses a file or directory and optionally keeps snapshots.
func newParseCmd(a *app) *cobra.Command {
	var (
		outFile string
		save    bool
	)

	cmd := &cobra.Command{
		Use:   "parse [path]",
		Short: "Parse IOC documents",
		Long: `Parse one AsciiDoc document, or every matching document below a
directory, and report the extracted indicators. Without a path the
configured data directory is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.DataDir
			if len(args) == 1 {
				path = args[0]
			}

			startTime := time.Now()
			docs, err := bootstrap.NewIngester(a.cfg, a.logger).IngestPath(context.Background(), path)
			if err != nil {
				return err
			}

			if save {
				if err := saveSnapshots(a, docs); err != nil {
					return err
				}
			}

			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", outFile, err)
				}
				defer f.Close()
				if err := writeJSON(f, docs); err != nil {
					return fmt.Errorf("failed to export results: %w", err)
				}
				a.logger.Infow("Results exported", "file", outFile)
			}

			out := cmd.OutOrStdout()
			if a.outputJSON {
				return writeJSON(out, docs)
			}
			renderDocuments(out, docs)
			successColor.Fprintf(out, "\nProcessed %d documents in %v\n", len(docs), time.Since(startTime).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "Export results as JSON to this file")
	cmd.Flags().BoolVar(&save, "save", false, "Save snapshots to the database")
	return cmd
}

func saveSnapshots(a *app, docs []iocdashcore.IngestedDocument) error {
	store, err := iocdashcore.NewSnapshotStore(a.cfg.DBPath, a.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, doc := range docs {
		snap := &iocdashcore.DocumentSnapshot{Name: doc.Name, Checksum: doc.Checksum, Document: doc.Document}
		if err := store.SaveDocument(snap); err != nil {
			return fmt.Errorf("failed to save %s: %w", doc.Name, err)
		}
	}
	a.logger.Infow("Snapshots saved", "count", len(docs), "db", a.cfg.DBPath)
	return nil
}

func renderDocuments(w io.Writer, docs []iocdashcore.IngestedDocument) {
	if len(docs) == 0 {
		warningColor.Fprintln(w, "No documents found")
		return
	}

	for i, doc := range docs {
		fmt.Fprintln(w, strings.Repeat("=", 60))
		headerColor.Fprintf(w, "Document %d: %s\n", i+1, doc.Name)
		stats := doc.Document.FileStats
		fmt.Fprintf(w, "Lines: %d (content %d)  Sections: %d  Tables: %d\n",
			stats.TotalLines, stats.ContentLines, stats.SectionsFound, stats.TablesFound)

		infoColor.Fprintf(w, "Indicators found: %d\n", doc.Document.TotalCount)
		for _, kind := range iocdashcore.AllIndicatorTypes {
			if count := doc.Document.Categories[kind]; count > 0 {
				fmt.Fprintf(w, "  %-9s %d\n", kind, count)
			}
		}
	}
}
