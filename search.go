package main

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/spf13/cobra"

	"iocdash/internal/iocdashcore"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		kind     string
		severity string
		size     int
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search indexed indicators",
		Long: `Search the indicator index. The query matches descriptions, exact
values and tags; --type and --severity narrow the results.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := iocdashcore.SearchQuery{
				Type:     iocdashcore.IndicatorType(kind),
				Severity: iocdashcore.Severity(severity),
				Size:     size,
			}
			if len(args) == 1 {
				q.Query = args[0]
			}
			if q.Type != "" && !q.Type.IsValid() {
				return fmt.Errorf("unknown indicator type %q", kind)
			}
			if q.Severity != "" && q.Severity.Rank() < 0 {
				return fmt.Errorf("unknown severity %q", severity)
			}

			index, err := bleve.Open(a.cfg.IndexPath)
			if err != nil {
				return fmt.Errorf("failed to open index %s: %w", a.cfg.IndexPath, err)
			}
			defer index.Close()

			a.logger.Debugw("Searching", "query", q.Query, "type", q.Type, "severity", q.Severity)
			result, err := iocdashcore.SearchIndicators(index, q)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.outputJSON {
				return writeJSON(out, result)
			}

			headerColor.Fprintf(out, "Search results (%d hits)\n", result.Total)
			for i, hit := range result.Hits {
				fmt.Fprintf(out, "%d. [%s] %s (score %.2f)\n", i+1, hit.Type, hit.Value, hit.Score)
				fmt.Fprintf(out, "   Document: %s  Severity: %s\n", hit.Document, hit.Severity)
				if hit.Description != "" {
					fmt.Fprintf(out, "   %s\n", hit.Description)
				}
				if len(hit.Tags) > 0 {
					infoColor.Fprintf(out, "   Tags: %s\n", strings.Join(hit.Tags, ", "))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "type", "t", "", "Filter by indicator type")
	cmd.Flags().StringVarP(&severity, "severity", "s", "", "Filter by severity")
	cmd.Flags().IntVarP(&size, "size", "n", 10, "Maximum number of hits")
	return cmd
}
