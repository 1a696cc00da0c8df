package main

import (
	"github.com/spf13/cobra"

	"iocdash/internal/iocdashcore"
)

// newIndexCmd rebuilds the search index from stored snapshots.
func newIndexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Index stored snapshots for search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := iocdashcore.NewSnapshotStore(a.cfg.DBPath, a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			index, err := iocdashcore.OpenOrCreateIndex(a.cfg.IndexPath)
			if err != nil {
				return err
			}
			defer index.Close()

			total, err := iocdashcore.IndexSnapshots(store, index)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.outputJSON {
				return writeJSON(out, map[string]int{"indexed": total})
			}
			successColor.Fprintf(out, "Indexed %d indicators into %s\n", total, a.cfg.IndexPath)
			return nil
		},
	}
}
