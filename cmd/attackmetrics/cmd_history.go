package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexcodex/attackmetrics/persistence"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var dbPath string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded export runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("db") {
				cfg, err := loadConfig(root)
				if err != nil {
					return err
				}
				dbPath = cfg.HistoryDB
			}
			if dbPath == "" {
				return errors.New("history database required (--db or history_db in config)")
			}
			store, err := persistence.NewSQLiteHistoryStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()
			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, run := range runs {
				fmt.Fprintf(out, "%s\t%s\t%d\t%s\n", run.ID, run.Project, run.Fetched, run.FinishedAt.Format(time.RFC3339))
				for _, f := range run.Files {
					fmt.Fprintf(out, "\t%s\t%d\t%s\n", f.Name, f.Rows, f.Checksum)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite history database")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show (0 for all)")
	return cmd
}
