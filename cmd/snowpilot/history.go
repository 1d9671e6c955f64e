package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ahcdata/snowpilot/internal/config"
	"github.com/ahcdata/snowpilot/internal/store"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent interaction records and their sync status",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum records to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	initLogger(cfg.Log, os.Stderr)

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.ListRecent(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No interactions recorded yet.")
		return nil
	}

	for _, rec := range records {
		status := "unsynced"
		if rec.Synced {
			status = "synced"
		}
		outcome := "ok"
		if rec.ErrorMessage != nil {
			outcome = "error: " + *rec.ErrorMessage
		}
		fmt.Printf("%6d  %s  %-8s  %-40s  %s\n",
			rec.ID,
			rec.CreatedAt.Format(time.RFC3339),
			status,
			truncate(rec.Query, 40),
			outcome,
		)
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
