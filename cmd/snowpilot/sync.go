package main

import (
	"fmt"
	"os"

	"github.com/ahcdata/snowpilot/internal/config"
	"github.com/ahcdata/snowpilot/internal/replicate"
	"github.com/ahcdata/snowpilot/internal/store"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replicate unsynced interaction records to the warehouse now",
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
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

	warehouseDB, err := openWarehouse(cfg.Snowflake)
	if err != nil {
		return err
	}
	defer warehouseDB.Close()

	appender, err := replicate.NewSnowflakeAppender(warehouseDB, cfg.Sync.Table)
	if err != nil {
		return err
	}
	engine := replicate.NewEngine(db, appender, cfg.Snowflake, cfg.Sync)

	result, err := engine.SyncNow(cmd.Context())
	if err != nil {
		return err
	}

	if result.Synced == 0 {
		fmt.Println("No new data to sync.")
		return nil
	}
	fmt.Printf("Synced %d records (batch %s).\n", result.Synced, result.BatchID)
	return nil
}
