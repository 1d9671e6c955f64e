package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ahcdata/snowpilot/internal/action"
	"github.com/ahcdata/snowpilot/internal/api"
	"github.com/ahcdata/snowpilot/internal/config"
	"github.com/ahcdata/snowpilot/internal/llm"
	"github.com/ahcdata/snowpilot/internal/replicate"
	"github.com/ahcdata/snowpilot/internal/session"
	"github.com/ahcdata/snowpilot/internal/store"
	"github.com/ahcdata/snowpilot/internal/warehouse"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant as an HTTP service",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	initLogger(cfg.Log, os.Stdout)
	slog.Info("configuration loaded")

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	// Deferred so error returns below release the handle too; on the
	// graceful path this runs after the workers have drained.
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("store close error", "error", err)
		}
	}()
	slog.Info("store initialized", "path", cfg.Database.Path)

	warehouseDB, err := openWarehouse(cfg.Snowflake)
	if err != nil {
		return err
	}
	defer warehouseDB.Close()

	adapter := warehouse.New(warehouseDB)
	registry := action.NewRegistry(warehouse.NewQueryCapability(adapter))

	schema, err := adapter.SchemaSnapshot(ctx)
	if err != nil {
		slog.Warn("schema snapshot failed, continuing without catalog",
			"error", err)
	}

	appender, err := replicate.NewSnowflakeAppender(warehouseDB, cfg.Sync.Table)
	if err != nil {
		return err
	}
	engine := replicate.NewEngine(db, appender, cfg.Snowflake, cfg.Sync)
	coordinator := replicate.NewCoordinator(engine, time.Duration(cfg.Sync.Interval))

	completer := llm.NewClient(cfg.LLM)
	// The coordinator is the session's trigger here: an ask wakes the sync
	// loop instead of running a pass inline on the request path.
	sess := session.New(completer, registry, db, coordinator, schema)

	handler := api.NewHandler(sess, engine, db, cfg.Server.APIKey, cfg.LLM.Model, Version)
	router := api.NewRouter(handler)
	slog.Info("router initialized")

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	var wg sync.WaitGroup
	startWorker(ctx, &wg, "sync-coordinator", coordinator.Run)

	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	wg.Wait()

	slog.Info("shutdown complete")
	return nil
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
