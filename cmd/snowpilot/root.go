package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ahcdata/snowpilot/internal/action"
	"github.com/ahcdata/snowpilot/internal/config"
	"github.com/ahcdata/snowpilot/internal/llm"
	"github.com/ahcdata/snowpilot/internal/replicate"
	"github.com/ahcdata/snowpilot/internal/session"
	"github.com/ahcdata/snowpilot/internal/store"
	"github.com/ahcdata/snowpilot/internal/warehouse"
	sf "github.com/snowflakedb/gosnowflake"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "snowpilot",
	Short: "Snowpilot - natural-language warehouse assistant with a durable audit log",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(historyCmd)
}

// runChat runs the interactive chat loop. Every turn prints a response,
// errors included, and writes exactly one interaction record.
func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// Interactive mode logs to stderr so the conversation stays readable.
	initLogger(cfg.Log, os.Stderr)

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Database.Path)

	warehouseDB, err := openWarehouse(cfg.Snowflake)
	if err != nil {
		return err
	}
	defer warehouseDB.Close()

	adapter := warehouse.New(warehouseDB)
	registry := action.NewRegistry(warehouse.NewQueryCapability(adapter))

	// The schema snapshot is fetched once per session. A failure here is
	// survivable: the model just works without catalog guidance.
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

	completer := llm.NewClient(cfg.LLM)
	sess := session.New(completer, registry, db, engine, schema)

	fmt.Println("Snowpilot. Type your question, or exit/quit to leave.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		turn, err := sess.Ask(ctx, line)
		if err != nil {
			// Record write failed: the interaction may be lost.
			fmt.Printf("Error: interaction could not be recorded: %s\n", err)
			continue
		}
		fmt.Println(turn.Display())
	}

	fmt.Printf("Total tokens used in this session: %d\n", sess.TotalTokens())
	return scanner.Err()
}

// openWarehouse builds a pooled warehouse handle from configuration.
// sql.Open does not dial, so connection failures surface per statement.
func openWarehouse(cfg config.SnowflakeConfig) (*sql.DB, error) {
	dsn, err := sf.DSN(&sf.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
		Role:      cfg.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("build warehouse DSN: %w", err)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	return db, nil
}

// initLogger installs the default slog logger per configuration.
func initLogger(cfg config.LogConfig, w *os.File) {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
