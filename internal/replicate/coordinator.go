package replicate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ahcdata/snowpilot/internal/config"
)

// Coordinator drives the engine in serve mode: a periodic tick retries
// anything left unsynced, and Notify wakes the loop right after a write.
// Both paths funnel into the same SyncNow, which is idempotent when the
// outbox is empty.
type Coordinator struct {
	engine   *Engine
	interval time.Duration
	notify   chan struct{}
}

// NewCoordinator creates a coordinator around the given engine.
func NewCoordinator(engine *Engine, interval time.Duration) *Coordinator {
	return &Coordinator{
		engine:   engine,
		interval: interval,
		notify:   make(chan struct{}, 1),
	}
}

// Notify requests a replication pass without blocking the caller.
// A pass already pending absorbs the request.
func (c *Coordinator) Notify() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// TriggerSync implements the session's post-write trigger by waking the
// loop. The pass runs on the coordinator goroutine, so an interactive turn
// never waits on the remote.
func (c *Coordinator) TriggerSync(ctx context.Context) {
	c.Notify()
}

// Run starts the coordinator loop. It blocks until ctx is cancelled.
// A pass runs immediately on start so records left over from a previous
// process are replicated promptly rather than waiting a full interval.
func (c *Coordinator) Run(ctx context.Context) {
	slog.Info("sync coordinator started",
		"component", "worker",
		"worker", "sync-coordinator",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync coordinator stopped",
				"component", "worker",
				"worker", "sync-coordinator",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.pass(ctx)
		case <-c.notify:
			c.pass(ctx)
		}
	}
}

// pass runs one replication attempt, logging failures. Replication is a
// background concern: errors here never surface to the interactive user.
func (c *Coordinator) pass(ctx context.Context) {
	result, err := c.engine.SyncNow(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return // Graceful shutdown
		}
		level := slog.LevelError
		if errors.Is(err, config.ErrSnowflakeIncomplete) {
			// Configuration gaps leave the batch intact for a later retry.
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "replication pass failed",
			"component", "worker",
			"worker", "sync-coordinator",
			"error", err,
		)
		return
	}

	if result.Synced > 0 {
		slog.Debug("replication pass completed",
			"component", "worker",
			"worker", "sync-coordinator",
			"records", result.Synced,
			"batch_id", result.BatchID,
		)
	}
}
