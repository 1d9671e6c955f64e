// Package replicate moves interaction records from the local store to the
// remote warehouse using an outbox pattern. Each record is UNSYNCED until
// a remote append is acknowledged, then SYNCED; there is no intermediate
// persisted state, so a crash mid-replication simply leaves the batch
// UNSYNCED for the next run. Delivery is at-least-once: the remote side is
// expected to tolerate duplicate appends.
package replicate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ahcdata/snowpilot/internal/config"
	"github.com/ahcdata/snowpilot/internal/types"
	"github.com/oklog/ulid/v2"
	"github.com/sethvargo/go-retry"
)

// ErrRemoteAppend indicates the remote append failed or timed out.
// Records stay unsynced and are retried on the next invocation.
var ErrRemoteAppend = errors.New("remote append failed")

// Store is the subset of the record store the engine needs.
type Store interface {
	ListUnsynced(ctx context.Context, limit int) ([]types.InteractionRecord, error)
	MarkSynced(ctx context.Context, ids []int64) error
}

// RemoteAppender bulk-appends a batch of records to the remote target.
type RemoteAppender interface {
	AppendBatch(ctx context.Context, records []types.InteractionRecord) error
}

// Result reports a completed sync invocation.
type Result struct {
	Synced  int
	BatchID string
}

// Engine is the replication engine. SyncNow is safe to call concurrently
// and repeatedly: a mutex serializes the read-then-mark sequence so two
// triggers can never both mark a batch that only one of them delivered.
type Engine struct {
	store     Store
	remote    RemoteAppender
	snowflake config.SnowflakeConfig

	batchSize     int
	appendTimeout time.Duration
	maxRetries    uint64

	mu sync.Mutex
}

// NewEngine creates a replication engine.
func NewEngine(store Store, remote RemoteAppender, snowflake config.SnowflakeConfig, syncCfg config.SyncConfig) *Engine {
	return &Engine{
		store:         store,
		remote:        remote,
		snowflake:     snowflake,
		batchSize:     syncCfg.BatchSize,
		appendTimeout: time.Duration(syncCfg.AppendTimeout),
		maxRetries:    syncCfg.MaxRetries,
	}
}

// SyncNow runs one replication pass:
//
//  1. read the current unsynced batch;
//  2. if empty, return without touching the remote;
//  3. verify the remote configuration is complete;
//  4. bulk-append the batch, with timeout and bounded backoff;
//  5. only after the append is acknowledged, mark the batch synced.
//
// If the append fails nothing is marked, so the batch either fully
// advances or not at all from the local store's perspective.
func (e *Engine) SyncNow(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	records, err := e.store.ListUnsynced(ctx, e.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list unsynced records: %w", err)
	}
	if len(records) == 0 {
		return &Result{Synced: 0}, nil
	}

	if err := e.snowflake.Validate(); err != nil {
		return nil, err
	}

	batchID := ulid.Make().String()

	appendCtx, cancel := context.WithTimeout(ctx, e.appendTimeout)
	defer cancel()

	backoff := retry.WithMaxRetries(e.maxRetries, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(appendCtx, backoff, func(ctx context.Context) error {
		if err := e.remote.AppendBatch(ctx, records); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		slog.Warn("remote append failed, batch stays unsynced",
			"component", "replicate",
			"batch_id", batchID,
			"records", len(records),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrRemoteAppend, err)
	}

	ids := make([]int64, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	if err := e.store.MarkSynced(ctx, ids); err != nil {
		// The append succeeded, so these records will be delivered again
		// on the next run. Acceptable under at-least-once.
		return nil, fmt.Errorf("mark batch synced: %w", err)
	}

	slog.Info("batch replicated",
		"component", "replicate",
		"batch_id", batchID,
		"records", len(records),
	)

	return &Result{Synced: len(records), BatchID: batchID}, nil
}

// TriggerSync runs a synchronous pass, absorbing failures: the batch stays
// queued for a later retry. Used where no background coordinator runs.
func (e *Engine) TriggerSync(ctx context.Context) {
	if _, err := e.SyncNow(ctx); err != nil {
		slog.Warn("post-write sync failed",
			"component", "replicate",
			"error", err,
		)
	}
}
