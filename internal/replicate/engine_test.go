package replicate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ahcdata/snowpilot/internal/config"
	"github.com/ahcdata/snowpilot/internal/types"
)

// fakeStore is an in-memory outbox.
type fakeStore struct {
	records []types.InteractionRecord
	listErr error
	markErr error
}

func (f *fakeStore) ListUnsynced(ctx context.Context, limit int) ([]types.InteractionRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var unsynced []types.InteractionRecord
	for _, rec := range f.records {
		if !rec.Synced {
			unsynced = append(unsynced, rec)
			if len(unsynced) == limit {
				break
			}
		}
	}
	return unsynced, nil
}

func (f *fakeStore) MarkSynced(ctx context.Context, ids []int64) error {
	if f.markErr != nil {
		return f.markErr
	}
	marked := make(map[int64]bool, len(ids))
	for _, id := range ids {
		marked[id] = true
	}
	for i := range f.records {
		if marked[f.records[i].ID] {
			f.records[i].Synced = true
		}
	}
	return nil
}

// fakeRemote records every append and can be forced to fail.
type fakeRemote struct {
	batches [][]types.InteractionRecord
	fail    bool
}

func (f *fakeRemote) AppendBatch(ctx context.Context, records []types.InteractionRecord) error {
	if f.fail {
		return errors.New("connection refused")
	}
	batch := make([]types.InteractionRecord, len(records))
	copy(batch, records)
	f.batches = append(f.batches, batch)
	return nil
}

func validSnowflake() config.SnowflakeConfig {
	return config.SnowflakeConfig{
		Account:   "acct",
		User:      "user",
		Password:  "secret",
		Database:  "PRODUCTS",
		Schema:    "PRODUCT",
		Warehouse: "COMPUTE_WH",
	}
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		Table:         "QUERY_RESULT_LOG",
		BatchSize:     100,
		AppendTimeout: config.Duration(2 * time.Second),
		MaxRetries:    0, // no backoff delays in tests
	}
}

func unsyncedRecords(n int) []types.InteractionRecord {
	records := make([]types.InteractionRecord, n)
	for i := range records {
		records[i] = types.InteractionRecord{ID: int64(i + 1), Query: "q", RawResponse: "raw"}
	}
	return records
}

func TestSyncNow_EmptyOutboxSkipsRemote(t *testing.T) {
	remote := &fakeRemote{}
	engine := NewEngine(&fakeStore{}, remote, validSnowflake(), testSyncConfig())

	result, err := engine.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("SyncNow() error = %v", err)
	}
	if result.Synced != 0 {
		t.Errorf("Synced = %d, want 0", result.Synced)
	}
	if len(remote.batches) != 0 {
		t.Error("idle pass must make no remote call")
	}
}

func TestSyncNow_MarksBatchAfterAppend(t *testing.T) {
	store := &fakeStore{records: unsyncedRecords(3)}
	remote := &fakeRemote{}
	engine := NewEngine(store, remote, validSnowflake(), testSyncConfig())

	result, err := engine.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("SyncNow() error = %v", err)
	}
	if result.Synced != 3 {
		t.Errorf("Synced = %d, want 3", result.Synced)
	}
	if result.BatchID == "" {
		t.Error("successful pass should carry a batch id")
	}

	if len(remote.batches) != 1 {
		t.Fatalf("remote appends = %d, want 1 bulk call", len(remote.batches))
	}
	for i, rec := range remote.batches[0] {
		if rec.ID != int64(i+1) {
			t.Errorf("batch order broken at %d: id %d", i, rec.ID)
		}
	}

	for _, rec := range store.records {
		if !rec.Synced {
			t.Errorf("record %d not marked synced", rec.ID)
		}
	}
}

func TestSyncNow_SecondCallIsNoOp(t *testing.T) {
	store := &fakeStore{records: unsyncedRecords(2)}
	remote := &fakeRemote{}
	engine := NewEngine(store, remote, validSnowflake(), testSyncConfig())

	if _, err := engine.SyncNow(context.Background()); err != nil {
		t.Fatalf("first SyncNow() error = %v", err)
	}

	result, err := engine.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("second SyncNow() error = %v", err)
	}
	if result.Synced != 0 {
		t.Errorf("second pass Synced = %d, want 0", result.Synced)
	}
	if len(remote.batches) != 1 {
		t.Errorf("remote appends = %d, want no second call", len(remote.batches))
	}
}

func TestSyncNow_AppendFailureMarksNothing(t *testing.T) {
	store := &fakeStore{records: unsyncedRecords(3)}
	remote := &fakeRemote{fail: true}
	engine := NewEngine(store, remote, validSnowflake(), testSyncConfig())

	_, err := engine.SyncNow(context.Background())
	if !errors.Is(err, ErrRemoteAppend) {
		t.Fatalf("error = %v, want ErrRemoteAppend", err)
	}

	for _, rec := range store.records {
		if rec.Synced {
			t.Errorf("record %d marked synced despite append failure", rec.ID)
		}
	}

	// Remote recovers: the retried pass syncs exactly the stranded batch.
	remote.fail = false
	result, err := engine.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("retry SyncNow() error = %v", err)
	}
	if result.Synced != 3 {
		t.Errorf("retry Synced = %d, want 3", result.Synced)
	}
}

func TestSyncNow_IncompleteConfigAbortsBeforeRemote(t *testing.T) {
	store := &fakeStore{records: unsyncedRecords(1)}
	remote := &fakeRemote{}
	incomplete := validSnowflake()
	incomplete.Password = ""
	incomplete.Warehouse = ""
	engine := NewEngine(store, remote, incomplete, testSyncConfig())

	_, err := engine.SyncNow(context.Background())
	if !errors.Is(err, config.ErrSnowflakeIncomplete) {
		t.Fatalf("error = %v, want ErrSnowflakeIncomplete", err)
	}

	if len(remote.batches) != 0 {
		t.Error("incomplete configuration must not reach the remote")
	}
	if store.records[0].Synced {
		t.Error("incomplete configuration must not mutate sync state")
	}
}

func TestTriggerSync_AbsorbsFailure(t *testing.T) {
	store := &fakeStore{records: unsyncedRecords(2)}
	remote := &fakeRemote{fail: true}
	engine := NewEngine(store, remote, validSnowflake(), testSyncConfig())

	// The trigger returns nothing; a failed pass leaves the batch queued.
	engine.TriggerSync(context.Background())
	for _, rec := range store.records {
		if rec.Synced {
			t.Errorf("record %d marked synced despite append failure", rec.ID)
		}
	}

	remote.fail = false
	engine.TriggerSync(context.Background())
	for _, rec := range store.records {
		if !rec.Synced {
			t.Errorf("record %d not synced after the remote recovered", rec.ID)
		}
	}
}

func TestSyncNow_RespectsBatchSize(t *testing.T) {
	store := &fakeStore{records: unsyncedRecords(5)}
	remote := &fakeRemote{}
	cfg := testSyncConfig()
	cfg.BatchSize = 2
	engine := NewEngine(store, remote, validSnowflake(), cfg)

	result, err := engine.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("SyncNow() error = %v", err)
	}
	if result.Synced != 2 {
		t.Errorf("Synced = %d, want bounded batch of 2", result.Synced)
	}
}
