package replicate

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/ahcdata/snowpilot/internal/types"
	_ "modernc.org/sqlite"
)

// newRemoteTable creates an in-memory stand-in for the remote warehouse
// table. The appender only emits portable INSERT ... VALUES with bind
// parameters, so SQLite can verify the statement shape and column order.
func newRemoteTable(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`
		CREATE TABLE QUERY_RESULT_LOG (
			id INTEGER,
			query TEXT,
			answer TEXT,
			sfresult TEXT,
			sqlquery TEXT,
			raw_response TEXT,
			error_message TEXT,
			tokens_first_call INTEGER,
			tokens_second_call INTEGER,
			total_tokens_used INTEGER,
			created_at TEXT
		)
	`); err != nil {
		t.Fatalf("create remote table: %v", err)
	}

	return db
}

func TestNewSnowflakeAppender_RequiresTable(t *testing.T) {
	if _, err := NewSnowflakeAppender(newRemoteTable(t), ""); err == nil {
		t.Fatal("empty table name should be rejected")
	}
}

func TestAppendBatch_BulkInsert(t *testing.T) {
	db := newRemoteTable(t)
	appender, err := NewSnowflakeAppender(db, "QUERY_RESULT_LOG")
	if err != nil {
		t.Fatalf("create appender: %v", err)
	}

	answer := "42 orders"
	errMsg := "parse action: no JSON object found in response"
	records := []types.InteractionRecord{
		{
			ID:              1,
			Query:           "How many orders last month?",
			Answer:          &answer,
			RawResponse:     `{"function_name": "query_snowflake", "function_parms": {"query": "SELECT 1"}}`,
			TokensFirstCall: 120,
			TotalTokens:     180,
			CreatedAt:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			ID:           2,
			Query:        "gibberish",
			RawResponse:  "I cannot answer that.",
			ErrorMessage: &errMsg,
			CreatedAt:    time.Date(2026, 3, 1, 10, 1, 0, 0, time.UTC),
		},
	}

	if err := appender.AppendBatch(context.Background(), records); err != nil {
		t.Fatalf("AppendBatch() error = %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM QUERY_RESULT_LOG").Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 2 {
		t.Fatalf("rows = %d, want 2", count)
	}

	var gotAnswer sql.NullString
	var gotCreated string
	if err := db.QueryRow(
		"SELECT answer, created_at FROM QUERY_RESULT_LOG WHERE id = 1").Scan(&gotAnswer, &gotCreated); err != nil {
		t.Fatalf("read row: %v", err)
	}
	if !gotAnswer.Valid || gotAnswer.String != answer {
		t.Errorf("answer = %v, want %q", gotAnswer, answer)
	}
	if gotCreated != "2026-03-01T10:00:00Z" {
		t.Errorf("created_at = %q, want RFC3339 UTC", gotCreated)
	}

	var gotErr sql.NullString
	if err := db.QueryRow(
		"SELECT error_message FROM QUERY_RESULT_LOG WHERE id = 2").Scan(&gotErr); err != nil {
		t.Fatalf("read failed-turn row: %v", err)
	}
	if !gotErr.Valid || gotErr.String != errMsg {
		t.Errorf("error_message = %v, want the folded error (failures are replicated too)", gotErr)
	}
}

func TestAppendBatch_EmptyIsNoOp(t *testing.T) {
	appender, err := NewSnowflakeAppender(newRemoteTable(t), "QUERY_RESULT_LOG")
	if err != nil {
		t.Fatalf("create appender: %v", err)
	}
	if err := appender.AppendBatch(context.Background(), nil); err != nil {
		t.Fatalf("AppendBatch(nil) error = %v", err)
	}
}
