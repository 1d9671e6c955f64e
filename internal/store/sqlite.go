// Package store persists interaction records in an embedded SQLite
// database. The table is an append-only audit log: records are written
// once, never deleted, and the only mutable field is the sync flag.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ahcdata/snowpilot/internal/types"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the SQLite-backed durable record store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for durability and concurrent access.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Write persists a new record with the sync flag cleared, assigning the
// identifier and creation timestamp. The insert is committed before Write
// returns, so a crash immediately afterwards cannot lose the record. A
// failed write is returned as an error, never reported as success.
// Token counters, including the session running total, are persisted as
// given; the caller owns the accounting.
func (s *SQLiteStore) Write(ctx context.Context, rec *types.InteractionRecord) error {
	rec.CreatedAt = time.Now().UTC()
	rec.Synced = false

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO query_result (
			query, answer, sfresult, sqlquery, raw_response, error_message,
			tokens_first_call, tokens_second_call, total_tokens_used,
			created_at, synced_to_snowflake
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE)
	`, rec.Query, rec.Answer, rec.Result, rec.SQLQuery, rec.RawResponse, rec.ErrorMessage,
		rec.TokensFirstCall, rec.TokensSecondCall, rec.TotalTokens,
		rec.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert interaction record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("read generated id: %w", err)
	}
	rec.ID = id

	return nil
}

// Get retrieves a single record by identifier.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*types.InteractionRecord, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+`
		FROM query_result
		WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan row: %w", err)
	}
	return rec, nil
}

// ListUnsynced returns up to limit records whose sync flag is clear, in
// identifier order. The result is a snapshot taken at call time.
func (s *SQLiteStore) ListUnsynced(ctx context.Context, limit int) ([]types.InteractionRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		FROM query_result
		WHERE synced_to_snowflake = FALSE
		ORDER BY id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unsynced records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ListRecent returns the most recent records, newest first.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]types.InteractionRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		FROM query_result
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// MarkSynced flips the sync flag for the given identifiers. Marking an
// already-synced or unknown id is a no-op, which makes retries after a
// crash-and-replay harmless.
func (s *SQLiteStore) MarkSynced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE query_result
		SET synced_to_snowflake = TRUE
		WHERE id IN (%s) AND synced_to_snowflake = FALSE
	`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("mark records synced: %w", err)
	}

	return nil
}

// CountUnsynced returns the number of records awaiting replication.
func (s *SQLiteStore) CountUnsynced(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM query_result WHERE synced_to_snowflake = FALSE").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unsynced records: %w", err)
	}
	return count, nil
}

// Count returns the total number of interaction records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM query_result").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

const selectColumns = `
	SELECT id, query, answer, sfresult, sqlquery, raw_response, error_message,
	       tokens_first_call, tokens_second_call, total_tokens_used,
	       created_at, synced_to_snowflake
`

// collectRecords drains rows into records, preserving query order.
func collectRecords(rows *sql.Rows) ([]types.InteractionRecord, error) {
	var records []types.InteractionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}

// scanRecord scans a row into an InteractionRecord.
func scanRecord(scanner interface{ Scan(...any) error }) (*types.InteractionRecord, error) {
	var rec types.InteractionRecord
	var answer, result, sqlQuery, errorMessage sql.NullString
	var createdAt string

	err := scanner.Scan(
		&rec.ID,
		&rec.Query,
		&answer,
		&result,
		&sqlQuery,
		&rec.RawResponse,
		&errorMessage,
		&rec.TokensFirstCall,
		&rec.TokensSecondCall,
		&rec.TotalTokens,
		&createdAt,
		&rec.Synced,
	)
	if err != nil {
		return nil, err
	}

	if answer.Valid {
		rec.Answer = &answer.String
	}
	if result.Valid {
		rec.Result = &result.String
	}
	if sqlQuery.Valid {
		rec.SQLQuery = &sqlQuery.String
	}
	if errorMessage.Valid {
		rec.ErrorMessage = &errorMessage.String
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		rec.CreatedAt = t
	}

	return &rec, nil
}
