package replicate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ahcdata/snowpilot/internal/types"
)

// Compile-time interface check
var _ RemoteAppender = (*SnowflakeAppender)(nil)

// remoteColumns is the remote table's column list: the local query_result
// schema minus the sync flag, in the same order. The bulk append depends
// on this ordering matching the remote table definition.
var remoteColumns = types.RecordColumns[:len(types.RecordColumns)-1]

// SnowflakeAppender bulk-appends interaction records to a warehouse table
// over a pooled database/sql handle. All values travel as bind parameters;
// no record content is ever concatenated into the statement text.
type SnowflakeAppender struct {
	db    *sql.DB
	table string
}

// NewSnowflakeAppender creates an appender targeting the given table.
func NewSnowflakeAppender(db *sql.DB, table string) (*SnowflakeAppender, error) {
	if table == "" {
		return nil, errors.New("remote table name is required")
	}
	return &SnowflakeAppender{db: db, table: table}, nil
}

// AppendBatch inserts all records in one multi-row statement. The call
// either fully succeeds or fully fails; the engine treats any error as
// "nothing was delivered" and retries the whole batch later, which the
// remote side must tolerate (at-least-once).
func (a *SnowflakeAppender) AppendBatch(ctx context.Context, records []types.InteractionRecord) error {
	if len(records) == 0 {
		return nil
	}

	row := "(" + strings.Repeat("?,", len(remoteColumns)-1) + "?)"
	values := make([]string, len(records))
	args := make([]any, 0, len(records)*len(remoteColumns))
	for i, rec := range records {
		values[i] = row
		args = append(args,
			rec.ID,
			rec.Query,
			rec.Answer,
			rec.Result,
			rec.SQLQuery,
			rec.RawResponse,
			rec.ErrorMessage,
			rec.TokensFirstCall,
			rec.TokensSecondCall,
			rec.TotalTokens,
			rec.CreatedAt.UTC().Format(time.RFC3339),
		)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		a.table,
		strings.Join(remoteColumns, ", "),
		strings.Join(values, ", "),
	)

	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("append %d records to %s: %w", len(records), a.table, err)
	}

	return nil
}
