// Package warehouse executes SQL against the analytical warehouse and
// exposes the result in a shape the rest of the pipeline can serialize.
// A request may contain multiple ';'-delimited statements; statements run
// strictly in order because later ones may depend on earlier ones.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrNoStatements is returned when a request contains no executable SQL.
var ErrNoStatements = errors.New("request contains no SQL statements")

// StatementResult is the outcome of one SQL statement. Exactly one of the
// three shapes applies: failure (Error set), success with rows, or success
// with zero rows. Callers must not treat an empty row set as a failure.
type StatementResult struct {
	Statement string           `json:"query"`
	Columns   []string         `json:"columns,omitempty"`
	Rows      []map[string]any `json:"data"`
	Error     string           `json:"error,omitempty"`
}

// Failed reports whether the statement itself failed.
func (r StatementResult) Failed() bool { return r.Error != "" }

// Empty reports success with zero rows.
func (r StatementResult) Empty() bool { return r.Error == "" && len(r.Rows) == 0 }

// BatchResult holds per-statement outcomes in submission order.
type BatchResult struct {
	Statements []StatementResult
}

// AllFailed reports whether every statement in the batch failed.
func (b *BatchResult) AllFailed() bool {
	for _, s := range b.Statements {
		if !s.Failed() {
			return false
		}
	}
	return len(b.Statements) > 0
}

// Errors returns the captured statement errors, in submission order.
func (b *BatchResult) Errors() []string {
	var errs []string
	for _, s := range b.Statements {
		if s.Failed() {
			errs = append(errs, s.Error)
		}
	}
	return errs
}

// Payload returns the caller-facing shape of the batch: the bare row
// sequence when exactly one statement was submitted, the ordered
// per-statement results otherwise.
func (b *BatchResult) Payload() any {
	if len(b.Statements) == 1 && !b.Statements[0].Failed() {
		return b.Statements[0].Rows
	}
	if len(b.Statements) == 1 {
		return []map[string]any{{"error": b.Statements[0].Error}}
	}
	return b.Statements
}

// Adapter executes requests against the warehouse over a pooled
// database/sql handle. The pool scopes connection acquisition per call, so
// no process-wide mutable connection state exists.
type Adapter struct {
	db *sql.DB
}

// New creates an Adapter on top of an opened warehouse handle.
func New(db *sql.DB) *Adapter {
	return &Adapter{db: db}
}

// Execute runs every statement in the request sequentially and captures a
// per-statement result. A failing statement never aborts the remainder of
// the batch, and nothing is retried or rolled back: there is no
// transaction spanning the batch.
func (a *Adapter) Execute(ctx context.Context, request string) (*BatchResult, error) {
	statements := SplitStatements(request)
	if len(statements) == 0 {
		return nil, ErrNoStatements
	}

	batch := &BatchResult{Statements: make([]StatementResult, 0, len(statements))}
	for _, stmt := range statements {
		batch.Statements = append(batch.Statements, a.runStatement(ctx, stmt))
	}
	return batch, nil
}

// SplitStatements splits a request into trimmed, non-empty statements.
// Trailing separators produce empty segments, which are dropped.
func SplitStatements(request string) []string {
	parts := strings.Split(request, ";")
	statements := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			statements = append(statements, s)
		}
	}
	return statements
}

// runStatement executes a single statement and captures its outcome.
// Failures are converted into the result, never raised: connectivity,
// syntax, and permission errors all land in the same place.
func (a *Adapter) runStatement(ctx context.Context, stmt string) StatementResult {
	result := StatementResult{Statement: stmt}

	rows, err := a.db.QueryContext(ctx, stmt)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Columns = cols
	result.Rows = []map[string]any{}

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			result.Error = err.Error()
			return result
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		result.Error = err.Error()
	}

	return result
}

// normalizeValue converts driver-specific values into JSON-friendly ones.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return v
	}
}

// QueryCapability exposes Execute as a registered action.
type QueryCapability struct {
	adapter *Adapter
}

// CapabilityName is the registered name the model is instructed to use.
const CapabilityName = "query_snowflake"

// NewQueryCapability wraps an adapter as a dispatchable capability.
func NewQueryCapability(adapter *Adapter) *QueryCapability {
	return &QueryCapability{adapter: adapter}
}

// Name implements action.Capability.
func (c *QueryCapability) Name() string { return CapabilityName }

// Execute implements action.Capability. The query parameter is used as-is;
// a missing or wrong-typed value is this capability's error, not the
// dispatcher's.
func (c *QueryCapability) Execute(ctx context.Context, params map[string]any) (any, error) {
	raw, ok := params["query"]
	if !ok {
		return nil, errors.New("missing query parameter")
	}
	query, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("query parameter must be a string, got %T", raw)
	}
	return c.adapter.Execute(ctx, query)
}
