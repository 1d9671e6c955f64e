package types

import (
	"time"
)

// InteractionRecord is the durable audit entry for one user turn.
// Exactly one record exists per turn, whether the turn succeeded or failed.
// TotalTokens is the session-cumulative running total at write time, not
// the sum of the two per-turn counters.
type InteractionRecord struct {
	ID               int64     `json:"id"`
	Query            string    `json:"query"`
	Answer           *string   `json:"answer,omitempty"`
	Result           *string   `json:"sfresult,omitempty"`
	SQLQuery         *string   `json:"sqlquery,omitempty"`
	RawResponse      string    `json:"raw_response"`
	ErrorMessage     *string   `json:"error_message,omitempty"`
	TokensFirstCall  int64     `json:"tokens_first_call"`
	TokensSecondCall int64     `json:"tokens_second_call"`
	TotalTokens      int64     `json:"total_tokens_used"`
	CreatedAt        time.Time `json:"created_at"`
	Synced           bool      `json:"synced_to_snowflake"`
}

// RecordColumns lists the query_result columns in schema order.
// The remote table carries the same columns minus the trailing sync flag.
var RecordColumns = []string{
	"id",
	"query",
	"answer",
	"sfresult",
	"sqlquery",
	"raw_response",
	"error_message",
	"tokens_first_call",
	"tokens_second_call",
	"total_tokens_used",
	"created_at",
	"synced_to_snowflake",
}

// AskRequest is the HTTP body for submitting a question.
type AskRequest struct {
	Query string `json:"query"`
}

// AskResponse is the HTTP reply for one completed turn.
type AskResponse struct {
	Answer           string `json:"answer,omitempty"`
	Error            string `json:"error,omitempty"`
	SQLQuery         string `json:"sql_query,omitempty"`
	RecordID         int64  `json:"record_id"`
	TokensFirstCall  int64  `json:"tokens_first_call"`
	TokensSecondCall int64  `json:"tokens_second_call"`
	SessionTokens    int64  `json:"session_tokens"`
}

// SyncResponse reports the outcome of an explicit sync trigger.
type SyncResponse struct {
	Synced  int    `json:"synced"`
	BatchID string `json:"batch_id,omitempty"`
}

// HistoryResponse lists recent interaction records.
type HistoryResponse struct {
	Records []InteractionRecord `json:"records"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Model    string `json:"model"`
	Unsynced int64  `json:"unsynced_records"`
}

// StrPtr returns a pointer to s, or nil when s is empty.
// Empty strings map to NULL columns in the audit log.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
