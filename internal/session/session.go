// Package session orchestrates one user turn: model call, action parse,
// dispatch, execution, summarization, durable record write, replication
// trigger. A turn always produces both a displayable response and exactly
// one interaction record, whether it succeeded or failed.
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ahcdata/snowpilot/internal/action"
	"github.com/ahcdata/snowpilot/internal/llm"
	"github.com/ahcdata/snowpilot/internal/types"
	"github.com/ahcdata/snowpilot/internal/warehouse"
)

// RecordWriter is the subset of the record store a session needs.
type RecordWriter interface {
	Write(ctx context.Context, rec *types.InteractionRecord) error
}

// Syncer triggers a replication pass after a successful write. The pass
// may run synchronously or on a background loop; either way its failures
// never reach the session.
type Syncer interface {
	TriggerSync(ctx context.Context)
}

// Turn is the user-visible outcome of one interaction.
type Turn struct {
	Answer           string
	ErrMessage       string
	SQLQuery         string
	RecordID         int64
	TokensFirstCall  int64
	TokensSecondCall int64
	SessionTokens    int64
}

// Display returns the text shown to the user. Every turn displays
// something, errors included, so the loop never goes silent.
func (t *Turn) Display() string {
	if t.ErrMessage != "" {
		return "Error: " + t.ErrMessage
	}
	return t.Answer
}

// Session holds the conversation state for one user. It is not safe for
// concurrent Ask calls; callers must keep at most one turn in flight.
type Session struct {
	completer    llm.Completer
	registry     *action.Registry
	store        RecordWriter
	syncer       Syncer // optional; nil disables the on-write trigger
	systemPrompt string

	history     []llm.Message
	totalTokens int64
}

// New creates a session with an empty conversation.
func New(completer llm.Completer, registry *action.Registry, store RecordWriter, syncer Syncer, schema warehouse.Schema) *Session {
	return &Session{
		completer:    completer,
		registry:     registry,
		store:        store,
		syncer:       syncer,
		systemPrompt: llm.SystemPrompt(schema),
	}
}

// TotalTokens returns the tokens consumed across the whole session.
func (s *Session) TotalTokens() int64 {
	return s.totalTokens
}

// Ask runs one full turn for the given user query.
//
// Parse, capability, and backend failures are folded into the record's
// error field and reported through the returned Turn; only a failed record
// write is returned as an error, because then the interaction may be lost.
// Replication failures are logged and never surface here.
func (s *Session) Ask(ctx context.Context, userQuery string) (*Turn, error) {
	s.history = append(s.history, llm.Message{Role: llm.RoleUser, Content: userQuery})

	rec := types.InteractionRecord{Query: userQuery}
	turn := &Turn{}

	raw, tokensFirst, err := s.completer.Complete(ctx, s.systemPrompt, s.history)
	rec.RawResponse = raw
	rec.TokensFirstCall = tokensFirst
	turn.TokensFirstCall = tokensFirst

	if err != nil {
		turn.ErrMessage = fmt.Sprintf("model call failed: %s", err)
	} else {
		s.runAction(ctx, raw, &rec, turn)
	}

	rec.ErrorMessage = types.StrPtr(turn.ErrMessage)
	rec.Answer = types.StrPtr(turn.Answer)

	// The record carries the session-cumulative total at the time it was
	// written, not the per-turn sum.
	s.totalTokens += rec.TokensFirstCall + rec.TokensSecondCall
	rec.TotalTokens = s.totalTokens
	turn.SessionTokens = s.totalTokens

	// The record write is the one hard failure of a turn: if the
	// interaction cannot be durably recorded, the caller must know.
	if err := s.store.Write(ctx, &rec); err != nil {
		return nil, fmt.Errorf("write interaction record: %w", err)
	}
	turn.RecordID = rec.ID

	s.triggerSync(ctx)

	if turn.Answer != "" {
		s.history = append(s.history, llm.Message{Role: llm.RoleAssistant, Content: turn.Answer})
	}

	return turn, nil
}

// runAction parses the model response, dispatches the action, and
// summarizes the result, folding failures into the turn as it goes.
func (s *Session) runAction(ctx context.Context, raw string, rec *types.InteractionRecord, turn *Turn) {
	act, err := action.Parse(raw)
	if err != nil {
		turn.ErrMessage = err.Error()
		return
	}

	if q, ok := act.Params["query"].(string); ok {
		rec.SQLQuery = types.StrPtr(q)
		turn.SQLQuery = q
	}

	out, err := s.registry.Dispatch(ctx, *act)
	if err != nil {
		turn.ErrMessage = err.Error()
		return
	}

	payload := out
	if batch, ok := out.(*warehouse.BatchResult); ok {
		if batch.AllFailed() {
			// Per-statement errors are captured, not raised; a batch with
			// nothing but failures still has no result worth summarizing.
			turn.ErrMessage = fmt.Sprintf("all statements failed: %s", batch.Errors()[0])
			resultJSON, _ := json.Marshal(batch.Payload())
			rec.Result = types.StrPtr(string(resultJSON))
			return
		}
		payload = batch.Payload()
	}

	resultJSON, err := json.Marshal(payload)
	if err != nil {
		turn.ErrMessage = fmt.Sprintf("serialize result: %s", err)
		return
	}
	rec.Result = types.StrPtr(string(resultJSON))

	answer, tokensSecond, err := s.completer.Complete(ctx,
		llm.SummaryPrompt(rec.Query, string(resultJSON)), s.history)
	rec.TokensSecondCall = tokensSecond
	turn.TokensSecondCall = tokensSecond
	if err != nil {
		turn.ErrMessage = fmt.Sprintf("summarization failed: %s", err)
		return
	}

	turn.Answer = answer
}

// triggerSync requests a replication pass after the write. Replication is
// a background concern: the record stays queued whatever happens.
func (s *Session) triggerSync(ctx context.Context) {
	if s.syncer == nil {
		return
	}
	s.syncer.TriggerSync(ctx)
}
