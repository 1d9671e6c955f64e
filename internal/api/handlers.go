// Package api exposes the assistant over HTTP: ask a question, trigger a
// sync, inspect the audit log. The interactive pipeline stays strictly
// one-turn-at-a-time per session; a second ask while one is in flight
// waits rather than overlapping it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/ahcdata/snowpilot/internal/config"
	"github.com/ahcdata/snowpilot/internal/replicate"
	"github.com/ahcdata/snowpilot/internal/session"
	"github.com/ahcdata/snowpilot/internal/types"
)

const defaultHistoryLimit = 50

// Asker runs one interactive turn.
type Asker interface {
	Ask(ctx context.Context, userQuery string) (*session.Turn, error)
}

// Syncer runs one replication pass on demand.
type Syncer interface {
	SyncNow(ctx context.Context) (*replicate.Result, error)
}

// HistoryStore reads the audit log for operator visibility.
type HistoryStore interface {
	ListRecent(ctx context.Context, limit int) ([]types.InteractionRecord, error)
	CountUnsynced(ctx context.Context) (int64, error)
}

// Handler holds the dependencies for all HTTP endpoints.
type Handler struct {
	asker   Asker
	syncer  Syncer
	history HistoryStore
	apiKey  string
	model   string
	version string

	// Serializes turns: at most one in-flight chain per session.
	askMu sync.Mutex
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(asker Asker, syncer Syncer, history HistoryStore, apiKey, model, version string) *Handler {
	return &Handler{
		asker:   asker,
		syncer:  syncer,
		history: history,
		apiKey:  apiKey,
		model:   model,
		version: version,
	}
}

// Ask handles POST /api/v1/ask.
// Failed turns still return 200 with the error text: the turn completed
// and was recorded, it just did not produce an answer.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req types.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Query == "" {
		WriteProblem(w, r, http.StatusBadRequest, "query is required")
		return
	}

	h.askMu.Lock()
	turn, err := h.asker.Ask(r.Context(), req.Query)
	h.askMu.Unlock()
	if err != nil {
		// Only a failed record write lands here; the interaction may be lost.
		slog.Error("turn failed hard", "component", "api", "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Interaction could not be recorded")
		return
	}

	writeJSON(w, http.StatusOK, types.AskResponse{
		Answer:           turn.Answer,
		Error:            turn.ErrMessage,
		SQLQuery:         turn.SQLQuery,
		RecordID:         turn.RecordID,
		TokensFirstCall:  turn.TokensFirstCall,
		TokensSecondCall: turn.TokensSecondCall,
		SessionTokens:    turn.SessionTokens,
	})
}

// Sync handles POST /api/v1/sync, the operator-facing "sync now" trigger.
// Safe to invoke at any time, including with zero unsynced records.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	result, err := h.syncer.SyncNow(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, config.ErrSnowflakeIncomplete):
			WriteProblem(w, r, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, replicate.ErrRemoteAppend):
			WriteProblem(w, r, http.StatusServiceUnavailable, "Remote append failed; records remain queued")
		default:
			slog.Error("sync failed", "component", "api", "error", err)
			WriteProblem(w, r, http.StatusInternalServerError, "Sync failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, types.SyncResponse{
		Synced:  result.Synced,
		BatchID: result.BatchID,
	})
}

// History handles GET /api/v1/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			WriteProblem(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.history.ListRecent(r.Context(), limit)
	if err != nil {
		slog.Error("history query failed", "component", "api", "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if records == nil {
		records = []types.InteractionRecord{}
	}

	writeJSON(w, http.StatusOK, types.HistoryResponse{Records: records})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	unsynced, err := h.history.CountUnsynced(r.Context())
	if err != nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:   "ok",
		Version:  h.version,
		Model:    h.model,
		Unsynced: unsynced,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
