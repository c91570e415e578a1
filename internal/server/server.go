// Package server exposes the conversation engine over a local HTTP API.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wigtn/wigtn-spot-finder/internal/config"
	"github.com/wigtn/wigtn-spot-finder/internal/events"
	"github.com/wigtn/wigtn-spot-finder/internal/lease"
	"github.com/wigtn/wigtn-spot-finder/internal/pipeline"
	"github.com/wigtn/wigtn-spot-finder/internal/provider"
	"github.com/wigtn/wigtn-spot-finder/internal/thread"
)

// TurnHandler runs one conversation turn. *pipeline.Engine is the production
// implementation.
type TurnHandler interface {
	HandleTurn(ctx context.Context, threadID, userID, language, message string) (*pipeline.TurnResult, error)
}

// Server is the HTTP front of the engine.
type Server struct {
	cfg       *config.Config
	engine    TurnHandler
	store     *thread.Store
	emitter   *events.Emitter
	startedAt time.Time
}

func New(cfg *config.Config, engine TurnHandler, store *thread.Store, emitter *events.Emitter) *Server {
	return &Server{
		cfg:       cfg,
		engine:    engine,
		store:     store,
		emitter:   emitter,
		startedAt: time.Now().UTC(),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/thread", s.handleThread)
	return mux
}

// ListenAndServe blocks serving the API on the configured address.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	slog.Info("gateway listening", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id,omitempty"`
	Language string `json:"language,omitempty"`
}

type chatResponse struct {
	Response   string `json:"response"`
	ThreadID   string `json:"thread_id"`
	TurnNumber int    `json:"turn_number"`
	Stage      string `json:"stage"`
	Intent     string `json:"intent"`
	TokensUsed int    `json:"tokens_used"`
	MemoryUsed int    `json:"memories_used"`
	LatencyMS  int64  `json:"latency_ms"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body", pipeline.CodeMalformedRequest)
		return
	}
	if strings.TrimSpace(req.ThreadID) == "" {
		writeError(w, http.StatusBadRequest, "thread_id required", pipeline.CodeMalformedRequest)
		return
	}
	if req.UserID == "" {
		req.UserID = "local"
	}
	if req.Language == "" {
		req.Language = s.cfg.Model.DefaultLanguage
	}

	res, err := s.engine.HandleTurn(r.Context(), req.ThreadID, req.UserID, req.Language, req.Message)
	if err != nil {
		status, code := classifyError(err)
		writeError(w, status, err.Error(), code)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:   res.Response,
		ThreadID:   res.ThreadID,
		TurnNumber: res.TurnNumber,
		Stage:      string(res.Stage),
		Intent:     res.Intent,
		TokensUsed: res.TokensUsed,
		MemoryUsed: res.Memories,
		LatencyMS:  res.LatencyMS,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"started_at": s.startedAt,
		"uptime_s":   int64(time.Since(s.startedAt).Seconds()),
		"model":      s.cfg.Model.Name,
	}
	if s.emitter != nil {
		status["events_dropped"] = s.emitter.Dropped()
	}
	writeJSON(w, http.StatusOK, status)
}

// handleThread reports a thread's progress and its summary ledger.
func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "id required", pipeline.CodeMalformedRequest)
		return
	}
	t, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "thread not found", "")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL")
		return
	}
	sums, err := s.store.Summaries(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"thread":    t,
		"summaries": sums,
	})
}

// classifyError maps engine failures onto HTTP statuses: bad input is the
// caller's fault, a held lease is a conflict, a dead model is upstream.
func classifyError(err error) (int, string) {
	var rejected *pipeline.RejectedInputError
	if errors.As(err, &rejected) {
		return http.StatusBadRequest, rejected.Code
	}
	if lease.IsConflict(err) {
		return http.StatusConflict, "THREAD_BUSY"
	}
	if provider.IsModelUnavailable(err) {
		return http.StatusServiceUnavailable, "MODEL_UNAVAILABLE"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "TIMEOUT"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}
