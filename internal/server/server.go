// Package server exposes authoring sessions over HTTP. Chat turns stream as
// newline-delimited JSON events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"forge/internal/apperr"
	"forge/internal/chat"
	"forge/internal/events"
	"forge/internal/orchestrator"
	"forge/internal/snapshot"
	"forge/internal/storage"
)

// Server routes HTTP requests to the orchestrator.
type Server struct {
	orch        *orchestrator.Orchestrator
	logger      *log.Logger
	turnTimeout time.Duration
}

// Options configures a Server.
type Options struct {
	Logger *log.Logger
	// TurnTimeout bounds one chat turn. Zero means no limit beyond the
	// client connection.
	TurnTimeout time.Duration
}

// New creates a server.
func New(orch *orchestrator.Orchestrator, opts Options) (*Server, error) {
	if orch == nil {
		return nil, errors.New("orchestrator required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{orch: orch, logger: logger, turnTimeout: opts.TurnTimeout}, nil
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/sessions", s.handleSessionCreate)
	mux.HandleFunc("GET /api/sessions", s.handleSessionList)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSessionGet)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleSessionDelete)
	mux.HandleFunc("POST /api/sessions/{id}/back", s.handleSessionBack)
	mux.HandleFunc("POST /api/sessions/{id}/cancel", s.handleSessionCancel)
	return s.logMiddleware(mux)
}

// --- Handlers ---

type chatReq struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type sessionCreateReq struct {
	Name string `json:"name"`
}

type sessionResp struct {
	Session  snapshot.Snapshot `json:"session"`
	Messages []chat.Message    `json:"messages,omitempty"`
	Busy     bool              `json:"busy"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "decode request", err))
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, apperr.New(apperr.KindValidation, "sessionId is required"))
		return
	}
	sess, err := s.orch.Session(req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	turnCtx := r.Context()
	if s.turnTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(turnCtx, s.turnTimeout)
		defer cancel()
	}
	em, err := sess.RunTurn(turnCtx, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := events.Pipe(r.Context(), em.Events(), events.NewEncoder(w)); err != nil {
		s.logger.Printf("chat %s: stream ended early: %v", req.SessionID, err)
		sess.Cancel()
	}
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var req sessionCreateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, apperr.Wrap(apperr.KindValidation, "decode request", err))
		return
	}
	sess, err := s.orch.InitSession(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+sess.ID())
	writeJSONStatus(w, http.StatusCreated, sessionResp{Session: sess.View(), Messages: sess.Messages()})
}

func (s *Server) handleSessionList(w http.ResponseWriter, _ *http.Request) {
	metas, err := s.orch.List()
	if err != nil {
		writeError(w, err)
		return
	}
	if metas == nil {
		metas = []storage.SessionMeta{}
	}
	writeJSON(w, map[string]any{"sessions": metas})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.orch.Session(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, sessionResp{Session: sess.View(), Messages: sess.Messages(), Busy: sess.Busy()})
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionBack(w http.ResponseWriter, r *http.Request) {
	sess, err := s.orch.Session(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := sess.GoBack()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, sessionResp{Session: snap})
}

func (s *Server) handleSessionCancel(w http.ResponseWriter, r *http.Request) {
	sess, err := s.orch.Session(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	sess.Cancel()
	w.WriteHeader(http.StatusAccepted)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as {code, message} with a status derived from its kind.
func writeError(w http.ResponseWriter, err error) {
	writeJSONStatus(w, statusFor(err), events.ErrorFrom(err))
}

func statusFor(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindStage:
		return http.StatusBadRequest
	case apperr.KindBusy:
		return http.StatusConflict
	case apperr.KindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps streamed responses flushing through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}
