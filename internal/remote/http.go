package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/trace"

	"github.com/antonkrylov/logwise/internal/agent"
	"github.com/antonkrylov/logwise/internal/history"
	"github.com/antonkrylov/logwise/internal/tracing"
	"github.com/antonkrylov/logwise/internal/wire"
)

const maxRequestBody = 1 << 20

type runRequest struct {
	Command string `json:"command"`
}

type errorBody struct {
	Error string `json:"error"`
	Cwd   string `json:"cwd"`
}

// Handler returns the HTTP API. ctx bounds the rate limiter's janitor.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /run", s.handleRun)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /history", s.handleHistory)

	var h http.Handler = mux
	if !s.cfg.DisableRateLimit {
		h = rateLimit(ctx, s.cfg.RequestsPerMin, s.cfg.Burst)(h)
	}
	return securityHeaders(h)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	sess := s.cfg.Executor.Session()
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON: " + err.Error(), Cwd: sess.Cwd()})
		return
	}

	ctx, span := tracing.StartSpan(r.Context(), "http.run",
		trace.WithAttributes(tracing.StringAttr("client", clientIP(r))))
	defer span.End()

	exec, err := s.cfg.Executor.Execute(ctx, req.Command)
	switch {
	case errors.Is(err, agent.ErrEmptyCommand):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "No command provided", Cwd: sess.Cwd()})
		return
	case errors.Is(err, agent.ErrInvalidCommand):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Cwd: sess.Cwd()})
		return
	case errors.Is(err, context.Canceled):
		// Caller went away while queued.
		return
	case err != nil:
		s.cfg.Logger.Error("execute failed", "cmd", req.Command, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error(), Cwd: sess.Cwd()})
		return
	}

	status := http.StatusOK
	if exec.Outcome == agent.OutcomeTimeout {
		status = http.StatusInternalServerError
	}
	span.SetAttributes(tracing.IntAttr("http.status_code", status))
	writeJSON(w, status, exec.Result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, wire.StatusFrom(s.cfg.Executor.Session().Status()))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := s.cfg.Executor.Session()
	if err := sess.Reset(r.Context()); err != nil {
		s.cfg.Logger.Error("reset failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error(), Cwd: sess.Cwd()})
		return
	}
	writeJSON(w, http.StatusOK, wire.StatusFrom(sess.Status()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer", Cwd: s.cfg.Executor.Session().Cwd()})
			return
		}
		limit = n
	}
	entries := []history.Entry{}
	if s.cfg.History != nil {
		entries = append(entries, s.cfg.History.List(limit)...)
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
