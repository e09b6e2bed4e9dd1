// Package chat serves the HTTP front end: chat turns with per-session
// history, direct access to the operation tracker, health and metrics.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dusk-indust/ordercopilot/internal/agent"
	"github.com/dusk-indust/ordercopilot/internal/longrun"
	"github.com/dusk-indust/ordercopilot/internal/metrics"
	"github.com/dusk-indust/ordercopilot/internal/session"
)

// maxBody caps request bodies.
const maxBody = 1 << 20

// Server is the chat HTTP service.
type Server struct {
	runner   agent.Runner
	tracker  *longrun.Tracker
	sessions session.Store
	maxTurns int
	limiter  *RateLimiter
	metrics  *metrics.Collector
	gatherer prometheus.Gatherer
	logger   *zap.Logger

	http   *http.Server
	addr   string
	cancel context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithTracker exposes tr under /operations.
func WithTracker(tr *longrun.Tracker) Option {
	return func(s *Server) { s.tracker = tr }
}

// WithSessions keeps chat history in store and prepends the last maxTurns
// turns to every request.
func WithSessions(store session.Store, maxTurns int) Option {
	return func(s *Server) { s.sessions, s.maxTurns = store, maxTurns }
}

// WithRateLimit limits each client IP to rps requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) { s.limiter = NewRateLimiter(rps, burst) }
}

// WithMetrics records chat requests on c and serves g on /metrics.
func WithMetrics(c *metrics.Collector, g prometheus.Gatherer) Option {
	return func(s *Server) { s.metrics, s.gatherer = c, g }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer returns a server answering chat turns with runner.
func NewServer(runner agent.Runner, opts ...Option) *Server {
	s := &Server{
		runner:   runner,
		limiter:  NewRateLimiter(0, 1),
		gatherer: prometheus.DefaultGatherer,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "chat"))
	return s
}

// Handler returns the routes wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleClearSession)
	if s.tracker != nil {
		mux.HandleFunc("POST /operations", s.handleStartOperation)
		mux.HandleFunc("GET /operations/{handle...}", s.handleResumeOperation)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return Chain(mux,
		Recovery(s.logger),
		RequestLogger(s.logger),
		s.limiter.Middleware(),
	)
}

// Start binds addr and serves in the background.
func (s *Server) Start(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("chat: listen %s: %w", addr, err)
	}
	s.addr = ln.Addr().String()
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go s.limiter.RunCleanup(bg, time.Minute)

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("chat server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("chat server listening", zap.String("addr", s.addr))
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string { return s.addr }

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// ChatResponse is the reply to POST /chat.
type ChatResponse struct {
	Response string `json:"response"`
}

// OperationRequest is the body of POST /operations.
type OperationRequest struct {
	Payload   string `json:"payload"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := s.chat(w, r)
	s.metrics.ChatRequest(strconv.Itoa(status), time.Since(start))
}

// chat answers one turn and returns the HTTP status written.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) int {
	var req ChatRequest
	if err := decode(r, &req); err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Text) == "" {
		return writeError(w, http.StatusBadRequest, "session_id and text are required")
	}

	ctx := r.Context()
	prompt := req.Text
	if s.sessions != nil {
		history, err := s.sessions.History(ctx, req.SessionID, s.maxTurns)
		if err != nil {
			s.logger.Warn("loading history failed", zap.String("session", req.SessionID), zap.Error(err))
		}
		prompt = session.Prompt(history, req.Text)
	}

	answer, err := s.runner.Run(ctx, req.SessionID, prompt)
	if err != nil {
		s.logger.Error("chat turn failed", zap.String("session", req.SessionID), zap.Error(err))
		return writeError(w, http.StatusInternalServerError, err.Error())
	}

	if s.sessions != nil {
		now := time.Now().UTC()
		for _, t := range []session.Turn{
			{Role: session.RoleUser, Text: req.Text, At: now},
			{Role: session.RoleAgent, Text: answer, At: now},
		} {
			if err := s.sessions.Append(ctx, req.SessionID, t); err != nil {
				s.logger.Warn("saving history failed", zap.String("session", req.SessionID), zap.Error(err))
				break
			}
		}
	}
	return writeJSON(w, http.StatusOK, ChatResponse{Response: answer})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions != nil {
		if err := s.sessions.Clear(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartOperation(w http.ResponseWriter, r *http.Request) {
	var req OperationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	handle := s.tracker.Start(req.SessionID, req.Payload)
	writeJSON(w, http.StatusAccepted, longrun.StartedReply(handle))
}

func (s *Server) handleResumeOperation(w http.ResponseWriter, r *http.Request) {
	reply := longrun.ResumeReply(s.tracker.Resume(r.URL.Query().Get("session_id"), r.PathValue("handle")))
	writeJSON(w, replyStatus(reply), reply)
}

// replyStatus maps a resume reply to an HTTP status. A finished operation
// whose work failed is still a successful resume.
func replyStatus(r longrun.Reply) int {
	switch {
	case r.Status == longrun.StatusPending:
		return http.StatusAccepted
	case r.Message == longrun.MessageMissingHandle:
		return http.StatusBadRequest
	case r.Message == longrun.MessageNoSuchHandle:
		return http.StatusNotFound
	default:
		return http.StatusOK
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
	return status
}

func writeError(w http.ResponseWriter, status int, message string) int {
	return writeJSON(w, status, map[string]string{"error": message})
}
