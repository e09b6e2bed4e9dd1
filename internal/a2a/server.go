package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Handler processes incoming A2A requests for an agent.
type Handler interface {
	HandleSendMessage(ctx context.Context, req SendMessageRequest) (*Task, error)

	// HandleStreamMessage runs the task and reports progress through emit.
	// It returns once the final event has been emitted.
	HandleStreamMessage(ctx context.Context, req SendMessageRequest, emit func(StreamEvent) error) error

	HandleGetTask(ctx context.Context, req GetTaskRequest) (*Task, error)
	HandleListTasks(ctx context.Context, req ListTasksRequest) (*ListTasksResponse, error)
	HandleCancelTask(ctx context.Context, req CancelTaskRequest) (*Task, error)
}

// Server exposes a Handler over HTTP: the agent card at WellKnownCardPath
// and JSON-RPC on POST /.
type Server struct {
	card    AgentCard
	handler Handler
	logger  *zap.Logger

	http *http.Server
	addr string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer returns a server for card backed by handler.
func NewServer(card AgentCard, handler Handler, opts ...ServerOption) *Server {
	s := &Server{card: card, handler: handler, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "a2a"), zap.String("agent", card.Name))
	return s
}

// Handler returns the HTTP routes, for mounting or httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+WellKnownCardPath, s.handleAgentCard)
	mux.HandleFunc("POST /", s.handleJSONRPC)
	return mux
}

// Start binds addr and serves in the background. Bind failures are returned
// directly.
func (s *Server) Start(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("a2a: listen %s: %w", addr, err)
	}
	s.addr = ln.Addr().String()
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("a2a server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("a2a server listening", zap.String("addr", s.addr))
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string { return s.addr }

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleAgentCard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.card); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		writeJSONRPCError(w, nil, ErrCodeParse, "Parse error: "+err.Error())
		return
	}
	s.logger.Debug("rpc", zap.String("method", req.Method), zap.Any("id", req.ID))

	if req.Method == MethodStreamMessage {
		s.dispatchStream(w, r, &req)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	ctx := r.Context()
	switch req.Method {
	case MethodSendMessage:
		dispatch(ctx, w, &req, s.handler.HandleSendMessage)
	case MethodGetTask:
		dispatch(ctx, w, &req, s.handler.HandleGetTask)
	case MethodListTasks:
		dispatch(ctx, w, &req, s.handler.HandleListTasks)
	case MethodCancelTask:
		dispatch(ctx, w, &req, s.handler.HandleCancelTask)
	default:
		writeJSONRPCError(w, req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

// dispatch decodes params into P, calls fn and writes the result.
func dispatch[P, R any](ctx context.Context, w http.ResponseWriter, req *JSONRPCRequest, fn func(context.Context, P) (R, error)) {
	var params P
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeJSONRPCError(w, req.ID, ErrCodeInvalidParams, "Invalid params: "+err.Error())
		return
	}
	result, err := fn(ctx, params)
	if err != nil {
		writeJSONRPCError(w, req.ID, errorCode(err), err.Error())
		return
	}
	writeJSONRPCResult(w, req.ID, result)
}

// dispatchStream answers message/stream with an SSE stream of JSON-RPC
// responses, one per event.
func (s *Server) dispatchStream(w http.ResponseWriter, r *http.Request, req *JSONRPCRequest) {
	var params SendMessageRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		w.Header().Set("Content-Type", "application/json")
		writeJSONRPCError(w, req.ID, ErrCodeInvalidParams, "Invalid params: "+err.Error())
		return
	}

	sw := NewSSEWriter(w)
	sw.Init()
	err := s.handler.HandleStreamMessage(r.Context(), params, func(ev StreamEvent) error {
		return sw.WriteResult(req.ID, ev)
	})
	if err != nil {
		s.logger.Warn("stream failed", zap.Error(err))
		_ = sw.WriteError(req.ID, errorCode(err), err.Error())
	}
}
