package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vk/flowloop/internal/broadcast"
	"github.com/vk/flowloop/internal/ctxlog"
	"github.com/vk/flowloop/internal/event"
	"github.com/vk/flowloop/internal/executor"
	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/registry"
)

// Engine is the session the server drives.
type Engine interface {
	Registry() *registry.Registry
	Hub() *broadcast.Hub
	StartContinuous(wf *model.Workflow) error
	StopContinuous() bool
	RunOnce(ctx context.Context, wf *model.Workflow) (executor.CycleResult, error)
	SetInterval(d time.Duration) error
	UpdateInput(nodeID, input string, value any) error
	ClearOverrides(nodeID string)
	Status() event.ExecutionStatus
	StatusEnvelope() event.Envelope
}

// Options tunes the HTTP and WebSocket behaviour.
type Options struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string
	// AllowedOrigins restricts browser origins; empty allows any.
	AllowedOrigins []string
	// MaxBodyBytes bounds workflow documents and WebSocket frames.
	MaxBodyBytes int64
	// WriteWait bounds a single WebSocket write.
	WriteWait time.Duration
	// PongWait is how long a silent connection is kept.
	PongWait time.Duration
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.Addr == "" {
		o.Addr = ":8000"
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 8 << 20
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
}

// pingPeriod must be shorter than PongWait.
func (o *Options) pingPeriod() time.Duration {
	return o.PongWait * 9 / 10
}

// Server serves one engine.
type Server struct {
	engine   Engine
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// New creates a server. The logger is taken from ctx.
func New(ctx context.Context, eng Engine, opts Options) *Server {
	opts.setDefaults()
	s := &Server{
		engine: eng,
		opts:   opts,
		logger: ctxlog.FromContext(ctx).With("component", "server"),
		mux:    http.NewServeMux(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.originAllowed,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /nodes", s.handleNodes)
	s.mux.HandleFunc("GET /nodes/{type}", s.handleNode)
	s.mux.HandleFunc("POST /run", s.handleRun)
	s.mux.HandleFunc("POST /stop", s.handleStop)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("POST /continuous/start", s.handleContinuousStart)
	s.mux.HandleFunc("POST /continuous/stop", s.handleStop)
	s.mux.HandleFunc("GET /continuous/status", s.handleStatus)
	s.mux.HandleFunc("DELETE /overrides", s.handleClearOverrides)
	s.mux.HandleFunc("DELETE /overrides/{node_id}", s.handleClearOverrides)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.cors(s.mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting.", "address", ln.Addr().String())
		// Serve returns http.ErrServerClosed on graceful shutdown.
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()
	s.logger.Info("Shutting down HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown failed.", "error", err)
		return err
	}
	s.logger.Debug("HTTP server shut down gracefully.")
	return nil
}

func (s *Server) originAllowed(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(s.opts.AllowedOrigins, origin)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(r) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
