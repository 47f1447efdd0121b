// Package runner is the HTTP side of the workspace runner: readiness probe,
// WebSocket command channel and Prometheus metrics.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vim89/llm4s-sub012/internal/config"
	"github.com/vim89/llm4s-sub012/internal/dispatch"
	"github.com/vim89/llm4s-sub012/internal/liveness"
	"github.com/vim89/llm4s-sub012/internal/logging"
	"github.com/vim89/llm4s-sub012/internal/metrics"
	"github.com/vim89/llm4s-sub012/internal/sandbox"
	"github.com/vim89/llm4s-sub012/internal/transport"
)

// Options wires a Server.
type Options struct {
	Config     *config.Config
	Sandbox    sandbox.Config
	Capability dispatch.Capability

	// Watchdog, when set, is touched by every inbound frame and run by
	// Serve.
	Watchdog *liveness.Watchdog

	Logger  *logging.Logger
	Metrics *metrics.Registry
}

// Server serves one workspace to its controller.
type Server struct {
	cfg        *config.Config
	dispatcher *dispatch.Dispatcher
	watchdog   *liveness.Watchdog
	logger     *logging.Logger
	metrics    *metrics.Registry
	router     *mux.Router
	upgrader   websocket.Upgrader

	// sessions run under baseCtx so shutdown ends them.
	baseCtx  context.Context
	cancel   context.CancelFunc
	sessions sync.WaitGroup
}

// New validates the sandbox policy and builds the routes.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Capability == nil {
		return nil, errors.New("capability is required")
	}
	if err := sandbox.Validate(opts.Sandbox); err != nil {
		return nil, fmt.Errorf("invalid sandbox policy: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Get()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        opts.Config,
		dispatcher: dispatch.New(opts.Capability, opts.Sandbox, opts.Logger),
		watchdog:   opts.Watchdog,
		logger:     opts.Logger.WithComponent("runner"),
		metrics:    opts.Metrics,
		router:     mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			// The controller is co-located; there is no browser origin to check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		baseCtx: ctx,
		cancel:  cancel,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleSocket).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully: no new connections, open sessions are cancelled and awaited.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watchdog != nil {
		go s.watchdog.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("runner listening", "addr", l.Addr().String(), "shell_allowed", s.dispatcher.Sandbox().ShellAllowed)
		errCh <- httpServer.Serve(l)
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := time.Duration(s.cfg.Runner.ShutdownTimeoutMs) * time.Millisecond
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down")
	// Hijacked WebSocket connections are not tracked by Shutdown.
	s.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured runner port.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Runner.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Runner.Port, err)
	}
	return s.Serve(ctx, l)
}

// Close cancels every open session and waits for them to finish.
func (s *Server) Close() {
	s.cancel()
	s.sessions.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	if s.baseCtx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	opts := transport.SessionOptions{
		MaxConcurrent: s.cfg.Runner.MaxConcurrentCommands,
		Logger:        s.logger,
		Metrics:       s.metrics,
	}
	if s.watchdog != nil {
		s.watchdog.Touch()
		opts.Activity = s.watchdog
	}

	s.sessions.Add(1)
	defer s.sessions.Done()

	log := s.logger.With("remote", r.RemoteAddr)
	log.Info("controller connected")
	if err := transport.NewSession(conn, s.dispatcher, opts).Serve(s.baseCtx); err != nil {
		log.Warn("session ended with error", "error", err)
		return
	}
	log.Info("controller disconnected")
}
