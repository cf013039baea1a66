// Package api serves the vip HTTP surface: the form page, training and
// prediction, plus run history, health and metrics endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"vip/internal/auth"
	"vip/internal/config"
	"vip/internal/dispatch"
	"vip/internal/pipeline"
	"vip/internal/runs"
	"vip/internal/web"
)

// Dependencies are the collaborators a Server delegates to. Runs, Guard and
// Limiter are optional.
type Dependencies struct {
	Dispatcher *dispatch.Dispatcher
	Trainer    pipeline.Trainer
	Predictor  pipeline.Predictor
	Renderer   *web.Renderer
	Runs       *runs.Store
	Guard      *auth.Guard
	Limiter    *auth.RateLimiter
	Metrics    *MetricsCollector
}

// Server represents the HTTP API server.
type Server struct {
	router *http.ServeMux
	server *http.Server
	addr   string
	logger *slog.Logger

	dispatcher *dispatch.Dispatcher
	trainer    pipeline.Trainer
	predictor  pipeline.Predictor
	renderer   *web.Renderer
	runs       *runs.Store
	guard      *auth.Guard
	limiter    *auth.RateLimiter
	metrics    *MetricsCollector

	maxBodyBytes int64
	compress     bool
	startedAt    time.Time
}

// NewServer creates a new HTTP server instance.
func NewServer(cfg config.ServerConfig, deps Dependencies, logger *slog.Logger) (*Server, error) {
	if deps.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if deps.Trainer == nil || deps.Predictor == nil {
		return nil, errors.New("trainer and predictor are required")
	}
	if deps.Renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetricsCollector()
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	s := &Server{
		router:       http.NewServeMux(),
		addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		logger:       logger,
		dispatcher:   deps.Dispatcher,
		trainer:      deps.Trainer,
		predictor:    deps.Predictor,
		renderer:     deps.Renderer,
		runs:         deps.Runs,
		guard:        deps.Guard,
		limiter:      deps.Limiter,
		metrics:      deps.Metrics,
		maxBodyBytes: maxBody,
		compress:     cfg.Compress,
		startedAt:    time.Now(),
	}

	s.dispatcher.OnComplete(s.metrics.ObserveCompletion)

	s.registerRoutes()

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.applyMiddleware(s.router),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	return s, nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Starting HTTP server", "addr", ln.Addr().String())

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server shut down successfully")
	return nil
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// applyMiddleware wraps the handler with middleware in the correct order.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	// Last applied runs first.
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = LoggingMiddleware(s.logger, s.metrics)(handler)
	if s.compress {
		handler = gzhttp.GzipHandler(handler)
	}
	handler = RequestIDMiddleware()(handler)
	handler = CORSMiddleware()(handler)
	return handler
}
