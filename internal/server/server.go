// Package server exposes the query optimizer and its backing graph store
// over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sanonone/kektorplan/pkg/embeddings"
	"github.com/sanonone/kektorplan/pkg/memgraph"
	"github.com/sanonone/kektorplan/pkg/metrics"
	"github.com/sanonone/kektorplan/pkg/optimizer"
)

// maxBodyBytes bounds request bodies; vectors make them larger than usual.
const maxBodyBytes = 8 << 20

// Options configures a Server.
type Options struct {
	// Addr is the listen address used by Run.
	Addr string
	// AuthToken, when set, is required as a bearer token on every API
	// route. /healthz and /metrics stay open.
	AuthToken string
	// Embedder turns query_text into a vector for queries sent without
	// one. Optional.
	Embedder embeddings.Embedder
	// MCP, when set, is served at /mcp behind the same auth as the API.
	MCP    http.Handler
	Logger *slog.Logger
}

// Server holds the HTTP interface, the optimizer and the graph it plans
// against.
type Server struct {
	Optimizer *optimizer.UnifiedGraphRAGQueryOptimizer
	Store     *memgraph.Store

	embedder   embeddings.Embedder
	authToken  string
	logger     *slog.Logger
	handler    http.Handler
	httpServer *http.Server
}

// NewServer wires the routes. The optimizer and store are shared with the
// caller, which keeps ownership of both.
func NewServer(opt *optimizer.UnifiedGraphRAGQueryOptimizer, store *memgraph.Store, o Options) *Server {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	s := &Server{
		Optimizer: opt,
		Store:     store,
		embedder:  o.Embedder,
		authToken: o.AuthToken,
		logger:    o.Logger,
	}
	metrics.GraphNodes.Set(float64(store.Len()))

	mux := http.NewServeMux()
	s.registerHTTPHandlers(mux)

	// Chain middlewares: Recovery -> Logging -> Auth -> Mux
	var handler http.Handler = mux
	handler = s.authMiddleware(handler)
	handler = s.LoggingMiddleware(handler)
	handler = s.RecoveryMiddleware(handler)

	rootMux := http.NewServeMux()
	rootMux.HandleFunc("GET /healthz", s.handleHealthz)
	rootMux.Handle("GET /metrics", promhttp.Handler())
	if o.MCP != nil {
		rootMux.Handle("/mcp", s.RecoveryMiddleware(s.authMiddleware(o.MCP)))
	}
	rootMux.Handle("/", handler)
	s.handler = rootMux

	s.httpServer = &http.Server{
		Addr:              o.Addr,
		Handler:           rootMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, for embedding or tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server startup failed: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server, waiting up to five seconds for
// in-flight requests.
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown of HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}
}
