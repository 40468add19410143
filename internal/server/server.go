// Package server exposes the public HTTP API: asset queries and creation,
// a manual sync trigger, health, metrics and the live update websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/pricesync/internal/server/handler"
	"github.com/alanyoungcy/pricesync/internal/server/middleware"
	"github.com/alanyoungcy/pricesync/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey guards mutating endpoints. Empty disables authentication.
	APIKey string
	// RequestsPerSecond and Burst size the per-client token bucket. A
	// non-positive rate disables API throttling.
	RequestsPerSecond float64
	Burst             int
}

// Handlers aggregates the endpoint handlers. Sync and Hub may be nil when
// this process does not run the task or has no update bus.
type Handlers struct {
	Health  *handler.HealthHandler
	Assets  *handler.AssetHandler
	Sync    *handler.SyncHandler
	Hub     *ws.Hub
	Metrics http.Handler
	// Instrument wraps the whole chain with request metrics when set.
	Instrument func(http.Handler) http.Handler
}

// Server is the HTTP + websocket API server.
type Server struct {
	httpServer *http.Server
	limiter    *middleware.ClientLimiter
	logger     *slog.Logger
}

// NewServer registers every route and builds the middleware chain.
func NewServer(cfg Config, h Handlers, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "server"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/assets", h.Assets.List)
	mux.HandleFunc("GET /api/assets/{symbol}", h.Assets.Get)
	mux.HandleFunc("POST /api/assets", h.Assets.Create)
	if h.Sync != nil {
		mux.HandleFunc("POST /api/sync/trigger", h.Sync.Trigger)
	}
	if h.Hub != nil {
		mux.HandleFunc("GET /ws", h.Hub.HandleWS)
	}
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}

	var chain http.Handler = mux
	chain = middleware.Auth(cfg.APIKey)(chain)

	var limiter *middleware.ClientLimiter
	if cfg.RequestsPerSecond > 0 {
		limiter = middleware.NewClientLimiter(cfg.RequestsPerSecond, cfg.Burst, logger)
		chain = limiter.Handler(chain)
	}
	chain = middleware.Logging(logger)(chain)
	chain = middleware.CORS(cfg.CORSOrigins)(chain)
	if h.Instrument != nil {
		chain = h.Instrument(chain)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           chain,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// The sync trigger can wait out a full limiter window.
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		limiter: limiter,
		logger:  logger,
	}
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until Shutdown is called. Idle per-client limiters are swept
// while it runs.
func (s *Server) Start(ctx context.Context) error {
	if s.limiter != nil {
		go s.sweep(ctx)
	}
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func (s *Server) sweep(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.limiter.Sweep(); n > 0 {
				s.logger.Debug("server: swept idle client limiters", slog.Int("removed", n))
			}
		}
	}
}
