// Package rest is the operational HTTP surface served next to the
// websocket gateway: health probes, Prometheus metrics and the gateway
// endpoint itself. The auction catalog deliberately has no public REST
// binding; its operations are consumed as Go interfaces.
package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bidwire/auction-exchange-backend/internal/api/websocket"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/config"
	"github.com/bidwire/auction-exchange-backend/internal/metrics"
)

// Deps carries everything the ops server exposes. Gateway may be nil for
// deployments that only serve probes and metrics (the closer worker).
type Deps struct {
	Gateway *websocket.Handler
	Health  *HealthHandler
	Logger  *slog.Logger
}

// Server is the process's HTTP front door.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	gateway    *websocket.Handler
	limiter    *ipLimiter
	logger     *slog.Logger
}

// NewServer assembles the router and middleware chain.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		gateway: deps.Gateway,
		limiter: newIPLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize),
		logger:  deps.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", deps.Health.Liveness)
	mux.HandleFunc("GET /readyz", deps.Health.Readiness)
	mux.Handle("GET /metrics", metrics.Handler())
	if deps.Gateway != nil {
		mux.HandleFunc("GET /ws/auction/{auction_id}", deps.Gateway.HandleAuction)
	}

	handler := chain(mux,
		loggingMiddleware(deps.Logger),
		recoveryMiddleware(deps.Logger),
		rateLimitMiddleware(s.limiter),
	)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  2 * cfg.Server.ReadTimeout,
	}

	return s
}

// Handler returns the composed handler; tests serve it via httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully: stop
// accepting, wait out in-flight requests, then drain websocket sessions
// (hijacked connections are invisible to http.Server.Shutdown).
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening",
			slog.String("addr", s.httpServer.Addr),
			slog.String("environment", s.cfg.Environment))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	s.logger.Info("http server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)

	if s.gateway != nil {
		s.gateway.Drain()
	}
	s.limiter.Close()

	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
