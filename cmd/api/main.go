// The api binary serves the realtime auction gateway and the ops surface
// (health probes, metrics) on one port. Bids arrive over websockets, are
// arbitrated against Postgres, and fan out through Redis pub/sub.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/bidwire/auction-exchange-backend/internal/api/rest"
	gateway "github.com/bidwire/auction-exchange-backend/internal/api/websocket"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/auth"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/bus"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/cache"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/config"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/database"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/repository"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/telemetry"
	"github.com/bidwire/auction-exchange-backend/internal/service/arbitration"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		slog.Error("failed to setup logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting auction exchange api",
		"version", cfg.Version,
		"environment", cfg.Environment,
		"port", cfg.Server.Port)

	if cfg.Telemetry.Enabled {
		provider, err := telemetry.Initialize(ctx, telemetry.Config{
			ServiceName:     "auction-api",
			ServiceVersion:  cfg.Version,
			Environment:     cfg.Environment,
			OTLPEndpoint:    cfg.Telemetry.OTLPEndpoint,
			TraceSampleRate: cfg.Telemetry.TraceSampleRate,
			EnableTracing:   true,
			EnableMetrics:   true,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		return err
	}
	defer zapLogger.Sync()

	db, err := database.NewConnectionPool(&cfg.Database, zapLogger)
	if err != nil {
		return err
	}
	defer db.Close()

	eventBus, err := bus.NewRedisBus(&cfg.Bus, zapLogger)
	if err != nil {
		return err
	}
	defer eventBus.Close()

	redisClient, err := cache.NewClient(&cfg.Bus, zapLogger)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	verifier, err := auth.NewVerifier(cfg.Auth.PublicKeyPath, cfg.Auth.Audience, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	bids := arbitration.NewService(repository.NewBidStore(db), logger, arbitration.Config{
		Timeout:     cfg.Bidding.Timeout(),
		MaxRetries:  cfg.Bidding.MaxRetries,
		RetryJitter: cfg.Bidding.RetryJitter,
	})

	limiter := cache.NewRedisRateLimiter(redisClient, zapLogger)
	handler := gateway.NewHandler(verifier, bids, eventBus, limiter,
		cfg.Gateway, cfg.RateLimit, cfg.Bidding.Timeout(), logger)

	health := rest.NewHealthHandler(logger)
	health.Register("database", db)
	health.Register("bus", eventBus)

	server := rest.NewServer(cfg, rest.Deps{
		Gateway: handler,
		Health:  health,
		Logger:  logger,
	})
	return server.Run(ctx)
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
