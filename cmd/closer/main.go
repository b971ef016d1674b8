// The closer binary runs the auction sweep: every interval it settles
// auctions whose end time has passed and enqueues winner notifications.
// It serves health probes and metrics but no gateway.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/bidwire/auction-exchange-backend/internal/api/rest"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/cache"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/config"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/database"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/notify"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/repository"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/telemetry"
	"github.com/bidwire/auction-exchange-backend/internal/service/closer"
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
		logger.Error("closer failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting auction closer",
		"version", cfg.Version,
		"environment", cfg.Environment,
		"interval", cfg.Closer.Interval().String(),
		"queue", cfg.Closer.Queue)

	if cfg.Telemetry.Enabled {
		provider, err := telemetry.Initialize(ctx, telemetry.Config{
			ServiceName:     "auction-closer",
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

	notifier, err := notify.NewQueueNotifier(&cfg.Bus, cfg.Closer.Queue, zapLogger)
	if err != nil {
		return err
	}
	defer notifier.Close()

	redisClient, err := cache.NewClient(&cfg.Bus, zapLogger)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	dedup := cache.NewDedupStore(redisClient, cfg.Closer.DedupTTL, zapLogger)

	sweeper := closer.NewSweeper(repository.NewCloserStore(db), notifier, dedup, logger, closer.Config{
		Interval:     cfg.Closer.Interval(),
		MaxAttempts:  cfg.Closer.MaxRetries,
		RetryBackoff: cfg.Closer.RetryBackoff,
	})

	health := rest.NewHealthHandler(logger)
	health.Register("database", db)
	health.Register("queue", notifier)
	health.Register("cache", redisClient)

	server := rest.NewServer(cfg, rest.Deps{
		Health: health,
		Logger: logger,
	})

	// Either loop failing stops the sibling so the process exits whole.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- sweeper.Run(runCtx) }()
	go func() { errCh <- server.Run(runCtx) }()

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			if firstErr == nil {
				firstErr = err
			}
			cancel()
		}
	}
	return firstErr
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
