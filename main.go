// Running the whole exchange as one process with nothing behind it: state
// lives in memory, fan-out runs on an in-process bus, and tokens verify
// against a keypair generated at startup. The boot log prints a signed
// token per fixture user so a websocket client can connect immediately.
// Production deployments run cmd/api and cmd/closer instead.
package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bidwire/auction-exchange-backend/internal/api/rest"
	gateway "github.com/bidwire/auction-exchange-backend/internal/api/websocket"
	"github.com/bidwire/auction-exchange-backend/internal/domain/account"
	"github.com/bidwire/auction-exchange-backend/internal/domain/auction"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/auth"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/config"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/telemetry"
	"github.com/bidwire/auction-exchange-backend/internal/service/arbitration"
	"github.com/bidwire/auction-exchange-backend/internal/service/closer"
	"github.com/bidwire/auction-exchange-backend/internal/testutil/membus"
	"github.com/bidwire/auction-exchange-backend/internal/testutil/memstore"
)

var (
	aliceID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	bobID   = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	carolID = uuid.MustParse("00000000-0000-0000-0000-000000000003")

	cameraAuctionID = uuid.MustParse("00000000-0000-0000-0001-000000000001")
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
		logger.Error("dev server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting single-binary dev mode",
		slog.String("version", cfg.Version),
		slog.Int("port", cfg.Server.Port))

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("generating dev keypair: %w", err)
	}
	verifier := auth.NewVerifierWithKey(&key.PublicKey, cfg.Auth.Audience, cfg.Auth.Issuer)

	store := memstore.New()
	eventBus := membus.New()

	bids := arbitration.NewService(store.BidStore(), logger, arbitration.Config{
		Timeout:     cfg.Bidding.Timeout(),
		MaxRetries:  cfg.Bidding.MaxRetries,
		RetryJitter: cfg.Bidding.RetryJitter,
	})
	sweeper := closer.NewSweeper(store.CloserStore(), &logNotifier{logger: logger}, nil, logger, closer.Config{
		Interval:     cfg.Closer.Interval(),
		MaxAttempts:  cfg.Closer.MaxRetries,
		RetryBackoff: cfg.Closer.RetryBackoff,
	})

	if err := seedDevData(ctx, store, bids); err != nil {
		return fmt.Errorf("seeding dev fixtures: %w", err)
	}

	ws := gateway.NewHandler(verifier, bids, eventBus, nil,
		cfg.Gateway, cfg.RateLimit, cfg.Bidding.Timeout(), logger)

	server := rest.NewServer(cfg, rest.Deps{
		Gateway: ws,
		Health:  rest.NewHealthHandler(logger),
		Logger:  logger,
	})

	if err := printDevTokens(cfg, key, logger); err != nil {
		return err
	}

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

// seedDevData loads the same fixture shape cmd/seed writes to Postgres:
// three funded users and one active auction with a short bidding history,
// so a fresh dev session has something to outbid.
func seedDevData(ctx context.Context, store *memstore.Store, bids arbitration.Service) error {
	users := []struct {
		id       uuid.UUID
		username string
		email    string
		balance  string
	}{
		{aliceID, "alice", "alice@bidwire.dev", "500.00"},
		{bobID, "bob", "bob@bidwire.dev", "1000.00"},
		{carolID, "carol", "carol@bidwire.dev", "750.00"},
	}
	for _, f := range users {
		u, err := account.NewUser(f.username, f.email)
		if err != nil {
			return err
		}
		u.ID = f.id
		store.PutUser(u)

		w := account.NewWallet(f.id)
		if err := w.Credit(values.MustMoney(f.balance)); err != nil {
			return err
		}
		store.PutWallet(w)
	}

	now := time.Now().UTC()
	product, err := auction.NewProduct(aliceID,
		"Vintage Leica M3 Rangefinder",
		"1957 double-stroke body, recently serviced shutter, bright viewfinder.",
		auction.CategoryCollectibles, auction.ConditionGood)
	if err != nil {
		return err
	}
	buyNow := values.MustMoney("650.00")
	a, err := auction.NewAuction(product, now, now.Add(24*time.Hour), values.MustMoney("100.00"), &buyNow)
	if err != nil {
		return err
	}
	a.ID = cameraAuctionID
	if err := a.Publish(now); err != nil {
		return err
	}
	store.PutAuction(a)

	history := []struct {
		bidderID uuid.UUID
		username string
		amount   string
	}{
		{bobID, "bob", "120.00"},
		{carolID, "carol", "150.00"},
		{bobID, "bob", "180.00"},
	}
	for _, h := range history {
		if _, err := bids.PlaceBid(ctx, &arbitration.PlaceBidRequest{
			AuctionID:      cameraAuctionID,
			BidderID:       h.bidderID,
			BidderUsername: h.username,
			Amount:         values.MustMoney(h.amount),
		}); err != nil {
			return err
		}
	}
	return nil
}

// printDevTokens signs a 24 h token per fixture user with the startup
// keypair and logs the ready-to-paste websocket URL.
func printDevTokens(cfg *config.Config, key *rsa.PrivateKey, logger *slog.Logger) error {
	users := []struct {
		id       uuid.UUID
		username string
	}{
		{aliceID, "alice"},
		{bobID, "bob"},
		{carolID, "carol"},
	}

	now := time.Now()
	for _, u := range users {
		claims := auth.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   u.username,
				Audience:  jwt.ClaimStrings{cfg.Auth.Audience},
				Issuer:    cfg.Auth.Issuer,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			},
			UserID:   u.id.String(),
			Username: u.username,
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
		if err != nil {
			return fmt.Errorf("signing dev token for %s: %w", u.username, err)
		}
		logger.Info("dev session",
			slog.String("username", u.username),
			slog.String("url", fmt.Sprintf("ws://localhost:%d/ws/auction/%s?token=%s",
				cfg.Server.Port, cameraAuctionID, token)))
	}
	return nil
}

// logNotifier stands in for the Redis-backed queue in dev mode: winner
// notifications land in the log instead of a worker queue.
type logNotifier struct {
	logger *slog.Logger
}

func (n *logNotifier) NotifyWinner(ctx context.Context, w closer.WinnerNotification) error {
	n.logger.Info("auction won",
		slog.String("auction_id", w.AuctionID.String()),
		slog.String("winner_id", w.WinnerID.String()),
		slog.String("product", w.ProductTitle),
		slog.String("final_price", w.FinalPrice.String()))
	return nil
}
