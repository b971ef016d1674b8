// The seed binary loads a deterministic fixture set for manual end-to-end
// verification: three funded users and a handful of auctions covering the
// lifecycle states, under fixed UUIDs so tokens, websocket URLs and psql
// queries can be scripted against a fresh database. Running it against an
// already-seeded database is a no-op.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bidwire/auction-exchange-backend/internal/domain/account"
	"github.com/bidwire/auction-exchange-backend/internal/domain/auction"
	domainErrors "github.com/bidwire/auction-exchange-backend/internal/domain/errors"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/config"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/database"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/repository"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/telemetry"
	"github.com/bidwire/auction-exchange-backend/internal/service/arbitration"
	"github.com/bidwire/auction-exchange-backend/internal/service/catalog"
)

// Fixture identifiers are fixed so they survive re-provisioning. Tokens for
// manual sessions carry these user ids in the user_id claim.
var (
	aliceID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	bobID   = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	carolID = uuid.MustParse("00000000-0000-0000-0000-000000000003")

	cameraAuctionID    = uuid.MustParse("00000000-0000-0000-0001-000000000001")
	sideboardAuctionID = uuid.MustParse("00000000-0000-0000-0001-000000000002")
	watchLotAuctionID  = uuid.MustParse("00000000-0000-0000-0001-000000000003")
	draftAuctionID     = uuid.MustParse("00000000-0000-0000-0001-000000000004")
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
		logger.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		return fmt.Errorf("creating infrastructure logger: %w", err)
	}
	defer zapLogger.Sync()

	db, err := database.NewConnectionPool(&cfg.Database, zapLogger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	users := repository.NewUserRepository(db)
	wallets := repository.NewWalletRepository(db)
	listings := repository.NewCatalogRepository(db)
	bids := arbitration.NewService(repository.NewBidStore(db), logger, arbitration.Config{
		Timeout:     cfg.Bidding.Timeout(),
		MaxRetries:  cfg.Bidding.MaxRetries,
		RetryJitter: cfg.Bidding.RetryJitter,
	})

	// Re-running against a seeded database must not duplicate fixtures.
	if _, err := users.GetUserByUsername(ctx, "alice"); err == nil {
		logger.Info("database already seeded, nothing to do")
		return nil
	} else if !errors.Is(err, domainErrors.ErrUserNotFound) {
		return fmt.Errorf("checking for existing fixtures: %w", err)
	}

	if err := seedUsers(ctx, users, wallets); err != nil {
		return err
	}
	if err := seedAuctions(ctx, listings); err != nil {
		return err
	}
	if err := seedBids(ctx, bids); err != nil {
		return err
	}

	logger.Info("seed complete",
		slog.String("camera_auction", cameraAuctionID.String()),
		slog.String("sideboard_auction", sideboardAuctionID.String()),
		slog.String("watch_lot_auction", watchLotAuctionID.String()),
	)
	return nil
}

// seedUsers creates the three fixture users and funds their wallets. alice
// owns every auction; bob and carol bid.
func seedUsers(ctx context.Context, users *repository.UserRepository, wallets *repository.WalletRepository) error {
	fixtures := []struct {
		id       uuid.UUID
		username string
		email    string
		balance  string
	}{
		{aliceID, "alice", "alice@bidwire.dev", "500.00"},
		{bobID, "bob", "bob@bidwire.dev", "1000.00"},
		{carolID, "carol", "carol@bidwire.dev", "750.00"},
	}

	for _, f := range fixtures {
		u, err := account.NewUser(f.username, f.email)
		if err != nil {
			return fmt.Errorf("building user %s: %w", f.username, err)
		}
		u.ID = f.id

		if err := users.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("inserting user %s: %w", f.username, err)
		}
		if _, err := wallets.Credit(ctx, f.id, values.MustMoney(f.balance), "seed:initial-balance"); err != nil {
			return fmt.Errorf("funding wallet for %s: %w", f.username, err)
		}
		slog.Info("seeded user",
			slog.String("username", f.username),
			slog.String("user_id", f.id.String()),
			slog.String("balance", f.balance),
		)
	}
	return nil
}

// seedAuctions inserts alice's listings: two long-running active auctions,
// one active auction ending in two minutes (to watch the closer settle it)
// and one draft that stays invisible to the public catalog.
func seedAuctions(ctx context.Context, repo catalog.Repository) error {
	now := time.Now().UTC()

	listings := []struct {
		id          uuid.UUID
		title       string
		description string
		category    auction.Category
		condition   auction.Condition
		end         time.Time
		starting    string
		buyNow      string
		publish     bool
	}{
		{
			id:          cameraAuctionID,
			title:       "Vintage Leica M3 Rangefinder",
			description: "1957 double-stroke body, recently serviced shutter, bright viewfinder.",
			category:    auction.CategoryCollectibles,
			condition:   auction.ConditionGood,
			end:         now.Add(24 * time.Hour),
			starting:    "100.00",
			buyNow:      "650.00",
			publish:     true,
		},
		{
			id:          sideboardAuctionID,
			title:       "Mid-Century Teak Sideboard",
			description: "Danish production, four sliding doors, light wear on the top surface.",
			category:    auction.CategoryHome,
			condition:   auction.ConditionFair,
			end:         now.Add(2 * time.Minute),
			starting:    "250.00",
			publish:     true,
		},
		{
			id:          watchLotAuctionID,
			title:       "Sealed Casio F-91W Lot",
			description: "Ten units, factory sealed, single-owner surplus stock.",
			category:    auction.CategoryFashion,
			condition:   auction.ConditionNew,
			end:         now.Add(7 * 24 * time.Hour),
			starting:    "40.00",
			publish:     true,
		},
		{
			id:          draftAuctionID,
			title:       "1970s Omega Seamaster",
			description: "Needs photos and a service estimate before listing.",
			category:    auction.CategoryCollectibles,
			condition:   auction.ConditionFair,
			end:         now.Add(3 * 24 * time.Hour),
			starting:    "300.00",
		},
	}

	for _, l := range listings {
		product, err := auction.NewProduct(aliceID, l.title, l.description, l.category, l.condition)
		if err != nil {
			return fmt.Errorf("building product %q: %w", l.title, err)
		}

		var buyNow *values.Money
		if l.buyNow != "" {
			price := values.MustMoney(l.buyNow)
			buyNow = &price
		}

		a, err := auction.NewAuction(product, now, l.end, values.MustMoney(l.starting), buyNow)
		if err != nil {
			return fmt.Errorf("building auction %q: %w", l.title, err)
		}
		a.ID = l.id

		if l.publish {
			if err := a.Publish(now); err != nil {
				return fmt.Errorf("publishing auction %q: %w", l.title, err)
			}
		}

		if err := repo.InsertAuction(ctx, a); err != nil {
			return fmt.Errorf("inserting auction %q: %w", l.title, err)
		}
		slog.Info("seeded auction",
			slog.String("title", l.title),
			slog.String("auction_id", l.id.String()),
			slog.String("status", a.Status.String()),
			slog.Time("end_time", a.EndTime),
		)
	}
	return nil
}

// seedBids plays a short bidding war through the real arbitration path so
// holds, releases and the bid log all line up: bob leads the camera at
// 180.00 after carol was refunded, and carol leads the sideboard at 260.00
// so the closer has a winner to notify when it ends.
func seedBids(ctx context.Context, bids arbitration.Service) error {
	history := []struct {
		auctionID uuid.UUID
		bidderID  uuid.UUID
		username  string
		amount    string
	}{
		{cameraAuctionID, bobID, "bob", "120.00"},
		{cameraAuctionID, carolID, "carol", "150.00"},
		{cameraAuctionID, bobID, "bob", "180.00"},
		{sideboardAuctionID, carolID, "carol", "260.00"},
	}

	for _, h := range history {
		result, err := bids.PlaceBid(ctx, &arbitration.PlaceBidRequest{
			AuctionID:      h.auctionID,
			BidderID:       h.bidderID,
			BidderUsername: h.username,
			Amount:         values.MustMoney(h.amount),
		})
		if err != nil {
			return fmt.Errorf("placing seed bid of %s by %s: %w", h.amount, h.username, err)
		}
		slog.Info("seeded bid",
			slog.String("auction_id", result.AuctionID.String()),
			slog.String("bidder", h.username),
			slog.String("new_price", result.NewPrice.String()),
		)
	}
	return nil
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
