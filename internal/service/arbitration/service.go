package arbitration

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bidwire/auction-exchange-backend/internal/domain/account"
	"github.com/bidwire/auction-exchange-backend/internal/domain/auction"
	"github.com/bidwire/auction-exchange-backend/internal/domain/errors"
	"github.com/bidwire/auction-exchange-backend/internal/domain/ledger"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/telemetry"
	"github.com/bidwire/auction-exchange-backend/internal/metrics"
)

// Config tunes the arbitration path.
type Config struct {
	// Timeout is the per-call deadline; the transaction aborts when it fires.
	Timeout time.Duration
	// MaxRetries bounds re-runs after transient storage failures.
	MaxRetries int
	// RetryJitter spaces those re-runs apart.
	RetryJitter time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryJitter <= 0 {
		c.RetryJitter = 50 * time.Millisecond
	}
	return c
}

type service struct {
	store  Store
	logger *slog.Logger
	cfg    Config
	tracer trace.Tracer
}

// NewService creates the bid arbitration service.
func NewService(store Store, logger *slog.Logger, cfg Config) Service {
	return &service{
		store:  store,
		logger: logger,
		cfg:    cfg.withDefaults(),
		tracer: telemetry.Tracer("arbitration"),
	}
}

// PlaceBid commits one bid. Preconditions are validated in a fixed order so
// callers always see the earliest failure; the same checks run again under
// the row locks because state may advance between read and lock.
func (s *service) PlaceBid(ctx context.Context, req *PlaceBidRequest) (*BidResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "arbitration.place_bid",
		trace.WithAttributes(
			attribute.String("auction_id", req.AuctionID.String()),
			attribute.String("amount", req.Amount.String()),
		))
	defer span.End()

	if !req.Amount.IsPositive() || !req.Amount.FitsPrice() {
		return nil, errors.ErrInvalidAmount
	}

	var result *BidResult
	err := s.withRetry(ctx, func() error {
		return s.store.InTx(ctx, func(tx Tx) error {
			// Lock order is fixed: bidder wallet, auction, previous
			// winner wallet. Deviating reintroduces the deadlock class.
			wallet, err := tx.LockWallet(ctx, req.BidderID)
			if err != nil {
				return err
			}
			auc, err := tx.LockAuction(ctx, req.AuctionID)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			if err := auc.CanAcceptBid(req.BidderID, req.Amount, now); err != nil {
				return err
			}
			if !wallet.CanCover(req.Amount) {
				return errors.ErrInsufficientFunds
			}

			if err := s.releasePreviousWinner(ctx, tx, auc, wallet, req.BidderID); err != nil {
				return err
			}

			if err := wallet.Hold(req.Amount); err != nil {
				return err
			}
			hold, err := ledger.NewBidHold(wallet.ID, req.Amount, auc.ID)
			if err != nil {
				return err
			}
			if err := tx.InsertLedgerEntry(ctx, hold); err != nil {
				return err
			}
			if err := tx.UpdateWallet(ctx, wallet); err != nil {
				return err
			}

			b, err := auction.NewBid(auc.ID, req.BidderID, req.Amount)
			if err != nil {
				return err
			}
			if err := tx.InsertBid(ctx, b); err != nil {
				return err
			}

			auc.ApplyBid(req.BidderID, req.Amount)
			if err := tx.UpdateAuction(ctx, auc); err != nil {
				return err
			}

			result = &BidResult{
				AuctionID:      auc.ID,
				NewPrice:       auc.CurrentPrice,
				NewBalance:     wallet.Balance,
				BidderID:       req.BidderID,
				BidderUsername: req.BidderUsername,
				Timestamp:      b.CreatedAt,
			}
			return nil
		})
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	return result, nil
}

// BuyNow finishes the auction at its buy-now price. The previous winner is
// refunded exactly as on an outbid; the buyer's funds are held under a
// PAYMENT entry pending the out-of-band seller payout.
func (s *service) BuyNow(ctx context.Context, req *BuyNowRequest) (*BidResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "arbitration.buy_now",
		trace.WithAttributes(attribute.String("auction_id", req.AuctionID.String())))
	defer span.End()

	var result *BidResult
	err := s.withRetry(ctx, func() error {
		return s.store.InTx(ctx, func(tx Tx) error {
			wallet, err := tx.LockWallet(ctx, req.BuyerID)
			if err != nil {
				return err
			}
			auc, err := tx.LockAuction(ctx, req.AuctionID)
			if err != nil {
				return err
			}

			if err := auc.CanBuyNow(req.BuyerID); err != nil {
				return err
			}
			price := *auc.BuyNowPrice
			if !wallet.CanCover(price) {
				return errors.ErrInsufficientFunds
			}

			if err := s.releasePreviousWinner(ctx, tx, auc, wallet, req.BuyerID); err != nil {
				return err
			}

			if err := wallet.Hold(price); err != nil {
				return err
			}
			payment, err := ledger.NewPayment(wallet.ID, price, auc.ID)
			if err != nil {
				return err
			}
			if err := tx.InsertLedgerEntry(ctx, payment); err != nil {
				return err
			}
			if err := tx.UpdateWallet(ctx, wallet); err != nil {
				return err
			}

			now := time.Now().UTC()
			auc.ApplyBuyNow(req.BuyerID, now)
			if err := tx.UpdateAuction(ctx, auc); err != nil {
				return err
			}

			result = &BidResult{
				AuctionID:      auc.ID,
				NewPrice:       auc.CurrentPrice,
				NewBalance:     wallet.Balance,
				BidderID:       req.BuyerID,
				BidderUsername: req.BuyerUsername,
				Timestamp:      now,
				Closed:         true,
			}
			return nil
		})
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	metrics.BidOutcomes.WithLabelValues(metrics.OutcomeBuyNowClosed).Inc()
	return result, nil
}

// releasePreviousWinner refunds the held amount of the auction's current
// winner. When the bidder raises their own winning bid the wallet row is
// already locked, so the release applies to it directly and no third lock
// is taken; the ledger still records the full release/hold pair.
func (s *service) releasePreviousWinner(ctx context.Context, tx Tx, auc *auction.Auction, bidderWallet *account.Wallet, bidderID uuid.UUID) error {
	if auc.WinnerID == nil {
		return nil
	}

	priorPrice := auc.CurrentPrice
	prevWallet := bidderWallet
	if *auc.WinnerID != bidderID {
		w, err := tx.LockWallet(ctx, *auc.WinnerID)
		if err != nil {
			return err
		}
		prevWallet = w
	}

	if err := prevWallet.Release(priorPrice); err != nil {
		return err
	}
	release, err := ledger.NewBidRelease(prevWallet.ID, priorPrice, auc.ID)
	if err != nil {
		return err
	}
	if err := tx.InsertLedgerEntry(ctx, release); err != nil {
		return err
	}
	if prevWallet != bidderWallet {
		if err := tx.UpdateWallet(ctx, prevWallet); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil || !errors.IsRetryable(err) || attempt >= s.cfg.MaxRetries {
			return err
		}
		s.logger.WarnContext(ctx, "retrying after transient storage failure",
			"attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return err
		case <-time.After(s.cfg.RetryJitter/2 + rand.N(s.cfg.RetryJitter)):
		}
	}
}
