package closer

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bidwire/auction-exchange-backend/internal/domain/auction"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/telemetry"
	"github.com/bidwire/auction-exchange-backend/internal/metrics"
)

// Config tunes the sweep loop.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration
	// MaxAttempts bounds notification dispatch attempts per auction.
	MaxAttempts int
	// RetryBackoff is the base delay between attempts; it doubles each time.
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	return c
}

// SweepResult counts the transitions one sweep committed.
type SweepResult struct {
	Finished int
	Expired  int
}

// Sweeper periodically settles auctions whose end time has passed. The sweep
// is idempotent: settled auctions are terminal and never selected again.
// Failures are logged and never kill the loop.
type Sweeper struct {
	store    Store
	notifier Notifier
	dedup    DedupStore
	logger   *slog.Logger
	cfg      Config
	tracer   trace.Tracer
}

// NewSweeper creates an auction closer. dedup may be nil, in which case
// dispatch relies on the terminal-status filter alone.
func NewSweeper(store Store, notifier Notifier, dedup DedupStore, logger *slog.Logger, cfg Config) *Sweeper {
	return &Sweeper{
		store:    store,
		notifier: notifier,
		dedup:    dedup,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		tracer:   telemetry.Tracer("closer"),
	}
}

// Run sweeps immediately, then on every interval tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.sweepAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	res, err := s.SweepOnce(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "auction sweep failed", "error", err)
		return
	}
	if res.Finished > 0 || res.Expired > 0 {
		s.logger.InfoContext(ctx, "auction sweep settled auctions",
			"finished", res.Finished, "expired", res.Expired)
	}
}

// SweepOnce settles all expired ACTIVE auctions in one transaction, then
// dispatches winner notifications outside it. A notification failure never
// rolls the settlement back; the auction stays FINISHED either way.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	ctx, span := s.tracer.Start(ctx, "closer.sweep")
	defer span.End()

	metrics.SweepsTotal.Inc()

	var result SweepResult
	var notifications []WinnerNotification

	err := s.store.InTx(ctx, func(tx Tx) error {
		now := time.Now().UTC()
		expired, err := tx.LockExpired(ctx, now)
		if err != nil {
			return err
		}

		for _, a := range expired {
			status, err := a.Settle()
			if err != nil {
				return err
			}
			if err := tx.UpdateAuction(ctx, a); err != nil {
				return err
			}

			switch status {
			case auction.StatusFinished:
				result.Finished++
				if a.WinnerID != nil {
					notifications = append(notifications, WinnerNotification{
						AuctionID:    a.ID,
						WinnerID:     *a.WinnerID,
						ProductTitle: a.Product.Title,
						FinalPrice:   a.CurrentPrice,
						ClosedAt:     now,
					})
				}
			case auction.StatusExpired:
				result.Expired++
			}
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return SweepResult{}, err
	}

	span.SetAttributes(
		attribute.Int("finished", result.Finished),
		attribute.Int("expired", result.Expired),
	)
	metrics.AuctionsClosed.WithLabelValues(string(auction.StatusFinished)).Add(float64(result.Finished))
	metrics.AuctionsClosed.WithLabelValues(string(auction.StatusExpired)).Add(float64(result.Expired))

	for _, n := range notifications {
		s.dispatch(ctx, n)
	}
	return result, nil
}

// dispatch tries the notifier up to MaxAttempts times with exponential
// backoff. Persistent failure is logged and swallowed.
func (s *Sweeper) dispatch(ctx context.Context, n WinnerNotification) {
	if s.dedup != nil {
		fresh, err := s.dedup.MarkNotified(ctx, n.AuctionID)
		if err != nil {
			// Dedup is advisory; losing it must not lose the notification.
			s.logger.WarnContext(ctx, "notification dedup unavailable",
				"auction_id", n.AuctionID, "error", err)
		} else if !fresh {
			return
		}
	}

	backoff := s.cfg.RetryBackoff
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		err := s.notifier.NotifyWinner(ctx, n)
		if err == nil {
			metrics.NotificationsEnqueued.Inc()
			return
		}
		if attempt == s.cfg.MaxAttempts {
			metrics.NotificationFailures.Inc()
			s.logger.ErrorContext(ctx, "winner notification dropped",
				"auction_id", n.AuctionID,
				"winner_id", n.WinnerID,
				"attempts", attempt,
				"error", err)
			return
		}
		s.logger.WarnContext(ctx, "winner notification failed, retrying",
			"auction_id", n.AuctionID, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}
