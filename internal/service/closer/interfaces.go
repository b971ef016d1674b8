package closer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bidwire/auction-exchange-backend/internal/domain/auction"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
)

// Store provides transactional access to expired auctions.
type Store interface {
	// InTx runs fn inside a single transaction
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the per-sweep storage surface.
type Tx interface {
	// LockExpired loads every ACTIVE auction past its end time under an
	// exclusive row lock, so the sweep cannot race a live bid
	LockExpired(ctx context.Context, now time.Time) ([]*auction.Auction, error)
	// UpdateAuction persists the terminal status
	UpdateAuction(ctx context.Context, a *auction.Auction) error
}

// Notifier delivers the winner notification. The concrete channel (queue,
// email, push) is a collaborator behind this interface.
type Notifier interface {
	// NotifyWinner dispatches one notification; implementations should be
	// idempotent per auction
	NotifyWinner(ctx context.Context, n WinnerNotification) error
}

// DedupStore remembers which auctions already had their notification
// dispatched, so a re-run after a partial failure does not double-send.
type DedupStore interface {
	// MarkNotified records dispatch for an auction; false means an
	// earlier run already dispatched it
	MarkNotified(ctx context.Context, auctionID uuid.UUID) (bool, error)
}

// WinnerNotification tells a winner their bid held through close.
type WinnerNotification struct {
	AuctionID    uuid.UUID    `json:"auction_id"`
	WinnerID     uuid.UUID    `json:"winner_id"`
	ProductTitle string       `json:"product_title"`
	FinalPrice   values.Money `json:"final_price"`
	ClosedAt     time.Time    `json:"closed_at"`
}
