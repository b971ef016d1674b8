package arbitration

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bidwire/auction-exchange-backend/internal/domain/account"
	"github.com/bidwire/auction-exchange-backend/internal/domain/auction"
	"github.com/bidwire/auction-exchange-backend/internal/domain/ledger"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
)

// Service arbitrates bids. Every call runs as one atomic storage unit; on
// failure nothing is visible to other sessions.
type Service interface {
	// PlaceBid validates and commits a bid, holding the bidder's funds and
	// releasing the previous winner's
	PlaceBid(ctx context.Context, req *PlaceBidRequest) (*BidResult, error)
	// BuyNow finishes an auction immediately at its buy-now price
	BuyNow(ctx context.Context, req *BuyNowRequest) (*BidResult, error)
}

// Store provides transactional access to auctions, wallets, bids, and the
// wallet ledger.
type Store interface {
	// InTx runs fn inside a single transaction; fn returning an error
	// rolls every mutation back
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the per-transaction storage surface. Lock methods take exclusive
// row locks; the caller owns the lock ordering.
type Tx interface {
	// LockWallet loads a user's wallet under an exclusive row lock
	LockWallet(ctx context.Context, userID uuid.UUID) (*account.Wallet, error)
	// LockAuction loads an auction under an exclusive row lock
	LockAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error)
	// UpdateWallet persists wallet balances
	UpdateWallet(ctx context.Context, w *account.Wallet) error
	// UpdateAuction persists auction price, winner, status, and end time
	UpdateAuction(ctx context.Context, a *auction.Auction) error
	// InsertBid appends a bid transaction row
	InsertBid(ctx context.Context, b *auction.Bid) error
	// InsertLedgerEntry appends a wallet audit entry
	InsertLedgerEntry(ctx context.Context, e *ledger.Entry) error
}

// PlaceBidRequest carries one bid attempt. BidderUsername comes from the
// verified token and is echoed into the result for presentation.
type PlaceBidRequest struct {
	AuctionID      uuid.UUID
	BidderID       uuid.UUID
	BidderUsername string
	Amount         values.Money
}

// BuyNowRequest carries a buy-now attempt.
type BuyNowRequest struct {
	AuctionID     uuid.UUID
	BuyerID       uuid.UUID
	BuyerUsername string
}

// BidResult reports a committed bid or buy-now.
type BidResult struct {
	AuctionID      uuid.UUID
	NewPrice       values.Money
	NewBalance     values.Money
	BidderID       uuid.UUID
	BidderUsername string
	Timestamp      time.Time
	// Closed is set when the operation finished the auction (buy-now).
	Closed bool
}
