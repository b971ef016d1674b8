package auction

import (
	"time"

	"github.com/google/uuid"

	"github.com/bidwire/auction-exchange-backend/internal/domain/errors"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
)

// Bid is one row of the append-only bid log. Rows are never updated and
// never deleted while their auction exists.
type Bid struct {
	ID        uuid.UUID    `json:"id"`
	AuctionID uuid.UUID    `json:"auction_id"`
	BidderID  uuid.UUID    `json:"bidder_id"`
	Amount    values.Money `json:"amount"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewBid creates a bid log entry with validation.
func NewBid(auctionID, bidderID uuid.UUID, amount values.Money) (*Bid, error) {
	if auctionID == uuid.Nil || bidderID == uuid.Nil {
		return nil, errors.NewValidationError("INVALID_REFERENCE", "bid requires auction and bidder")
	}
	if !amount.IsPositive() || !amount.FitsPrice() {
		return nil, errors.ErrInvalidAmount
	}

	return &Bid{
		ID:        uuid.New(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}, nil
}
