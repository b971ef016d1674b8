package fixtures

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bidwire/auction-exchange-backend/internal/domain/auction"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
)

var auctionSeq atomic.Int64

// AuctionBuilder builds test auctions. Defaults: ACTIVE, started an hour
// ago, ending in an hour, starting price 100.00, no bids yet.
type AuctionBuilder struct {
	id            uuid.UUID
	ownerID       uuid.UUID
	title         string
	description   string
	category      auction.Category
	condition     auction.Condition
	status        auction.Status
	startTime     time.Time
	endTime       time.Time
	startingPrice values.Money
	currentPrice  *values.Money
	buyNowPrice   *values.Money
	winnerID      *uuid.UUID
}

// NewAuctionBuilder creates a builder with sane defaults.
func NewAuctionBuilder() *AuctionBuilder {
	n := auctionSeq.Add(1)
	now := time.Now().UTC()
	return &AuctionBuilder{
		id:            uuid.New(),
		ownerID:       uuid.New(),
		title:         fmt.Sprintf("Test Listing %d", n),
		description:   "A test listing",
		category:      auction.CategoryElectronics,
		condition:     auction.ConditionGood,
		status:        auction.StatusActive,
		startTime:     now.Add(-time.Hour),
		endTime:       now.Add(time.Hour),
		startingPrice: values.MustMoney("100.00"),
	}
}

// WithID sets the auction ID.
func (b *AuctionBuilder) WithID(id uuid.UUID) *AuctionBuilder {
	b.id = id
	return b
}

// WithOwner sets the product owner.
func (b *AuctionBuilder) WithOwner(ownerID uuid.UUID) *AuctionBuilder {
	b.ownerID = ownerID
	return b
}

// WithTitle sets the product title.
func (b *AuctionBuilder) WithTitle(title string) *AuctionBuilder {
	b.title = title
	return b
}

// WithCategory sets the product category.
func (b *AuctionBuilder) WithCategory(c auction.Category) *AuctionBuilder {
	b.category = c
	return b
}

// WithCondition sets the product condition.
func (b *AuctionBuilder) WithCondition(c auction.Condition) *AuctionBuilder {
	b.condition = c
	return b
}

// WithStatus sets the lifecycle status.
func (b *AuctionBuilder) WithStatus(s auction.Status) *AuctionBuilder {
	b.status = s
	return b
}

// Draft marks the auction DRAFT.
func (b *AuctionBuilder) Draft() *AuctionBuilder {
	b.status = auction.StatusDraft
	return b
}

// Ended moves the window entirely into the past, keeping status ACTIVE so
// sweep tests can settle it.
func (b *AuctionBuilder) Ended() *AuctionBuilder {
	now := time.Now().UTC()
	b.startTime = now.Add(-2 * time.Hour)
	b.endTime = now.Add(-time.Minute)
	return b
}

// WithWindow sets the bidding window.
func (b *AuctionBuilder) WithWindow(start, end time.Time) *AuctionBuilder {
	b.startTime = start
	b.endTime = end
	return b
}

// WithStartingPrice sets the starting price.
func (b *AuctionBuilder) WithStartingPrice(amount string) *AuctionBuilder {
	b.startingPrice = values.MustMoney(amount)
	return b
}

// WithCurrentPrice sets the current price independently of the starting
// price, for auctions that already carry bids.
func (b *AuctionBuilder) WithCurrentPrice(amount string) *AuctionBuilder {
	m := values.MustMoney(amount)
	b.currentPrice = &m
	return b
}

// WithBuyNowPrice sets the buy-now price.
func (b *AuctionBuilder) WithBuyNowPrice(amount string) *AuctionBuilder {
	m := values.MustMoney(amount)
	b.buyNowPrice = &m
	return b
}

// WithWinner sets the current winning bidder.
func (b *AuctionBuilder) WithWinner(winnerID uuid.UUID) *AuctionBuilder {
	b.winnerID = &winnerID
	return b
}

// Build assembles the auction.
func (b *AuctionBuilder) Build(t *testing.T) *auction.Auction {
	t.Helper()

	p, err := auction.NewProduct(b.ownerID, b.title, b.description, b.category, b.condition)
	require.NoError(t, err)

	a, err := auction.NewAuction(p, b.startTime, b.endTime, b.startingPrice, b.buyNowPrice)
	require.NoError(t, err)

	a.ID = b.id
	a.Status = b.status
	if b.currentPrice != nil {
		a.CurrentPrice = *b.currentPrice
	}
	a.WinnerID = b.winnerID
	return a
}
