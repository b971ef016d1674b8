package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bidwire/auction-exchange-backend/internal/domain/auction"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
)

// Service manages the auction catalog: listing lifecycle and the read
// surfaces browsers and bidders use. Bid acceptance itself lives in the
// arbitration service.
type Service interface {
	// CreateAuction creates a DRAFT auction with its product
	CreateAuction(ctx context.Context, req *CreateAuctionRequest) (*auction.Auction, error)
	// PublishAuction transitions an owner's draft to ACTIVE
	PublishAuction(ctx context.Context, auctionID, ownerID uuid.UUID) (*auction.Auction, error)
	// CancelAuction cancels an owner's draft, or an active auction without bids
	CancelAuction(ctx context.Context, auctionID, ownerID uuid.UUID) (*auction.Auction, error)
	// UpdateAuction edits an owner's draft
	UpdateAuction(ctx context.Context, req *UpdateAuctionRequest) (*auction.Auction, error)
	// DeleteAuction removes an owner's draft and its product
	DeleteAuction(ctx context.Context, auctionID, ownerID uuid.UUID) error
	// ListAuctions returns published auctions matching the query
	ListAuctions(ctx context.Context, q *ListQuery) ([]*auction.Auction, error)
	// GetAuction returns one auction with its bid history and the
	// viewer's standing; viewerID is nil for guests
	GetAuction(ctx context.Context, auctionID uuid.UUID, viewerID *uuid.UUID) (*AuctionDetail, error)
	// ListMyBids returns the auctions the user has bid on, newest first
	ListMyBids(ctx context.Context, userID uuid.UUID) ([]*BidSummary, error)
}

// Repository is the storage surface the catalog needs.
type Repository interface {
	// InsertAuction persists a new product and its auction
	InsertAuction(ctx context.Context, a *auction.Auction) error
	// GetAuction loads one auction with its product
	GetAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error)
	// Mutate applies fn to the auction under an exclusive row lock and
	// persists the result; fn returning an error rolls back
	Mutate(ctx context.Context, id uuid.UUID, fn func(a *auction.Auction) error) (*auction.Auction, error)
	// DeleteDraft removes an auction and its product, guarded on DRAFT status
	DeleteDraft(ctx context.Context, id uuid.UUID) error
	// List returns non-draft auctions matching the query
	List(ctx context.Context, q *ListQuery) ([]*auction.Auction, error)
	// ListBids returns an auction's bid rows with bidder usernames,
	// highest amount first
	ListBids(ctx context.Context, auctionID uuid.UUID, limit int) ([]BidRecord, error)
	// ListBidAuctions returns the distinct auctions a user has bid on,
	// newest first, with the user's highest amount on each
	ListBidAuctions(ctx context.Context, userID uuid.UUID) ([]BidAuction, error)
	// HighestBid returns the user's highest bid on one auction; ok is
	// false when the user never bid on it
	HighestBid(ctx context.Context, auctionID, userID uuid.UUID) (values.Money, bool, error)
}

// SortField names the columns the listing can be ordered by.
type SortField string

const (
	SortCreatedAt    SortField = "created_at"
	SortCurrentPrice SortField = "current_price"
	SortEndTime      SortField = "end_time"
)

// IsValid checks if the sort field is supported
func (f SortField) IsValid() bool {
	switch f {
	case SortCreatedAt, SortCurrentPrice, SortEndTime:
		return true
	default:
		return false
	}
}

// ListQuery filters and orders the public auction listing. Zero values mean
// "no filter"; DRAFT auctions are never included regardless of Status.
type ListQuery struct {
	Status    *auction.Status
	Category  *auction.Category
	Condition *auction.Condition
	MinPrice  *values.Money
	MaxPrice  *values.Money
	// Search matches product title or description, case-insensitive.
	Search     string
	SortBy     SortField
	Descending bool
	Limit      int
	Offset     int
}

// CreateAuctionRequest carries a new listing.
type CreateAuctionRequest struct {
	OwnerID       uuid.UUID         `validate:"required"`
	Title         string            `validate:"required,max=255"`
	Description   string            `validate:"max=10000"`
	Category      auction.Category  `validate:"category"`
	Condition     auction.Condition `validate:"condition"`
	StartTime     time.Time         `validate:"required"`
	EndTime       time.Time         `validate:"required,gtfield=StartTime"`
	StartingPrice values.Money      `validate:"price"`
	BuyNowPrice   *values.Money     `validate:"omitempty,price"`
}

// UpdateAuctionRequest edits a draft listing; nil fields are left unchanged.
type UpdateAuctionRequest struct {
	AuctionID uuid.UUID `validate:"required"`
	OwnerID   uuid.UUID `validate:"required"`
	Update    auction.DraftUpdate
}

// UserStatus is a viewer's standing on one auction.
type UserStatus string

const (
	UserStatusGuest   UserStatus = "GUEST"
	UserStatusNoBid   UserStatus = "NO_BID"
	UserStatusWinning UserStatus = "WINNING"
	UserStatusOutbid  UserStatus = "OUTBID"
)

// BidRecord is a persisted bid row joined with its bidder's username.
type BidRecord struct {
	Bid            auction.Bid
	BidderUsername string
}

// BidAuction pairs an auction with the querying user's highest bid on it.
type BidAuction struct {
	Auction    *auction.Auction
	HighestBid values.Money
}

// MaskedBidder is the public identity shown in bid histories.
type MaskedBidder struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

// BidEntry is one bid in a public history.
type BidEntry struct {
	ID        uuid.UUID    `json:"id"`
	Amount    values.Money `json:"amount"`
	Bidder    MaskedBidder `json:"bidder"`
	CreatedAt time.Time    `json:"created_at"`
}

// AuctionDetail is the full view of one auction.
type AuctionDetail struct {
	Auction      *auction.Auction `json:"auction"`
	Bids         []BidEntry       `json:"bids"`
	UserStatus   UserStatus       `json:"user_status"`
	MyHighestBid *values.Money    `json:"my_highest_bid,omitempty"`
}

// BidSummary is one row of a user's bid overview.
type BidSummary struct {
	Auction      *auction.Auction `json:"auction"`
	MyHighestBid values.Money     `json:"my_highest_bid"`
	UserStatus   UserStatus       `json:"user_status"`
}
