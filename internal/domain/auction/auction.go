package auction

import (
	"time"

	"github.com/google/uuid"

	"github.com/bidwire/auction-exchange-backend/internal/domain/errors"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
)

// Status is the auction lifecycle state. Terminal states are immutable.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusActive    Status = "ACTIVE"
	StatusFinished  Status = "FINISHED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsValid checks if the status is one of the lifecycle states
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusFinished, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// Auction is a time-bounded contest transferring a product from its owner to
// the highest qualifying bidder. current_price is the highest accepted bid,
// or the starting price when no bid exists; it never decreases. Prices are
// numeric(12,2).
type Auction struct {
	ID            uuid.UUID     `json:"id"`
	Product       *Product      `json:"product"`
	Status        Status        `json:"status"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	StartingPrice values.Money  `json:"starting_price"`
	CurrentPrice  values.Money  `json:"current_price"`
	BuyNowPrice   *values.Money `json:"buy_now_price,omitempty"`
	WinnerID      *uuid.UUID    `json:"winner_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NewAuction creates a DRAFT auction with current_price = starting_price.
func NewAuction(product *Product, startTime, endTime time.Time, startingPrice values.Money, buyNowPrice *values.Money) (*Auction, error) {
	if product == nil {
		return nil, errors.NewValidationError("INVALID_PRODUCT", "auction requires a product")
	}
	if err := validateTerms(startTime, endTime, startingPrice, buyNowPrice); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Auction{
		ID:            uuid.New(),
		Product:       product,
		Status:        StatusDraft,
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		StartingPrice: startingPrice,
		CurrentPrice:  startingPrice,
		BuyNowPrice:   buyNowPrice,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func validateTerms(startTime, endTime time.Time, startingPrice values.Money, buyNowPrice *values.Money) error {
	if !startTime.Before(endTime) {
		return errors.NewValidationError("INVALID_TIMING", "start time must precede end time")
	}
	if !startingPrice.IsPositive() || !startingPrice.FitsPrice() {
		return errors.NewValidationError("INVALID_STARTING_PRICE", "starting price must be a positive decimal within precision")
	}
	if buyNowPrice != nil {
		if !buyNowPrice.GreaterThan(startingPrice) || !buyNowPrice.FitsPrice() {
			return errors.NewValidationError("INVALID_BUY_NOW_PRICE", "buy-now price must exceed starting price")
		}
	}
	return nil
}

// HasBids reports whether at least one bid has been accepted. Every accepted
// bid strictly raises current_price, so the two prices diverge exactly when a
// bid exists.
func (a *Auction) HasBids() bool {
	return a.CurrentPrice.GreaterThan(a.StartingPrice)
}

// DraftUpdate carries optional edits for a DRAFT auction. Nil fields are
// left untouched; ClearBuyNow removes the buy-now price.
type DraftUpdate struct {
	Title         *string
	Description   *string
	Category      *Category
	Condition     *Condition
	StartTime     *time.Time
	EndTime       *time.Time
	StartingPrice *values.Money
	BuyNowPrice   *values.Money
	ClearBuyNow   bool
}

// ApplyDraftUpdate edits a draft in place. The merged result is validated
// before anything is assigned, so a failed update leaves the auction
// unchanged. Lowering the starting price also lowers current_price, which
// is safe only because drafts cannot have bids.
func (a *Auction) ApplyDraftUpdate(u DraftUpdate) error {
	if a.Status != StatusDraft {
		return errors.NewValidationError("NOT_DRAFT", "only draft auctions can be edited")
	}

	title := a.Product.Title
	if u.Title != nil {
		title = *u.Title
	}
	description := a.Product.Description
	if u.Description != nil {
		description = *u.Description
	}
	category := a.Product.Category
	if u.Category != nil {
		category = *u.Category
	}
	condition := a.Product.Condition
	if u.Condition != nil {
		condition = *u.Condition
	}

	startTime := a.StartTime
	if u.StartTime != nil {
		startTime = u.StartTime.UTC()
	}
	endTime := a.EndTime
	if u.EndTime != nil {
		endTime = u.EndTime.UTC()
	}
	startingPrice := a.StartingPrice
	if u.StartingPrice != nil {
		startingPrice = *u.StartingPrice
	}
	buyNowPrice := a.BuyNowPrice
	if u.ClearBuyNow {
		buyNowPrice = nil
	}
	if u.BuyNowPrice != nil {
		buyNowPrice = u.BuyNowPrice
	}

	if err := validateTerms(startTime, endTime, startingPrice, buyNowPrice); err != nil {
		return err
	}
	if err := a.Product.Update(title, description, category, condition); err != nil {
		return err
	}

	a.StartTime = startTime
	a.EndTime = endTime
	a.StartingPrice = startingPrice
	a.CurrentPrice = startingPrice
	a.BuyNowPrice = buyNowPrice
	a.touch()
	return nil
}

// Publish transitions DRAFT to ACTIVE.
func (a *Auction) Publish(now time.Time) error {
	if a.Status != StatusDraft {
		return errors.NewPreconditionError("NOT_DRAFT", "only draft auctions can be published")
	}
	if !now.Before(a.EndTime) {
		return errors.NewPreconditionError("ALREADY_ENDED", "auction end time has already passed")
	}
	a.Status = StatusActive
	a.touch()
	return nil
}

// Cancel transitions to CANCELLED. Allowed while DRAFT, or while ACTIVE with
// no bids accepted yet.
func (a *Auction) Cancel() error {
	switch a.Status {
	case StatusDraft:
	case StatusActive:
		if a.HasBids() {
			return errors.NewPreconditionError("HAS_BIDS", "auction with bids cannot be cancelled")
		}
	default:
		return errors.NewPreconditionError("NOT_CANCELLABLE", "auction is not cancellable in its current state")
	}
	a.Status = StatusCancelled
	a.touch()
	return nil
}

// CanAcceptBid re-validates the bid preconditions that depend on auction
// state. Callers check amount validity and wallet funds separately; the
// ordering of checks here is observable through the error a caller gets back.
func (a *Auction) CanAcceptBid(bidderID uuid.UUID, amount values.Money, now time.Time) error {
	if a.Status != StatusActive {
		return errors.ErrAuctionNotActive
	}
	if !now.Before(a.EndTime) {
		return errors.ErrAuctionEnded
	}
	if bidderID == a.Product.OwnerID {
		return errors.ErrOwnerBid
	}
	if !amount.GreaterThan(a.CurrentPrice) {
		return errors.ErrBidTooLow
	}
	return nil
}

// ApplyBid records an accepted bid. Only call after CanAcceptBid under the
// storage row lock.
func (a *Auction) ApplyBid(bidderID uuid.UUID, amount values.Money) {
	a.CurrentPrice = amount
	winner := bidderID
	a.WinnerID = &winner
	a.touch()
}

// CanBuyNow validates the buy-now preconditions.
func (a *Auction) CanBuyNow(buyerID uuid.UUID) error {
	if a.Status != StatusActive {
		return errors.ErrAuctionNotActive
	}
	if a.BuyNowPrice == nil {
		return errors.ErrNoBuyNowPrice
	}
	if buyerID == a.Product.OwnerID {
		return errors.ErrOwnerBid
	}
	return nil
}

// ApplyBuyNow finishes the auction at the buy-now price.
func (a *Auction) ApplyBuyNow(buyerID uuid.UUID, now time.Time) {
	a.CurrentPrice = *a.BuyNowPrice
	winner := buyerID
	a.WinnerID = &winner
	a.Status = StatusFinished
	a.EndTime = now.UTC()
	a.touch()
}

// Settle transitions an ended ACTIVE auction to its terminal state: FINISHED
// when a qualifying bid was accepted, EXPIRED otherwise. The sweep re-running
// over an already settled auction is a no-op because the status filter no
// longer matches; calling Settle on a non-ACTIVE auction is therefore a bug.
func (a *Auction) Settle() (Status, error) {
	if a.Status != StatusActive {
		return a.Status, errors.NewInternalError("settle called on non-active auction")
	}
	if a.HasBids() {
		a.Status = StatusFinished
	} else {
		a.Status = StatusExpired
	}
	a.touch()
	return a.Status, nil
}

func (a *Auction) touch() {
	a.UpdatedAt = time.Now().UTC()
}
