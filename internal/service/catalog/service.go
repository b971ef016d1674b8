package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bidwire/auction-exchange-backend/internal/domain/account"
	"github.com/bidwire/auction-exchange-backend/internal/domain/auction"
	"github.com/bidwire/auction-exchange-backend/internal/domain/errors"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	// bidHistoryLimit caps the bid rows embedded in a detail view.
	bidHistoryLimit = 20
)

type service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates the catalog service.
func NewService(repo Repository, logger *slog.Logger) Service {
	return &service{repo: repo, logger: logger}
}

// CreateAuction persists a new DRAFT listing with current_price equal to the
// starting price.
func (s *service) CreateAuction(ctx context.Context, req *CreateAuctionRequest) (*auction.Auction, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	product, err := auction.NewProduct(req.OwnerID, req.Title, req.Description, req.Category, req.Condition)
	if err != nil {
		return nil, err
	}
	a, err := auction.NewAuction(product, req.StartTime, req.EndTime, req.StartingPrice, req.BuyNowPrice)
	if err != nil {
		return nil, err
	}
	if err := s.repo.InsertAuction(ctx, a); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "auction created",
		"auction_id", a.ID, "owner_id", req.OwnerID, "title", product.Title)
	return a, nil
}

// PublishAuction transitions DRAFT to ACTIVE under the row lock so a
// concurrent edit or delete cannot interleave.
func (s *service) PublishAuction(ctx context.Context, auctionID, ownerID uuid.UUID) (*auction.Auction, error) {
	a, err := s.repo.Mutate(ctx, auctionID, func(a *auction.Auction) error {
		if err := requireOwner(a, ownerID); err != nil {
			return err
		}
		return a.Publish(time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "auction published", "auction_id", auctionID)
	return a, nil
}

// CancelAuction cancels a draft, or an active auction that has no bids yet.
func (s *service) CancelAuction(ctx context.Context, auctionID, ownerID uuid.UUID) (*auction.Auction, error) {
	a, err := s.repo.Mutate(ctx, auctionID, func(a *auction.Auction) error {
		if err := requireOwner(a, ownerID); err != nil {
			return err
		}
		return a.Cancel()
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "auction cancelled", "auction_id", auctionID)
	return a, nil
}

// UpdateAuction edits a draft in place.
func (s *service) UpdateAuction(ctx context.Context, req *UpdateAuctionRequest) (*auction.Auction, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	return s.repo.Mutate(ctx, req.AuctionID, func(a *auction.Auction) error {
		if err := requireOwner(a, req.OwnerID); err != nil {
			return err
		}
		return a.ApplyDraftUpdate(req.Update)
	})
}

// DeleteAuction removes a draft listing entirely. The storage statement
// re-checks the DRAFT guard, so a racing publish wins cleanly.
func (s *service) DeleteAuction(ctx context.Context, auctionID, ownerID uuid.UUID) error {
	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}
	if err := requireOwner(a, ownerID); err != nil {
		return err
	}
	if a.Status != auction.StatusDraft {
		return errors.NewValidationError("NOT_DRAFT", "only draft auctions can be deleted")
	}
	if err := s.repo.DeleteDraft(ctx, auctionID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "auction deleted", "auction_id", auctionID)
	return nil
}

// ListAuctions returns the public listing. Drafts are excluded by the
// repository regardless of the status filter.
func (s *service) ListAuctions(ctx context.Context, q *ListQuery) ([]*auction.Auction, error) {
	if q == nil {
		q = &ListQuery{}
	}
	if q.Status != nil && !q.Status.IsValid() {
		return nil, errors.NewValidationError("INVALID_STATUS", "unknown auction status")
	}
	if q.Category != nil && !q.Category.IsValid() {
		return nil, errors.NewValidationError("INVALID_CATEGORY", "unknown product category")
	}
	if q.Condition != nil && !q.Condition.IsValid() {
		return nil, errors.NewValidationError("INVALID_CONDITION", "unknown product condition")
	}
	if q.SortBy == "" {
		q.SortBy = SortCreatedAt
		q.Descending = true
	}
	if !q.SortBy.IsValid() {
		return nil, errors.NewValidationError("INVALID_SORT", "unsupported sort field")
	}
	if q.Limit <= 0 {
		q.Limit = defaultListLimit
	}
	if q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return s.repo.List(ctx, q)
}

// GetAuction returns the detail view. Drafts are visible to their owner
// only; everyone else sees not-found, matching the listing.
func (s *service) GetAuction(ctx context.Context, auctionID uuid.UUID, viewerID *uuid.UUID) (*AuctionDetail, error) {
	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if a.Status == auction.StatusDraft {
		if viewerID == nil || *viewerID != a.Product.OwnerID {
			return nil, errors.ErrAuctionNotFound
		}
	}

	records, err := s.repo.ListBids(ctx, auctionID, bidHistoryLimit)
	if err != nil {
		return nil, err
	}
	bids := make([]BidEntry, 0, len(records))
	for _, r := range records {
		bids = append(bids, BidEntry{
			ID:     r.Bid.ID,
			Amount: r.Bid.Amount,
			Bidder: MaskedBidder{
				ID:       r.Bid.BidderID,
				Username: account.MaskUsername(r.BidderUsername),
			},
			CreatedAt: r.Bid.CreatedAt,
		})
	}

	detail := &AuctionDetail{
		Auction:    a,
		Bids:       bids,
		UserStatus: UserStatusGuest,
	}
	if viewerID != nil {
		highest, ok, err := s.repo.HighestBid(ctx, auctionID, *viewerID)
		if err != nil {
			return nil, err
		}
		if !ok {
			detail.UserStatus = UserStatusNoBid
		} else {
			detail.MyHighestBid = &highest
			detail.UserStatus = standing(highest, a)
		}
	}
	return detail, nil
}

// ListMyBids returns every auction the user has bid on, newest first,
// annotated with the user's highest amount and current standing.
func (s *service) ListMyBids(ctx context.Context, userID uuid.UUID) ([]*BidSummary, error) {
	rows, err := s.repo.ListBidAuctions(ctx, userID)
	if err != nil {
		return nil, err
	}
	summaries := make([]*BidSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, &BidSummary{
			Auction:      row.Auction,
			MyHighestBid: row.HighestBid,
			UserStatus:   standing(row.HighestBid, row.Auction),
		})
	}
	return summaries, nil
}

// standing reports WINNING when the user's highest bid still matches the
// price. Committed bids strictly increase, so an equal amount can only be
// the user's own leading bid.
func standing(highest values.Money, a *auction.Auction) UserStatus {
	if !highest.LessThan(a.CurrentPrice) {
		return UserStatusWinning
	}
	return UserStatusOutbid
}

func requireOwner(a *auction.Auction, callerID uuid.UUID) error {
	if a.Product.OwnerID != callerID {
		return errors.NewForbiddenError("caller does not own this auction")
	}
	return nil
}
