package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bidwire/auction-exchange-backend/internal/domain/auction"
	domainErrors "github.com/bidwire/auction-exchange-backend/internal/domain/errors"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/database"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/querybuilder"
	"github.com/bidwire/auction-exchange-backend/internal/service/catalog"
)

// CatalogRepository implements the catalog storage contract over PostgreSQL.
// Reads are plain snapshots; mutations go through Mutate, which re-reads the
// row under a lock so lifecycle checks cannot race the exchange core.
type CatalogRepository struct {
	db *database.ConnectionPool
}

// NewCatalogRepository creates the PostgreSQL-backed catalog repository.
func NewCatalogRepository(db *database.ConnectionPool) catalog.Repository {
	return &CatalogRepository{db: db}
}

// InsertAuction persists a new product and its auction atomically.
func (r *CatalogRepository) InsertAuction(ctx context.Context, a *auction.Auction) error {
	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		const productQuery = `
			INSERT INTO products (id, owner_id, title, description, category, condition, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`

		p := a.Product
		if _, err := tx.Exec(ctx, productQuery,
			p.ID, p.OwnerID, p.Title, p.Description, p.Category.String(), p.Condition.String(), p.CreatedAt,
		); err != nil {
			if isForeignKeyViolation(err) {
				return domainErrors.ErrUserNotFound
			}
			return storageError("insert product", err)
		}

		const auctionQuery = `
			INSERT INTO auctions (id, product_id, status, start_time, end_time,
				starting_price, current_price, buy_now_price, winner_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

		if _, err := tx.Exec(ctx, auctionQuery,
			a.ID, p.ID, a.Status.String(), a.StartTime, a.EndTime,
			a.StartingPrice, a.CurrentPrice, a.BuyNowPrice, a.WinnerID, a.CreatedAt, a.UpdatedAt,
		); err != nil {
			return storageError("insert auction", err)
		}
		return nil
	})
	return mapTxError(err)
}

// GetAuction loads one auction with its product, no lock.
func (r *CatalogRepository) GetAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions a
		JOIN products p ON p.id = a.product_id
		WHERE a.id = $1`

	a, err := scanAuction(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrAuctionNotFound
		}
		return nil, storageError("get auction", err)
	}
	return a, nil
}

// Mutate applies fn to the locked auction and persists the result. Draft
// edits can touch product fields, so the product row is written back too.
func (r *CatalogRepository) Mutate(ctx context.Context, id uuid.UUID, fn func(a *auction.Auction) error) (*auction.Auction, error) {
	var out *auction.Auction
	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		a, err := lockAuction(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
		if err := updateAuction(ctx, tx, a); err != nil {
			return err
		}
		if err := updateProduct(ctx, tx, a.Product); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, mapTxError(err)
	}
	return out, nil
}

// DeleteDraft removes a draft auction and its product. The DRAFT guard sits
// in the DELETE itself so a racing publish wins cleanly; zero rows are then
// classified as not-found or not-draft.
func (r *CatalogRepository) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		const deleteAuction = `
			DELETE FROM auctions
			WHERE id = $1 AND status = 'DRAFT'
			RETURNING product_id`

		var productID uuid.UUID
		err := tx.QueryRow(ctx, deleteAuction, id).Scan(&productID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.classifyDeleteMiss(ctx, tx, id)
			}
			return storageError("delete auction", err)
		}

		const deleteProduct = `DELETE FROM products WHERE id = $1`
		if _, err := tx.Exec(ctx, deleteProduct, productID); err != nil {
			return storageError("delete product", err)
		}
		return nil
	})
	return mapTxError(err)
}

func (r *CatalogRepository) classifyDeleteMiss(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	const query = `SELECT status FROM auctions WHERE id = $1`

	var status string
	err := tx.QueryRow(ctx, query, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domainErrors.ErrAuctionNotFound
		}
		return storageError("classify delete", err)
	}
	return domainErrors.NewValidationError("NOT_DRAFT", "only draft auctions can be deleted")
}

// List returns non-draft auctions matching the query. The service validates
// and clamps the query before it gets here.
func (r *CatalogRepository) List(ctx context.Context, q *catalog.ListQuery) ([]*auction.Auction, error) {
	builder := querybuilder.NewAuctionQuery()
	if q.Status != nil {
		builder.WithStatus(*q.Status)
	} else {
		builder.ExcludeDrafts()
	}
	if q.Category != nil {
		builder.WithCategory(*q.Category)
	}
	if q.Condition != nil {
		builder.WithCondition(*q.Condition)
	}
	if q.MinPrice != nil {
		builder.PriceAtLeast(*q.MinPrice)
	}
	if q.MaxPrice != nil {
		builder.PriceAtMost(*q.MaxPrice)
	}
	if q.Search != "" {
		builder.SearchText(q.Search)
	}
	builder.SortBy(string(q.SortBy), q.Descending).Paginate(q.Limit, q.Offset)

	query, params, err := builder.ToSQL()
	if err != nil {
		return nil, domainErrors.NewInternalError("building listing query").WithCause(err)
	}

	rows, err := r.db.Pool().Query(ctx, query, params...)
	if err != nil {
		return nil, storageError("list auctions", err)
	}
	defer rows.Close()

	auctions := make([]*auction.Auction, 0)
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, storageError("scan auction", err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list auctions", err)
	}
	return auctions, nil
}

// ListBids returns an auction's bid rows with bidder usernames, highest
// amount first.
func (r *CatalogRepository) ListBids(ctx context.Context, auctionID uuid.UUID, limit int) ([]catalog.BidRecord, error) {
	const query = `
		SELECT b.id, b.auction_id, b.bidder_id, b.amount, b.created_at, u.username
		FROM bid_transactions b
		JOIN users u ON u.id = b.bidder_id
		WHERE b.auction_id = $1
		ORDER BY b.amount DESC
		LIMIT $2`

	rows, err := r.db.Pool().Query(ctx, query, auctionID, limit)
	if err != nil {
		return nil, storageError("list bids", err)
	}
	defer rows.Close()

	records := make([]catalog.BidRecord, 0, limit)
	for rows.Next() {
		var rec catalog.BidRecord
		if err := rows.Scan(
			&rec.Bid.ID, &rec.Bid.AuctionID, &rec.Bid.BidderID, &rec.Bid.Amount,
			&rec.Bid.CreatedAt, &rec.BidderUsername,
		); err != nil {
			return nil, storageError("scan bid", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list bids", err)
	}
	return records, nil
}

// ListBidAuctions returns the distinct auctions a user has bid on, newest
// auction first, annotated with the user's highest amount on each.
func (r *CatalogRepository) ListBidAuctions(ctx context.Context, userID uuid.UUID) ([]catalog.BidAuction, error) {
	query := `
		SELECT ` + auctionColumns + `, mb.my_highest
		FROM auctions a
		JOIN products p ON p.id = a.product_id
		JOIN (
			SELECT auction_id, MAX(amount) AS my_highest
			FROM bid_transactions
			WHERE bidder_id = $1
			GROUP BY auction_id
		) mb ON mb.auction_id = a.id
		ORDER BY a.created_at DESC`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, storageError("list bid auctions", err)
	}
	defer rows.Close()

	result := make([]catalog.BidAuction, 0)
	for rows.Next() {
		var highest values.Money
		a, err := scanAuction(rows, &highest)
		if err != nil {
			return nil, storageError("scan bid auction", err)
		}
		result = append(result, catalog.BidAuction{Auction: a, HighestBid: highest})
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list bid auctions", err)
	}
	return result, nil
}

// HighestBid returns the user's highest bid on one auction; ok is false when
// the user never bid on it.
func (r *CatalogRepository) HighestBid(ctx context.Context, auctionID, userID uuid.UUID) (values.Money, bool, error) {
	const query = `
		SELECT MAX(amount)
		FROM bid_transactions
		WHERE auction_id = $1 AND bidder_id = $2`

	var raw sql.NullString
	if err := r.db.Pool().QueryRow(ctx, query, auctionID, userID).Scan(&raw); err != nil {
		return values.Zero(), false, storageError("highest bid", err)
	}
	if !raw.Valid {
		return values.Zero(), false, nil
	}
	m, err := values.NewMoneyFromString(raw.String)
	if err != nil {
		return values.Zero(), false, domainErrors.NewInternalError("invalid amount in bid log").WithCause(err)
	}
	return m, true, nil
}
