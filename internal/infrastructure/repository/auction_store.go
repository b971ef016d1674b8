package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bidwire/auction-exchange-backend/internal/domain/account"
	"github.com/bidwire/auction-exchange-backend/internal/domain/auction"
	domainErrors "github.com/bidwire/auction-exchange-backend/internal/domain/errors"
	"github.com/bidwire/auction-exchange-backend/internal/domain/ledger"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/database"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/querybuilder"
	"github.com/bidwire/auction-exchange-backend/internal/service/arbitration"
	"github.com/bidwire/auction-exchange-backend/internal/service/closer"
)

// auctionColumns is the select list shared by every auction read, fixed and
// dynamic alike. The scan order in scanAuction follows it.
var auctionColumns = strings.Join(querybuilder.AuctionColumns, ", ")

// BidStore implements the arbitration storage contract over PostgreSQL.
// Row locks and lock ordering belong to the caller; this layer only
// guarantees that each InTx call is one atomic transaction.
type BidStore struct {
	db *database.ConnectionPool
}

// NewBidStore creates the PostgreSQL-backed arbitration store.
func NewBidStore(db *database.ConnectionPool) arbitration.Store {
	return &BidStore{db: db}
}

// InTx runs fn inside a single transaction; any error rolls everything back.
func (s *BidStore) InTx(ctx context.Context, fn func(arbitration.Tx) error) error {
	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		return fn(&auctionTx{tx: tx})
	})
	return mapTxError(err)
}

// CloserStore implements the sweep storage contract over PostgreSQL.
type CloserStore struct {
	db *database.ConnectionPool
}

// NewCloserStore creates the PostgreSQL-backed closer store.
func NewCloserStore(db *database.ConnectionPool) closer.Store {
	return &CloserStore{db: db}
}

// InTx runs fn inside a single transaction; any error rolls everything back.
func (s *CloserStore) InTx(ctx context.Context, fn func(closer.Tx) error) error {
	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		return fn(&auctionTx{tx: tx})
	})
	return mapTxError(err)
}

// auctionTx is the per-transaction surface shared by the arbitration and
// closer stores. All reads that precede a mutation take FOR UPDATE locks.
type auctionTx struct {
	tx pgx.Tx
}

func (t *auctionTx) LockWallet(ctx context.Context, userID uuid.UUID) (*account.Wallet, error) {
	const query = `
		SELECT id, user_id, balance, held_balance, created_at, updated_at
		FROM wallets
		WHERE user_id = $1
		FOR UPDATE`

	var w account.Wallet
	err := t.tx.QueryRow(ctx, query, userID).Scan(
		&w.ID, &w.UserID, &w.Balance, &w.HeldBalance, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrWalletNotFound
		}
		return nil, storageError("lock wallet", err)
	}
	return &w, nil
}

func (t *auctionTx) LockAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	return lockAuction(ctx, t.tx, id)
}

// LockExpired loads every ACTIVE auction past its end time under row locks.
// No SKIP LOCKED: a sweep must wait out concurrent bids on the same rows so
// the terminal decision sees the final price.
func (t *auctionTx) LockExpired(ctx context.Context, now time.Time) ([]*auction.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions a
		JOIN products p ON p.id = a.product_id
		WHERE a.status = 'ACTIVE' AND a.end_time < $1
		ORDER BY a.end_time
		FOR UPDATE OF a`

	rows, err := t.tx.Query(ctx, query, now)
	if err != nil {
		return nil, storageError("lock expired auctions", err)
	}
	defer rows.Close()

	var expired []*auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, storageError("scan expired auction", err)
		}
		expired = append(expired, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("lock expired auctions", err)
	}
	return expired, nil
}

func (t *auctionTx) UpdateWallet(ctx context.Context, w *account.Wallet) error {
	const query = `
		UPDATE wallets
		SET balance = $2, held_balance = $3, updated_at = $4
		WHERE id = $1`

	tag, err := t.tx.Exec(ctx, query, w.ID, w.Balance, w.HeldBalance, w.UpdatedAt)
	if err != nil {
		return storageError("update wallet", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.NewInternalError("wallet row vanished mid-transaction")
	}
	return nil
}

func (t *auctionTx) UpdateAuction(ctx context.Context, a *auction.Auction) error {
	return updateAuction(ctx, t.tx, a)
}

func (t *auctionTx) InsertBid(ctx context.Context, b *auction.Bid) error {
	const query = `
		INSERT INTO bid_transactions (id, auction_id, bidder_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := t.tx.Exec(ctx, query, b.ID, b.AuctionID, b.BidderID, b.Amount, b.CreatedAt); err != nil {
		return storageError("insert bid", err)
	}
	return nil
}

func (t *auctionTx) InsertLedgerEntry(ctx context.Context, e *ledger.Entry) error {
	const query = `
		INSERT INTO wallet_transactions (id, wallet_id, transaction_type, amount, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	var ref interface{}
	if e.ReferenceID != "" {
		ref = e.ReferenceID
	}
	if _, err := t.tx.Exec(ctx, query, e.ID, e.WalletID, e.Type.String(), e.Amount, ref, e.CreatedAt); err != nil {
		return storageError("insert ledger entry", err)
	}
	return nil
}

// lockAuction loads one auction with its product under FOR UPDATE OF a. The
// product row stays unlocked; bid arbitration never mutates products.
func lockAuction(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*auction.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions a
		JOIN products p ON p.id = a.product_id
		WHERE a.id = $1
		FOR UPDATE OF a`

	a, err := scanAuction(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrAuctionNotFound
		}
		return nil, storageError("lock auction", err)
	}
	return a, nil
}

// updateAuction persists the full mutable auction row.
func updateAuction(ctx context.Context, tx pgx.Tx, a *auction.Auction) error {
	const query = `
		UPDATE auctions
		SET status = $2, start_time = $3, end_time = $4, starting_price = $5,
		    current_price = $6, buy_now_price = $7, winner_id = $8, updated_at = $9
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query,
		a.ID, a.Status.String(), a.StartTime, a.EndTime, a.StartingPrice,
		a.CurrentPrice, a.BuyNowPrice, a.WinnerID, a.UpdatedAt,
	)
	if err != nil {
		return storageError("update auction", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.NewInternalError("auction row vanished mid-transaction")
	}
	return nil
}

// updateProduct persists the mutable product fields (draft edits only).
func updateProduct(ctx context.Context, tx pgx.Tx, p *auction.Product) error {
	const query = `
		UPDATE products
		SET title = $2, description = $3, category = $4, condition = $5
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query, p.ID, p.Title, p.Description, p.Category.String(), p.Condition.String())
	if err != nil {
		return storageError("update product", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.NewInternalError("product row vanished mid-transaction")
	}
	return nil
}

// scanAuction reads one auction row in auctionColumns order. extra receives
// any trailing columns a caller appended to the select list.
func scanAuction(row pgx.Row, extra ...interface{}) (*auction.Auction, error) {
	var (
		a         auction.Auction
		p         auction.Product
		status    string
		buyNow    sql.NullString
		winner    uuid.NullUUID
		category  string
		condition string
	)

	dest := []interface{}{
		&a.ID, &status, &a.StartTime, &a.EndTime,
		&a.StartingPrice, &a.CurrentPrice, &buyNow, &winner,
		&a.CreatedAt, &a.UpdatedAt,
		&p.ID, &p.OwnerID, &p.Title, &p.Description, &category, &condition, &p.CreatedAt,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	a.Status = auction.Status(status)
	p.Category = auction.Category(category)
	p.Condition = auction.Condition(condition)
	if buyNow.Valid {
		m, err := values.NewMoneyFromString(buyNow.String)
		if err != nil {
			return nil, fmt.Errorf("invalid buy_now_price: %w", err)
		}
		a.BuyNowPrice = &m
	}
	if winner.Valid {
		id := winner.UUID
		a.WinnerID = &id
	}
	a.Product = &p
	return &a, nil
}
