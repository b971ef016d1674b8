package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bidwire/auction-exchange-backend/internal/domain/account"
	domainErrors "github.com/bidwire/auction-exchange-backend/internal/domain/errors"
	"github.com/bidwire/auction-exchange-backend/internal/domain/ledger"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/database"
)

// WalletRepository serves the wallet read surface and the deposit path used
// by seeding and the payment collaborators. Bid-time wallet mutations go
// through the arbitration store, never through here.
type WalletRepository struct {
	db *database.ConnectionPool
}

// NewWalletRepository creates the PostgreSQL-backed wallet repository.
func NewWalletRepository(db *database.ConnectionPool) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetWallet returns the user's wallet, creating an empty one on first
// reference. Each user has exactly one wallet.
func (r *WalletRepository) GetWallet(ctx context.Context, userID uuid.UUID) (*account.Wallet, error) {
	fresh := account.NewWallet(userID)
	const ensure = `
		INSERT INTO wallets (id, user_id, balance, held_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO NOTHING`

	if _, err := r.db.Pool().Exec(ctx, ensure,
		fresh.ID, fresh.UserID, fresh.Balance, fresh.HeldBalance, fresh.CreatedAt, fresh.UpdatedAt,
	); err != nil {
		if isForeignKeyViolation(err) {
			return nil, domainErrors.ErrUserNotFound
		}
		return nil, storageError("ensure wallet", err)
	}

	const query = `
		SELECT id, user_id, balance, held_balance, created_at, updated_at
		FROM wallets
		WHERE user_id = $1`

	var w account.Wallet
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(
		&w.ID, &w.UserID, &w.Balance, &w.HeldBalance, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrWalletNotFound
		}
		return nil, storageError("get wallet", err)
	}
	return &w, nil
}

// Credit deposits funds and appends the DEPOSIT audit row atomically.
// reference carries the payment provider's identifier.
func (r *WalletRepository) Credit(ctx context.Context, userID uuid.UUID, amount values.Money, reference string) (*account.Wallet, error) {
	var out *account.Wallet
	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		t := &auctionTx{tx: tx}
		w, err := t.LockWallet(ctx, userID)
		if err != nil {
			return err
		}
		if err := w.Credit(amount); err != nil {
			return err
		}
		entry, err := ledger.NewEntry(w.ID, ledger.EntryDeposit, amount, reference)
		if err != nil {
			return err
		}
		if err := t.InsertLedgerEntry(ctx, entry); err != nil {
			return err
		}
		if err := t.UpdateWallet(ctx, w); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, mapTxError(err)
	}
	return out, nil
}

// ListEntries returns the newest audit rows for a wallet.
func (r *WalletRepository) ListEntries(ctx context.Context, walletID uuid.UUID, limit int) ([]*ledger.Entry, error) {
	const query = `
		SELECT id, wallet_id, transaction_type, amount, reference_id, created_at
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Pool().Query(ctx, query, walletID, limit)
	if err != nil {
		return nil, storageError("list ledger entries", err)
	}
	defer rows.Close()

	entries := make([]*ledger.Entry, 0, limit)
	for rows.Next() {
		var (
			e     ledger.Entry
			eType string
			ref   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.WalletID, &eType, &e.Amount, &ref, &e.CreatedAt); err != nil {
			return nil, storageError("scan ledger entry", err)
		}
		e.Type = ledger.EntryType(eType)
		e.ReferenceID = ref.String
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list ledger entries", err)
	}
	return entries, nil
}
