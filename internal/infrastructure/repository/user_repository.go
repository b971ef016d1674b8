package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bidwire/auction-exchange-backend/internal/domain/account"
	domainErrors "github.com/bidwire/auction-exchange-backend/internal/domain/errors"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/database"
)

// UserRepository reads users and supports the seed tooling. Production user
// rows are written by the external identity service.
type UserRepository struct {
	db *database.ConnectionPool
}

// NewUserRepository creates the PostgreSQL-backed user repository.
func NewUserRepository(db *database.ConnectionPool) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser inserts a user together with their empty wallet.
func (r *UserRepository) CreateUser(ctx context.Context, u *account.User) error {
	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		const userQuery = `
			INSERT INTO users (id, username, email, created_at)
			VALUES ($1, $2, $3, $4)`

		if _, err := tx.Exec(ctx, userQuery, u.ID, u.Username, u.Email, u.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return domainErrors.NewValidationError("DUPLICATE_USER", "username or email already registered").WithCause(err)
			}
			return storageError("insert user", err)
		}

		w := account.NewWallet(u.ID)
		const walletQuery = `
			INSERT INTO wallets (id, user_id, balance, held_balance, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)`

		if _, err := tx.Exec(ctx, walletQuery,
			w.ID, w.UserID, w.Balance, w.HeldBalance, w.CreatedAt, w.UpdatedAt,
		); err != nil {
			return storageError("insert wallet", err)
		}
		return nil
	})
	return mapTxError(err)
}

// GetUser loads one user by id.
func (r *UserRepository) GetUser(ctx context.Context, id uuid.UUID) (*account.User, error) {
	const query = `
		SELECT id, username, email, created_at
		FROM users
		WHERE id = $1`

	return r.scanUser(r.db.Pool().QueryRow(ctx, query, id))
}

// GetUserByUsername loads one user by username; the seed tooling uses it to
// stay idempotent across runs.
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*account.User, error) {
	const query = `
		SELECT id, username, email, created_at
		FROM users
		WHERE username = $1`

	return r.scanUser(r.db.Pool().QueryRow(ctx, query, username))
}

func (r *UserRepository) scanUser(row pgx.Row) (*account.User, error) {
	var u account.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrUserNotFound
		}
		return nil, storageError("get user", err)
	}
	return &u, nil
}
