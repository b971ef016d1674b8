package account

import (
	"time"

	"github.com/google/uuid"

	"github.com/bidwire/auction-exchange-backend/internal/domain/errors"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
)

// Wallet holds a user's funds split between an available balance and a held
// balance locked behind open positions (a winning bid, a pending payout).
// Each user has exactly one wallet, created on first reference and never
// deleted. Both columns are numeric(14,2) and must stay non-negative; every
// mutation below preserves that and keeps balance+held conserved across
// hold/release pairs.
type Wallet struct {
	ID          uuid.UUID    `json:"id"`
	UserID      uuid.UUID    `json:"user_id"`
	Balance     values.Money `json:"balance"`
	HeldBalance values.Money `json:"held_balance"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewWallet creates an empty wallet for a user.
func NewWallet(userID uuid.UUID) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		ID:          uuid.New(),
		UserID:      userID,
		Balance:     values.Zero(),
		HeldBalance: values.Zero(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CanCover reports whether the available balance covers amount.
func (w *Wallet) CanCover(amount values.Money) bool {
	return !w.Balance.LessThan(amount)
}

// Hold moves amount from the available balance to the held balance.
func (w *Wallet) Hold(amount values.Money) error {
	if !amount.IsPositive() {
		return errors.NewValidationError("INVALID_AMOUNT", "hold amount must be positive")
	}
	if !w.CanCover(amount) {
		return errors.NewInsufficientFundsError()
	}
	w.Balance = w.Balance.Sub(amount)
	w.HeldBalance = w.HeldBalance.Add(amount)
	w.touch()
	return nil
}

// Release moves amount from the held balance back to the available balance.
// A shortfall here means the ledger and the wallet disagree, which is a bug,
// not a user error.
func (w *Wallet) Release(amount values.Money) error {
	if !amount.IsPositive() {
		return errors.NewValidationError("INVALID_AMOUNT", "release amount must be positive")
	}
	if w.HeldBalance.LessThan(amount) {
		return errors.NewInternalError("held balance underflow")
	}
	w.HeldBalance = w.HeldBalance.Sub(amount)
	w.Balance = w.Balance.Add(amount)
	w.touch()
	return nil
}

// Credit adds deposited funds to the available balance.
func (w *Wallet) Credit(amount values.Money) error {
	if !amount.IsPositive() {
		return errors.NewValidationError("INVALID_AMOUNT", "credit amount must be positive")
	}
	next := w.Balance.Add(amount)
	if !next.FitsBalance() {
		return errors.NewValidationError("BALANCE_OVERFLOW", "balance exceeds supported precision")
	}
	w.Balance = next
	w.touch()
	return nil
}

// Debit removes withdrawn funds from the available balance.
func (w *Wallet) Debit(amount values.Money) error {
	if !amount.IsPositive() {
		return errors.NewValidationError("INVALID_AMOUNT", "debit amount must be positive")
	}
	if !w.CanCover(amount) {
		return errors.NewInsufficientFundsError()
	}
	w.Balance = w.Balance.Sub(amount)
	w.touch()
	return nil
}

func (w *Wallet) touch() {
	w.UpdatedAt = time.Now().UTC()
}
