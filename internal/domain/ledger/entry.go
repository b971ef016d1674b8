package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/bidwire/auction-exchange-backend/internal/domain/errors"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
)

// EntryType is the wallet audit log discriminator. The exchange core only
// writes BID_HOLD, BID_RELEASE and PAYMENT; DEPOSIT, WITHDRAW and REFUND rows
// are written by the external payment collaborators and must round-trip
// through this log unchanged.
type EntryType string

const (
	EntryDeposit    EntryType = "DEPOSIT"
	EntryWithdraw   EntryType = "WITHDRAW"
	EntryBidHold    EntryType = "BID_HOLD"
	EntryBidRelease EntryType = "BID_RELEASE"
	EntryPayment    EntryType = "PAYMENT"
	EntryRefund     EntryType = "REFUND"
)

// String returns the string representation of EntryType
func (t EntryType) String() string {
	return string(t)
}

// IsValid checks if the entry type is one of the supported values
func (t EntryType) IsValid() bool {
	switch t {
	case EntryDeposit, EntryWithdraw, EntryBidHold, EntryBidRelease, EntryPayment, EntryRefund:
		return true
	default:
		return false
	}
}

// Entry is one append-only row of the wallet audit log. ReferenceID is an
// opaque weak pointer (an auction id for bid entries, a payment provider id
// for deposits); resolution is lookup-only, never ownership.
type Entry struct {
	ID          uuid.UUID    `json:"id"`
	WalletID    uuid.UUID    `json:"wallet_id"`
	Type        EntryType    `json:"type"`
	Amount      values.Money `json:"amount"`
	ReferenceID string       `json:"reference_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// NewEntry creates an audit log entry with validation.
func NewEntry(walletID uuid.UUID, entryType EntryType, amount values.Money, referenceID string) (*Entry, error) {
	if walletID == uuid.Nil {
		return nil, errors.NewValidationError("INVALID_WALLET", "ledger entry requires a wallet")
	}
	if !entryType.IsValid() {
		return nil, errors.NewValidationError("INVALID_ENTRY_TYPE", "unknown ledger entry type")
	}
	if !amount.IsPositive() {
		return nil, errors.ErrInvalidAmount
	}

	return &Entry{
		ID:          uuid.New(),
		WalletID:    walletID,
		Type:        entryType,
		Amount:      amount,
		ReferenceID: referenceID,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// NewBidHold records funds locked behind a bid on the referenced auction.
func NewBidHold(walletID uuid.UUID, amount values.Money, auctionID uuid.UUID) (*Entry, error) {
	return NewEntry(walletID, EntryBidHold, amount, auctionID.String())
}

// NewBidRelease records funds unlocked after a bid was outbid or refunded.
func NewBidRelease(walletID uuid.UUID, amount values.Money, auctionID uuid.UUID) (*Entry, error) {
	return NewEntry(walletID, EntryBidRelease, amount, auctionID.String())
}

// NewPayment records funds committed to a completed purchase.
func NewPayment(walletID uuid.UUID, amount values.Money, auctionID uuid.UUID) (*Entry, error) {
	return NewEntry(walletID, EntryPayment, amount, auctionID.String())
}
