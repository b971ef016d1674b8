package fixtures

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bidwire/auction-exchange-backend/internal/domain/account"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
)

var userSeq atomic.Int64

// UserBuilder builds test users with funded wallets.
type UserBuilder struct {
	id       uuid.UUID
	username string
	email    string
	balance  values.Money
	held     values.Money
}

// NewUserBuilder creates a builder with a unique username and email and a
// comfortably funded wallet.
func NewUserBuilder() *UserBuilder {
	n := userSeq.Add(1)
	return &UserBuilder{
		id:       uuid.New(),
		username: fmt.Sprintf("bidder%d", n),
		email:    fmt.Sprintf("bidder%d@example.com", n),
		balance:  values.MustMoney("1000.00"),
		held:     values.Zero(),
	}
}

// WithID sets the user ID.
func (b *UserBuilder) WithID(id uuid.UUID) *UserBuilder {
	b.id = id
	return b
}

// WithUsername sets the username.
func (b *UserBuilder) WithUsername(username string) *UserBuilder {
	b.username = username
	return b
}

// WithBalance sets the wallet's available balance.
func (b *UserBuilder) WithBalance(amount string) *UserBuilder {
	b.balance = values.MustMoney(amount)
	return b
}

// WithHeld sets the wallet's held balance.
func (b *UserBuilder) WithHeld(amount string) *UserBuilder {
	b.held = values.MustMoney(amount)
	return b
}

// Build returns the user and their wallet.
func (b *UserBuilder) Build(t *testing.T) (*account.User, *account.Wallet) {
	t.Helper()

	u, err := account.NewUser(b.username, b.email)
	require.NoError(t, err)
	u.ID = b.id

	w := account.NewWallet(u.ID)
	w.Balance = b.balance
	w.HeldBalance = b.held
	return u, w
}
