package account

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidwire/auction-exchange-backend/internal/domain/errors"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
)

func newFundedWallet(t *testing.T, balance string) *Wallet {
	t.Helper()
	w := NewWallet(uuid.New())
	require.NoError(t, w.Credit(values.MustMoney(balance)))
	return w
}

func TestWalletHold(t *testing.T) {
	t.Run("moves funds from balance to held", func(t *testing.T) {
		w := newFundedWallet(t, "500.00")

		require.NoError(t, w.Hold(values.MustMoney("50.00")))

		assert.Equal(t, "450.00", w.Balance.String())
		assert.Equal(t, "50.00", w.HeldBalance.String())
	})

	t.Run("insufficient funds", func(t *testing.T) {
		w := newFundedWallet(t, "10.00")

		err := w.Hold(values.MustMoney("50.00"))

		assert.True(t, errors.IsType(err, errors.ErrorTypeInsufficientFunds))
		assert.Equal(t, "10.00", w.Balance.String())
		assert.Equal(t, "0.00", w.HeldBalance.String())
	})

	t.Run("exact balance is allowed", func(t *testing.T) {
		w := newFundedWallet(t, "50.00")

		require.NoError(t, w.Hold(values.MustMoney("50.00")))

		assert.Equal(t, "0.00", w.Balance.String())
		assert.Equal(t, "50.00", w.HeldBalance.String())
	})

	t.Run("non-positive amount", func(t *testing.T) {
		w := newFundedWallet(t, "50.00")

		assert.Error(t, w.Hold(values.Zero()))
		assert.Error(t, w.Hold(values.MustMoney("-1.00")))
	})
}

func TestWalletRelease(t *testing.T) {
	t.Run("returns held funds", func(t *testing.T) {
		w := newFundedWallet(t, "500.00")
		require.NoError(t, w.Hold(values.MustMoney("50.00")))

		require.NoError(t, w.Release(values.MustMoney("50.00")))

		assert.Equal(t, "500.00", w.Balance.String())
		assert.Equal(t, "0.00", w.HeldBalance.String())
	})

	t.Run("underflow is internal", func(t *testing.T) {
		w := newFundedWallet(t, "500.00")

		err := w.Release(values.MustMoney("50.00"))

		assert.True(t, errors.IsType(err, errors.ErrorTypeInternal))
	})
}

func TestWalletConservation(t *testing.T) {
	// balance + held is preserved across any hold/release pair.
	w := newFundedWallet(t, "500.00")
	total := w.Balance.Add(w.HeldBalance)

	require.NoError(t, w.Hold(values.MustMoney("120.00")))
	assert.True(t, total.Equal(w.Balance.Add(w.HeldBalance)))

	require.NoError(t, w.Release(values.MustMoney("120.00")))
	assert.True(t, total.Equal(w.Balance.Add(w.HeldBalance)))
}

func TestWalletCreditDebit(t *testing.T) {
	t.Run("credit then debit", func(t *testing.T) {
		w := NewWallet(uuid.New())

		require.NoError(t, w.Credit(values.MustMoney("100.00")))
		require.NoError(t, w.Debit(values.MustMoney("40.00")))

		assert.Equal(t, "60.00", w.Balance.String())
	})

	t.Run("debit beyond balance", func(t *testing.T) {
		w := newFundedWallet(t, "10.00")

		err := w.Debit(values.MustMoney("40.00"))

		assert.True(t, errors.IsType(err, errors.ErrorTypeInsufficientFunds))
	})

	t.Run("credit overflow", func(t *testing.T) {
		w := newFundedWallet(t, "999999999999.99")

		assert.Error(t, w.Credit(values.MustMoney("1.00")))
	})
}
