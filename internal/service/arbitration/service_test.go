package arbitration_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidwire/auction-exchange-backend/internal/domain/account"
	"github.com/bidwire/auction-exchange-backend/internal/domain/auction"
	domainErrors "github.com/bidwire/auction-exchange-backend/internal/domain/errors"
	"github.com/bidwire/auction-exchange-backend/internal/domain/ledger"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
	"github.com/bidwire/auction-exchange-backend/internal/service/arbitration"
	"github.com/bidwire/auction-exchange-backend/internal/testutil/fixtures"
	"github.com/bidwire/auction-exchange-backend/internal/testutil/memstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupService(t *testing.T) (*memstore.Store, arbitration.Service) {
	t.Helper()
	store := memstore.New()
	svc := arbitration.NewService(store.BidStore(), testLogger(), arbitration.Config{
		Timeout:     time.Second,
		MaxRetries:  2,
		RetryJitter: time.Millisecond,
	})
	return store, svc
}

func seedUser(t *testing.T, store *memstore.Store, username, balance string) (*account.User, *account.Wallet) {
	t.Helper()
	u, w := fixtures.NewUserBuilder().WithUsername(username).WithBalance(balance).Build(t)
	store.PutUser(u)
	store.PutWallet(w)
	return u, w
}

func placeBid(t *testing.T, svc arbitration.Service, auctionID uuid.UUID, u *account.User, amount string) (*arbitration.BidResult, error) {
	t.Helper()
	return svc.PlaceBid(context.Background(), &arbitration.PlaceBidRequest{
		AuctionID:      auctionID,
		BidderID:       u.ID,
		BidderUsername: u.Username,
		Amount:         values.MustMoney(amount),
	})
}

func entryTypes(entries []*ledger.Entry) []ledger.EntryType {
	out := make([]ledger.EntryType, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Type)
	}
	return out
}

func TestPlaceBid(t *testing.T) {
	t.Run("first bid holds funds and raises the price", func(t *testing.T) {
		store, svc := setupService(t)
		alice, aliceWallet := seedUser(t, store, "alice", "1000.00")
		auc := fixtures.NewAuctionBuilder().WithStartingPrice("100.00").Build(t)
		store.PutAuction(auc)

		result, err := placeBid(t, svc, auc.ID, alice, "150.00")
		require.NoError(t, err)

		assert.Equal(t, auc.ID, result.AuctionID)
		assert.Equal(t, "150.00", result.NewPrice.String())
		assert.Equal(t, "850.00", result.NewBalance.String())
		assert.Equal(t, alice.ID, result.BidderID)
		assert.Equal(t, "alice", result.BidderUsername)
		assert.False(t, result.Timestamp.IsZero())
		assert.False(t, result.Closed)

		stored := store.Auction(auc.ID)
		assert.Equal(t, "150.00", stored.CurrentPrice.String())
		require.NotNil(t, stored.WinnerID)
		assert.Equal(t, alice.ID, *stored.WinnerID)
		assert.Equal(t, auction.StatusActive, stored.Status)

		wallet := store.Wallet(alice.ID)
		assert.Equal(t, "850.00", wallet.Balance.String())
		assert.Equal(t, "150.00", wallet.HeldBalance.String())

		bids := store.Bids(auc.ID)
		require.Len(t, bids, 1)
		assert.Equal(t, alice.ID, bids[0].BidderID)
		assert.Equal(t, "150.00", bids[0].Amount.String())

		entries := store.Entries(aliceWallet.ID)
		require.Len(t, entries, 1)
		assert.Equal(t, ledger.EntryBidHold, entries[0].Type)
		assert.Equal(t, "150.00", entries[0].Amount.String())
		assert.Equal(t, auc.ID.String(), entries[0].ReferenceID)
	})

	t.Run("outbid releases the previous winner's hold", func(t *testing.T) {
		store, svc := setupService(t)
		alice, aliceWallet := seedUser(t, store, "alice", "1000.00")
		bob, bobWallet := seedUser(t, store, "bob", "1000.00")
		auc := fixtures.NewAuctionBuilder().WithStartingPrice("100.00").Build(t)
		store.PutAuction(auc)

		_, err := placeBid(t, svc, auc.ID, alice, "150.00")
		require.NoError(t, err)
		result, err := placeBid(t, svc, auc.ID, bob, "200.00")
		require.NoError(t, err)
		assert.Equal(t, "800.00", result.NewBalance.String())

		stored := store.Auction(auc.ID)
		assert.Equal(t, "200.00", stored.CurrentPrice.String())
		assert.Equal(t, bob.ID, *stored.WinnerID)

		refunded := store.Wallet(alice.ID)
		assert.Equal(t, "1000.00", refunded.Balance.String())
		assert.Equal(t, "0.00", refunded.HeldBalance.String())

		held := store.Wallet(bob.ID)
		assert.Equal(t, "800.00", held.Balance.String())
		assert.Equal(t, "200.00", held.HeldBalance.String())

		assert.Equal(t,
			[]ledger.EntryType{ledger.EntryBidHold, ledger.EntryBidRelease},
			entryTypes(store.Entries(aliceWallet.ID)))
		assert.Equal(t,
			[]ledger.EntryType{ledger.EntryBidHold},
			entryTypes(store.Entries(bobWallet.ID)))
	})

	t.Run("raising your own bid nets a single hold", func(t *testing.T) {
		store, svc := setupService(t)
		alice, aliceWallet := seedUser(t, store, "alice", "1000.00")
		auc := fixtures.NewAuctionBuilder().WithStartingPrice("100.00").Build(t)
		store.PutAuction(auc)

		_, err := placeBid(t, svc, auc.ID, alice, "150.00")
		require.NoError(t, err)
		result, err := placeBid(t, svc, auc.ID, alice, "200.00")
		require.NoError(t, err)
		assert.Equal(t, "800.00", result.NewBalance.String())

		wallet := store.Wallet(alice.ID)
		assert.Equal(t, "800.00", wallet.Balance.String())
		assert.Equal(t, "200.00", wallet.HeldBalance.String(),
			"only the latest bid may stay held")

		// The full release/hold pair is still on the ledger.
		assert.Equal(t,
			[]ledger.EntryType{ledger.EntryBidHold, ledger.EntryBidRelease, ledger.EntryBidHold},
			entryTypes(store.Entries(aliceWallet.ID)))
	})

	t.Run("funds stay conserved across outbids", func(t *testing.T) {
		store, svc := setupService(t)
		alice, _ := seedUser(t, store, "alice", "1000.00")
		bob, _ := seedUser(t, store, "bob", "1000.00")
		auc := fixtures.NewAuctionBuilder().WithStartingPrice("100.00").Build(t)
		store.PutAuction(auc)

		amounts := []struct {
			user   *account.User
			amount string
		}{
			{alice, "110.00"}, {bob, "120.00"}, {alice, "130.00"}, {bob, "140.00"},
		}
		for _, step := range amounts {
			_, err := placeBid(t, svc, auc.ID, step.user, step.amount)
			require.NoError(t, err)
		}

		for _, u := range []*account.User{alice, bob} {
			w := store.Wallet(u.ID)
			assert.Equal(t, "1000.00", w.Balance.Add(w.HeldBalance).String(),
				"balance+held must be conserved for %s", u.Username)
		}
	})
}

func TestPlaceBidRejections(t *testing.T) {
	t.Run("amount not above current price", func(t *testing.T) {
		store, svc := setupService(t)
		alice, _ := seedUser(t, store, "alice", "1000.00")
		auc := fixtures.NewAuctionBuilder().WithStartingPrice("100.00").Build(t)
		store.PutAuction(auc)

		_, err := placeBid(t, svc, auc.ID, alice, "100.00")
		require.ErrorIs(t, err, domainErrors.ErrBidTooLow)

		_, err = placeBid(t, svc, auc.ID, alice, "50.00")
		require.ErrorIs(t, err, domainErrors.ErrBidTooLow)
	})

	t.Run("non-positive or oversized amounts fail before any lookup", func(t *testing.T) {
		_, svc := setupService(t)
		ghost := &account.User{ID: uuid.New(), Username: "ghost"}

		_, err := placeBid(t, svc, uuid.New(), ghost, "0.00")
		require.ErrorIs(t, err, domainErrors.ErrInvalidAmount)

		_, err = placeBid(t, svc, uuid.New(), ghost, "-5.00")
		require.ErrorIs(t, err, domainErrors.ErrInvalidAmount)

		_, err = placeBid(t, svc, uuid.New(), ghost, "99999999999.00")
		require.ErrorIs(t, err, domainErrors.ErrInvalidAmount)
	})

	t.Run("draft auction is not biddable", func(t *testing.T) {
		store, svc := setupService(t)
		alice, _ := seedUser(t, store, "alice", "1000.00")
		auc := fixtures.NewAuctionBuilder().Draft().Build(t)
		store.PutAuction(auc)

		_, err := placeBid(t, svc, auc.ID, alice, "150.00")
		require.ErrorIs(t, err, domainErrors.ErrAuctionNotActive)
	})

	t.Run("state precedes amount in the failure order", func(t *testing.T) {
		store, svc := setupService(t)
		alice, _ := seedUser(t, store, "alice", "1000.00")
		auc := fixtures.NewAuctionBuilder().
			WithStatus(auction.StatusFinished).
			WithStartingPrice("100.00").
			Build(t)
		store.PutAuction(auc)

		// Too low AND not active: the caller must see the state error.
		_, err := placeBid(t, svc, auc.ID, alice, "50.00")
		require.ErrorIs(t, err, domainErrors.ErrAuctionNotActive)
	})

	t.Run("ended auction rejects bids even before the sweep", func(t *testing.T) {
		store, svc := setupService(t)
		alice, _ := seedUser(t, store, "alice", "1000.00")
		auc := fixtures.NewAuctionBuilder().Ended().Build(t)
		store.PutAuction(auc)

		_, err := placeBid(t, svc, auc.ID, alice, "150.00")
		require.ErrorIs(t, err, domainErrors.ErrAuctionEnded)
	})

	t.Run("owner cannot bid on their own auction", func(t *testing.T) {
		store, svc := setupService(t)
		owner, _ := seedUser(t, store, "owner", "1000.00")
		auc := fixtures.NewAuctionBuilder().WithOwner(owner.ID).Build(t)
		store.PutAuction(auc)

		_, err := placeBid(t, svc, auc.ID, owner, "150.00")
		require.ErrorIs(t, err, domainErrors.ErrOwnerBid)
	})

	t.Run("owner check precedes the funds check", func(t *testing.T) {
		store, svc := setupService(t)
		owner, _ := seedUser(t, store, "owner", "0.00")
		auc := fixtures.NewAuctionBuilder().WithOwner(owner.ID).Build(t)
		store.PutAuction(auc)

		_, err := placeBid(t, svc, auc.ID, owner, "150.00")
		require.ErrorIs(t, err, domainErrors.ErrOwnerBid)
	})

	t.Run("insufficient funds leaves no trace", func(t *testing.T) {
		store, svc := setupService(t)
		alice, aliceWallet := seedUser(t, store, "alice", "120.00")
		auc := fixtures.NewAuctionBuilder().WithStartingPrice("100.00").Build(t)
		store.PutAuction(auc)

		_, err := placeBid(t, svc, auc.ID, alice, "150.00")
		require.ErrorIs(t, err, domainErrors.ErrInsufficientFunds)

		stored := store.Auction(auc.ID)
		assert.Equal(t, "100.00", stored.CurrentPrice.String())
		assert.Nil(t, stored.WinnerID)
		assert.Empty(t, store.Bids(auc.ID))
		assert.Empty(t, store.Entries(aliceWallet.ID))

		wallet := store.Wallet(alice.ID)
		assert.Equal(t, "120.00", wallet.Balance.String())
		assert.Equal(t, "0.00", wallet.HeldBalance.String())
	})

	t.Run("held funds do not count toward cover", func(t *testing.T) {
		store, svc := setupService(t)
		alice, _ := seedUser(t, store, "alice", "200.00")
		first := fixtures.NewAuctionBuilder().WithStartingPrice("100.00").Build(t)
		second := fixtures.NewAuctionBuilder().WithStartingPrice("50.00").Build(t)
		store.PutAuction(first)
		store.PutAuction(second)

		_, err := placeBid(t, svc, first.ID, alice, "150.00")
		require.NoError(t, err)

		// 50.00 available cannot cover a 60.00 bid elsewhere.
		_, err = placeBid(t, svc, second.ID, alice, "60.00")
		require.ErrorIs(t, err, domainErrors.ErrInsufficientFunds)
	})

	t.Run("unknown auction", func(t *testing.T) {
		store, svc := setupService(t)
		alice, _ := seedUser(t, store, "alice", "1000.00")

		_, err := placeBid(t, svc, uuid.New(), alice, "150.00")
		require.ErrorIs(t, err, domainErrors.ErrAuctionNotFound)
	})

	t.Run("unknown wallet", func(t *testing.T) {
		store, svc := setupService(t)
		auc := fixtures.NewAuctionBuilder().Build(t)
		store.PutAuction(auc)
		ghost := &account.User{ID: uuid.New(), Username: "ghost"}

		_, err := placeBid(t, svc, auc.ID, ghost, "150.00")
		require.ErrorIs(t, err, domainErrors.ErrWalletNotFound)
	})
}

func TestPlaceBidRetries(t *testing.T) {
	t.Run("transient storage failure is retried", func(t *testing.T) {
		store, svc := setupService(t)
		alice, aliceWallet := seedUser(t, store, "alice", "1000.00")
		auc := fixtures.NewAuctionBuilder().WithStartingPrice("100.00").Build(t)
		store.PutAuction(auc)

		store.FailNextTx(domainErrors.ErrServiceUnavailable)

		result, err := placeBid(t, svc, auc.ID, alice, "150.00")
		require.NoError(t, err)
		assert.Equal(t, "150.00", result.NewPrice.String())

		// The rolled-back attempt must not leave duplicates.
		assert.Len(t, store.Bids(auc.ID), 1)
		assert.Len(t, store.Entries(aliceWallet.ID), 1)
	})

	t.Run("gives up after exhausting retries", func(t *testing.T) {
		store, svc := setupService(t)
		alice, _ := seedUser(t, store, "alice", "1000.00")
		auc := fixtures.NewAuctionBuilder().WithStartingPrice("100.00").Build(t)
		store.PutAuction(auc)

		for i := 0; i < 3; i++ {
			store.FailNextTx(domainErrors.ErrServiceUnavailable)
		}

		_, err := placeBid(t, svc, auc.ID, alice, "150.00")
		require.Error(t, err)
		assert.True(t, domainErrors.IsType(err, domainErrors.ErrorTypeUnavailable))
		assert.Empty(t, store.Bids(auc.ID))
	})

	t.Run("permanent failures are not retried", func(t *testing.T) {
		store, svc := setupService(t)
		alice, _ := seedUser(t, store, "alice", "1000.00")
		auc := fixtures.NewAuctionBuilder().WithStartingPrice("100.00").Build(t)
		store.PutAuction(auc)

		store.FailNextTx(domainErrors.NewInternalError("wire tripped"))

		_, err := placeBid(t, svc, auc.ID, alice, "150.00")
		require.Error(t, err)
		assert.True(t, domainErrors.IsType(err, domainErrors.ErrorTypeInternal))

		// Only one failure was queued; a retry would have consumed none and
		// succeeded, so success here proves the first call made one attempt.
		_, err = placeBid(t, svc, auc.ID, alice, "150.00")
		require.NoError(t, err)
	})

	t.Run("canceled context aborts immediately", func(t *testing.T) {
		store, svc := setupService(t)
		alice, _ := seedUser(t, store, "alice", "1000.00")
		auc := fixtures.NewAuctionBuilder().Build(t)
		store.PutAuction(auc)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := svc.PlaceBid(ctx, &arbitration.PlaceBidRequest{
			AuctionID:      auc.ID,
			BidderID:       alice.ID,
			BidderUsername: alice.Username,
			Amount:         values.MustMoney("150.00"),
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, store.Bids(auc.ID))
	})
}

func TestPlaceBidConcurrent(t *testing.T) {
	store, svc := setupService(t)
	alice, _ := seedUser(t, store, "alice", "1000.00")
	bob, _ := seedUser(t, store, "bob", "1000.00")
	auc := fixtures.NewAuctionBuilder().WithStartingPrice("100.00").Build(t)
	store.PutAuction(auc)

	bidders := []*account.User{alice, bob}
	errs := make([]error, len(bidders))

	var wg sync.WaitGroup
	for i, u := range bidders {
		wg.Add(1)
		go func(i int, u *account.User) {
			defer wg.Done()
			_, errs[i] = placeBid(t, svc, auc.ID, u, "150.00")
		}(i, u)
	}
	wg.Wait()

	// Exactly one of two equal bids may win.
	var winners, losers int
	for i, err := range errs {
		if err == nil {
			winners++
			w := store.Wallet(bidders[i].ID)
			assert.Equal(t, "150.00", w.HeldBalance.String())
		} else {
			losers++
			require.ErrorIs(t, err, domainErrors.ErrBidTooLow)
			w := store.Wallet(bidders[i].ID)
			assert.Equal(t, "0.00", w.HeldBalance.String())
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, losers)

	stored := store.Auction(auc.ID)
	assert.Equal(t, "150.00", stored.CurrentPrice.String())
	require.NotNil(t, stored.WinnerID)
	assert.Len(t, store.Bids(auc.ID), 1)
	assert.Len(t, store.AllEntries(), 1)
}

func TestBuyNow(t *testing.T) {
	buyNow := func(svc arbitration.Service, auctionID uuid.UUID, u *account.User) (*arbitration.BidResult, error) {
		return svc.BuyNow(context.Background(), &arbitration.BuyNowRequest{
			AuctionID:     auctionID,
			BuyerID:       u.ID,
			BuyerUsername: u.Username,
		})
	}

	t.Run("finishes the auction at the buy-now price", func(t *testing.T) {
		store, svc := setupService(t)
		dave, daveWallet := seedUser(t, store, "dave", "600.00")
		auc := fixtures.NewAuctionBuilder().
			WithStartingPrice("100.00").
			WithBuyNowPrice("500.00").
			Build(t)
		store.PutAuction(auc)

		result, err := buyNow(svc, auc.ID, dave)
		require.NoError(t, err)
		assert.True(t, result.Closed)
		assert.Equal(t, "500.00", result.NewPrice.String())
		assert.Equal(t, "100.00", result.NewBalance.String())

		stored := store.Auction(auc.ID)
		assert.Equal(t, auction.StatusFinished, stored.Status)
		assert.Equal(t, "500.00", stored.CurrentPrice.String())
		require.NotNil(t, stored.WinnerID)
		assert.Equal(t, dave.ID, *stored.WinnerID)
		assert.False(t, stored.EndTime.After(time.Now().UTC()),
			"buy-now must pull the end time to the purchase moment")

		entries := store.Entries(daveWallet.ID)
		require.Len(t, entries, 1)
		assert.Equal(t, ledger.EntryPayment, entries[0].Type)
		assert.Equal(t, "500.00", entries[0].Amount.String())

		// The auction is terminal: no further bids.
		_, err = placeBid(t, svc, auc.ID, dave, "600.00")
		require.ErrorIs(t, err, domainErrors.ErrAuctionNotActive)
	})

	t.Run("refunds the displaced winner", func(t *testing.T) {
		store, svc := setupService(t)
		alice, aliceWallet := seedUser(t, store, "alice", "1000.00")
		dave, _ := seedUser(t, store, "dave", "1000.00")
		auc := fixtures.NewAuctionBuilder().
			WithStartingPrice("100.00").
			WithBuyNowPrice("500.00").
			Build(t)
		store.PutAuction(auc)

		_, err := placeBid(t, svc, auc.ID, alice, "150.00")
		require.NoError(t, err)
		_, err = buyNow(svc, auc.ID, dave)
		require.NoError(t, err)

		refunded := store.Wallet(alice.ID)
		assert.Equal(t, "1000.00", refunded.Balance.String())
		assert.Equal(t, "0.00", refunded.HeldBalance.String())
		assert.Equal(t,
			[]ledger.EntryType{ledger.EntryBidHold, ledger.EntryBidRelease},
			entryTypes(store.Entries(aliceWallet.ID)))
	})

	t.Run("rejects when no buy-now price is set", func(t *testing.T) {
		store, svc := setupService(t)
		dave, _ := seedUser(t, store, "dave", "1000.00")
		auc := fixtures.NewAuctionBuilder().Build(t)
		store.PutAuction(auc)

		_, err := buyNow(svc, auc.ID, dave)
		require.ErrorIs(t, err, domainErrors.ErrNoBuyNowPrice)
	})

	t.Run("rejects the owner", func(t *testing.T) {
		store, svc := setupService(t)
		owner, _ := seedUser(t, store, "owner", "1000.00")
		auc := fixtures.NewAuctionBuilder().
			WithOwner(owner.ID).
			WithBuyNowPrice("500.00").
			Build(t)
		store.PutAuction(auc)

		_, err := buyNow(svc, auc.ID, owner)
		require.ErrorIs(t, err, domainErrors.ErrOwnerBid)
	})

	t.Run("rejects insufficient funds", func(t *testing.T) {
		store, svc := setupService(t)
		dave, _ := seedUser(t, store, "dave", "400.00")
		auc := fixtures.NewAuctionBuilder().
			WithStartingPrice("100.00").
			WithBuyNowPrice("500.00").
			Build(t)
		store.PutAuction(auc)

		_, err := buyNow(svc, auc.ID, dave)
		require.ErrorIs(t, err, domainErrors.ErrInsufficientFunds)

		stored := store.Auction(auc.ID)
		assert.Equal(t, auction.StatusActive, stored.Status)
	})

	t.Run("rejects a non-active auction", func(t *testing.T) {
		store, svc := setupService(t)
		dave, _ := seedUser(t, store, "dave", "1000.00")
		auc := fixtures.NewAuctionBuilder().
			WithStatus(auction.StatusCancelled).
			WithBuyNowPrice("500.00").
			Build(t)
		store.PutAuction(auc)

		_, err := buyNow(svc, auc.ID, dave)
		require.ErrorIs(t, err, domainErrors.ErrAuctionNotActive)
	})
}
