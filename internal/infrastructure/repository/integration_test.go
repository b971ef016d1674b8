//go:build integration

package repository_test

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
	"go.uber.org/zap/zaptest"

	"github.com/bidwire/auction-exchange-backend/internal/domain/account"
	"github.com/bidwire/auction-exchange-backend/internal/domain/auction"
	domainErrors "github.com/bidwire/auction-exchange-backend/internal/domain/errors"
	"github.com/bidwire/auction-exchange-backend/internal/domain/ledger"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/config"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/database"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/repository"
	"github.com/bidwire/auction-exchange-backend/internal/service/arbitration"
	"github.com/bidwire/auction-exchange-backend/internal/service/catalog"
	"github.com/bidwire/auction-exchange-backend/internal/service/closer"
	"github.com/bidwire/auction-exchange-backend/internal/testutil/containers"
)

func setupDB(t *testing.T) *database.ConnectionPool {
	t.Helper()

	dsn := containers.StartPostgres(t)
	db, err := database.NewConnectionPool(&config.DatabaseConfig{URL: dsn}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createUser(t *testing.T, db *database.ConnectionPool, username string) *account.User {
	t.Helper()

	u, err := account.NewUser(username, username+"@bidwire.dev")
	require.NoError(t, err)
	require.NoError(t, repository.NewUserRepository(db).CreateUser(context.Background(), u))
	return u
}

func fundWallet(t *testing.T, db *database.ConnectionPool, userID uuid.UUID, amount string) {
	t.Helper()

	_, err := repository.NewWalletRepository(db).Credit(
		context.Background(), userID, values.MustMoney(amount), "test:deposit")
	require.NoError(t, err)
}

// buildAuction assembles a domain auction without persisting it. A zero
// publishAt leaves it in DRAFT.
func buildAuction(t *testing.T, ownerID uuid.UUID, title string, start, end time.Time, starting string, publishAt time.Time) *auction.Auction {
	t.Helper()

	product, err := auction.NewProduct(ownerID, title, "integration fixture", auction.CategoryOther, auction.ConditionGood)
	require.NoError(t, err)
	a, err := auction.NewAuction(product, start, end, values.MustMoney(starting), nil)
	require.NoError(t, err)
	if !publishAt.IsZero() {
		require.NoError(t, a.Publish(publishAt))
	}
	return a
}

func insertAuction(t *testing.T, db *database.ConnectionPool, a *auction.Auction) {
	t.Helper()
	require.NoError(t, repository.NewCatalogRepository(db).InsertAuction(context.Background(), a))
}

func TestUserRepository(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	users := repository.NewUserRepository(db)

	alice := createUser(t, db, "alice")

	t.Run("round trip", func(t *testing.T) {
		got, err := users.GetUser(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, alice.Email, got.Email)

		byName, err := users.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, byName.ID)
	})

	t.Run("create wires an empty wallet", func(t *testing.T) {
		w, err := repository.NewWalletRepository(db).GetWallet(ctx, alice.ID)
		require.NoError(t, err)
		assert.True(t, w.Balance.IsZero())
		assert.True(t, w.HeldBalance.IsZero())
	})

	t.Run("duplicate username rejected", func(t *testing.T) {
		dup, err := account.NewUser("alice", "other@bidwire.dev")
		require.NoError(t, err)
		err = users.CreateUser(ctx, dup)
		require.Error(t, err)
		assert.True(t, domainErrors.IsType(err, domainErrors.ErrorTypeValidation))
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := users.GetUser(ctx, uuid.New())
		require.ErrorIs(t, err, domainErrors.ErrUserNotFound)

		_, err = users.GetUserByUsername(ctx, "nobody")
		require.ErrorIs(t, err, domainErrors.ErrUserNotFound)
	})
}

func TestWalletRepository(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	wallets := repository.NewWalletRepository(db)

	bob := createUser(t, db, "bob")

	t.Run("ensure on first reference is stable", func(t *testing.T) {
		first, err := wallets.GetWallet(ctx, bob.ID)
		require.NoError(t, err)
		second, err := wallets.GetWallet(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("unknown user cannot grow a wallet", func(t *testing.T) {
		_, err := wallets.GetWallet(ctx, uuid.New())
		require.ErrorIs(t, err, domainErrors.ErrUserNotFound)
	})

	t.Run("credit appends a deposit entry", func(t *testing.T) {
		w, err := wallets.Credit(ctx, bob.ID, values.MustMoney("250.00"), "pay:abc123")
		require.NoError(t, err)
		assert.True(t, w.Balance.Equal(values.MustMoney("250.00")))

		entries, err := wallets.ListEntries(ctx, w.ID, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, ledger.EntryDeposit, entries[0].Type)
		assert.True(t, entries[0].Amount.Equal(values.MustMoney("250.00")))
		assert.Equal(t, "pay:abc123", entries[0].ReferenceID)
	})
}

func TestBidStore(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seller := createUser(t, db, "seller")
	bidder := createUser(t, db, "bidder")
	fundWallet(t, db, bidder.ID, "1000.00")

	a := buildAuction(t, seller.ID, "Vintage Camera", now.Add(-time.Hour), now.Add(time.Hour), "100.00", now)
	insertAuction(t, db, a)

	store := repository.NewBidStore(db)
	wallets := repository.NewWalletRepository(db)
	listings := repository.NewCatalogRepository(db)

	placeBid := func(amount string) error {
		return store.InTx(ctx, func(tx arbitration.Tx) error {
			w, err := tx.LockWallet(ctx, bidder.ID)
			if err != nil {
				return err
			}
			auc, err := tx.LockAuction(ctx, a.ID)
			if err != nil {
				return err
			}
			m := values.MustMoney(amount)
			if err := w.Hold(m); err != nil {
				return err
			}
			hold, err := ledger.NewBidHold(w.ID, m, auc.ID)
			if err != nil {
				return err
			}
			if err := tx.InsertLedgerEntry(ctx, hold); err != nil {
				return err
			}
			if err := tx.UpdateWallet(ctx, w); err != nil {
				return err
			}
			b, err := auction.NewBid(auc.ID, bidder.ID, m)
			if err != nil {
				return err
			}
			if err := tx.InsertBid(ctx, b); err != nil {
				return err
			}
			auc.ApplyBid(bidder.ID, m)
			return tx.UpdateAuction(ctx, auc)
		})
	}

	t.Run("commit persists every row", func(t *testing.T) {
		require.NoError(t, placeBid("150.00"))

		got, err := listings.GetAuction(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, got.CurrentPrice.Equal(values.MustMoney("150.00")))
		require.NotNil(t, got.WinnerID)
		assert.Equal(t, bidder.ID, *got.WinnerID)

		w, err := wallets.GetWallet(ctx, bidder.ID)
		require.NoError(t, err)
		assert.True(t, w.Balance.Equal(values.MustMoney("850.00")))
		assert.True(t, w.HeldBalance.Equal(values.MustMoney("150.00")))

		bids, err := listings.ListBids(ctx, a.ID, 10)
		require.NoError(t, err)
		require.Len(t, bids, 1)
		assert.Equal(t, "bidder", bids[0].BidderUsername)

		entries, err := wallets.ListEntries(ctx, w.ID, 10)
		require.NoError(t, err)
		require.NotEmpty(t, entries)
		assert.Equal(t, ledger.EntryBidHold, entries[0].Type)
	})

	t.Run("error rolls the whole unit back", func(t *testing.T) {
		before, err := wallets.GetWallet(ctx, bidder.ID)
		require.NoError(t, err)

		sentinel := domainErrors.NewInternalError("boom")
		err = store.InTx(ctx, func(tx arbitration.Tx) error {
			w, err := tx.LockWallet(ctx, bidder.ID)
			if err != nil {
				return err
			}
			if err := w.Hold(values.MustMoney("100.00")); err != nil {
				return err
			}
			if err := tx.UpdateWallet(ctx, w); err != nil {
				return err
			}
			b, err := auction.NewBid(a.ID, bidder.ID, values.MustMoney("500.00"))
			if err != nil {
				return err
			}
			if err := tx.InsertBid(ctx, b); err != nil {
				return err
			}
			return sentinel
		})
		require.Error(t, err)

		after, err := wallets.GetWallet(ctx, bidder.ID)
		require.NoError(t, err)
		assert.True(t, after.Balance.Equal(before.Balance))
		assert.True(t, after.HeldBalance.Equal(before.HeldBalance))

		bids, err := listings.ListBids(ctx, a.ID, 10)
		require.NoError(t, err)
		assert.Len(t, bids, 1)
	})

	t.Run("row locks serialize concurrent writers", func(t *testing.T) {
		base, err := listings.GetAuction(ctx, a.ID)
		require.NoError(t, err)

		raise := func() error {
			return store.InTx(ctx, func(tx arbitration.Tx) error {
				auc, err := tx.LockAuction(ctx, a.ID)
				if err != nil {
					return err
				}
				auc.ApplyBid(bidder.ID, auc.CurrentPrice.Add(values.MustMoney("10.00")))
				return tx.UpdateAuction(ctx, auc)
			})
		}

		var wg sync.WaitGroup
		errs := make(chan error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- raise()
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := listings.GetAuction(ctx, a.ID)
		require.NoError(t, err)
		want := base.CurrentPrice.Add(values.MustMoney("20.00"))
		assert.True(t, got.CurrentPrice.Equal(want),
			"expected %s, got %s", want, got.CurrentPrice)
	})

	t.Run("schema rejects negative balances", func(t *testing.T) {
		_, err := db.Pool().Exec(ctx,
			`UPDATE wallets SET balance = -1 WHERE user_id = $1`, bidder.ID)
		require.Error(t, err)
	})
}

func TestCloserStore(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seller := createUser(t, db, "seller")
	winner := createUser(t, db, "winner")

	contested := buildAuction(t, seller.ID, "Ended With Bids", now.Add(-3*time.Hour), now.Add(-time.Hour), "100.00", now.Add(-2*time.Hour))
	contested.ApplyBid(winner.ID, values.MustMoney("175.00"))
	insertAuction(t, db, contested)

	untouched := buildAuction(t, seller.ID, "Ended Without Bids", now.Add(-3*time.Hour), now.Add(-2*time.Hour), "50.00", now.Add(-150*time.Minute))
	insertAuction(t, db, untouched)

	live := buildAuction(t, seller.ID, "Still Running", now.Add(-time.Hour), now.Add(time.Hour), "80.00", now)
	insertAuction(t, db, live)

	store := repository.NewCloserStore(db)

	t.Run("lock expired selects only ended actives", func(t *testing.T) {
		var ids []uuid.UUID
		err := store.InTx(ctx, func(tx closer.Tx) error {
			expired, err := tx.LockExpired(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			for _, a := range expired {
				ids = append(ids, a.ID)
			}
			return nil
		})
		require.NoError(t, err)
		// Ordered by end_time: the no-bid auction ended first.
		require.Equal(t, []uuid.UUID{untouched.ID, contested.ID}, ids)
	})

	t.Run("sweep settles and notifies", func(t *testing.T) {
		notifier := &stubNotifier{}
		sweeper := closer.NewSweeper(store, notifier, nil, testLogger(), closer.Config{
			Interval:     time.Minute,
			MaxAttempts:  1,
			RetryBackoff: time.Millisecond,
		})

		result, err := sweeper.SweepOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Finished)
		assert.Equal(t, 1, result.Expired)

		listings := repository.NewCatalogRepository(db)
		finished, err := listings.GetAuction(ctx, contested.ID)
		require.NoError(t, err)
		assert.Equal(t, auction.StatusFinished, finished.Status)

		expired, err := listings.GetAuction(ctx, untouched.ID)
		require.NoError(t, err)
		assert.Equal(t, auction.StatusExpired, expired.Status)

		running, err := listings.GetAuction(ctx, live.ID)
		require.NoError(t, err)
		assert.Equal(t, auction.StatusActive, running.Status)

		notes := notifier.notifications()
		require.Len(t, notes, 1)
		assert.Equal(t, contested.ID, notes[0].AuctionID)
		assert.Equal(t, winner.ID, notes[0].WinnerID)
		assert.True(t, notes[0].FinalPrice.Equal(values.MustMoney("175.00")))
	})

	t.Run("second sweep finds nothing", func(t *testing.T) {
		notifier := &stubNotifier{}
		sweeper := closer.NewSweeper(store, notifier, nil, testLogger(), closer.Config{
			Interval:     time.Minute,
			MaxAttempts:  1,
			RetryBackoff: time.Millisecond,
		})

		result, err := sweeper.SweepOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, result.Finished)
		assert.Zero(t, result.Expired)
		assert.Empty(t, notifier.notifications())
	})
}

func TestCatalogRepository(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seller := createUser(t, db, "seller")
	bidder := createUser(t, db, "bidder")
	fundWallet(t, db, bidder.ID, "1000.00")

	listings := repository.NewCatalogRepository(db)

	camera := buildAuction(t, seller.ID, "Vintage Camera", now.Add(-time.Hour), now.Add(24*time.Hour), "100.00", now)
	insertAuction(t, db, camera)

	jacket := buildAuction(t, seller.ID, "Leather Jacket", now.Add(-time.Hour), now.Add(48*time.Hour), "200.00", now)
	jacket.ApplyBid(bidder.ID, values.MustMoney("350.00"))
	insertAuction(t, db, jacket)

	draft := buildAuction(t, seller.ID, "Unlisted Draft", now.Add(-time.Hour), now.Add(24*time.Hour), "10.00", time.Time{})
	insertAuction(t, db, draft)

	t.Run("list excludes drafts", func(t *testing.T) {
		got, err := listings.List(ctx, &catalog.ListQuery{SortBy: catalog.SortCreatedAt, Descending: true, Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, a := range got {
			assert.NotEqual(t, auction.StatusDraft, a.Status)
		}
	})

	t.Run("search is case-insensitive over title and description", func(t *testing.T) {
		got, err := listings.List(ctx, &catalog.ListQuery{Search: "CAMERA", SortBy: catalog.SortCreatedAt, Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, camera.ID, got[0].ID)
	})

	t.Run("price bounds", func(t *testing.T) {
		minPrice := values.MustMoney("300.00")
		got, err := listings.List(ctx, &catalog.ListQuery{MinPrice: &minPrice, SortBy: catalog.SortCreatedAt, Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, jacket.ID, got[0].ID)
	})

	t.Run("sort by current price descending", func(t *testing.T) {
		got, err := listings.List(ctx, &catalog.ListQuery{SortBy: catalog.SortCurrentPrice, Descending: true, Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, jacket.ID, got[0].ID)
		assert.Equal(t, camera.ID, got[1].ID)
	})

	t.Run("pagination", func(t *testing.T) {
		got, err := listings.List(ctx, &catalog.ListQuery{SortBy: catalog.SortCurrentPrice, Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, jacket.ID, got[0].ID)
	})

	t.Run("mutate persists under lock and rolls back on error", func(t *testing.T) {
		updated, err := listings.Mutate(ctx, draft.ID, func(a *auction.Auction) error {
			return a.Publish(now)
		})
		require.NoError(t, err)
		assert.Equal(t, auction.StatusActive, updated.Status)

		sentinel := domainErrors.NewInternalError("abort")
		_, err = listings.Mutate(ctx, draft.ID, func(a *auction.Auction) error {
			a.ApplyBid(bidder.ID, values.MustMoney("999.00"))
			return sentinel
		})
		require.Error(t, err)

		got, err := listings.GetAuction(ctx, draft.ID)
		require.NoError(t, err)
		assert.True(t, got.CurrentPrice.Equal(values.MustMoney("10.00")))

		// Back to draft for the delete cases below.
		_, err = listings.Mutate(ctx, draft.ID, func(a *auction.Auction) error {
			a.Status = auction.StatusDraft
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("delete draft removes auction and product", func(t *testing.T) {
		require.NoError(t, listings.DeleteDraft(ctx, draft.ID))

		_, err := listings.GetAuction(ctx, draft.ID)
		require.ErrorIs(t, err, domainErrors.ErrAuctionNotFound)

		var productCount int
		err = db.Pool().QueryRow(ctx,
			`SELECT COUNT(*) FROM products WHERE id = $1`, draft.Product.ID).Scan(&productCount)
		require.NoError(t, err)
		assert.Zero(t, productCount)
	})

	t.Run("delete refuses non-drafts", func(t *testing.T) {
		err := listings.DeleteDraft(ctx, camera.ID)
		require.Error(t, err)
		assert.True(t, domainErrors.IsType(err, domainErrors.ErrorTypeValidation))

		_, err = listings.GetAuction(ctx, camera.ID)
		require.NoError(t, err)
	})

	t.Run("bid reads", func(t *testing.T) {
		b1, err := auction.NewBid(jacket.ID, bidder.ID, values.MustMoney("250.00"))
		require.NoError(t, err)
		b2, err := auction.NewBid(jacket.ID, bidder.ID, values.MustMoney("350.00"))
		require.NoError(t, err)
		store := repository.NewBidStore(db)
		err = store.InTx(ctx, func(tx arbitration.Tx) error {
			if err := tx.InsertBid(ctx, b1); err != nil {
				return err
			}
			return tx.InsertBid(ctx, b2)
		})
		require.NoError(t, err)

		bids, err := listings.ListBids(ctx, jacket.ID, 10)
		require.NoError(t, err)
		require.Len(t, bids, 2)
		assert.True(t, bids[0].Bid.Amount.Equal(values.MustMoney("350.00")))
		assert.Equal(t, "bidder", bids[0].BidderUsername)

		highest, ok, err := listings.HighestBid(ctx, jacket.ID, bidder.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, highest.Equal(values.MustMoney("350.00")))

		_, ok, err = listings.HighestBid(ctx, jacket.ID, seller.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		mine, err := listings.ListBidAuctions(ctx, bidder.ID)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, jacket.ID, mine[0].Auction.ID)
		assert.True(t, mine[0].HighestBid.Equal(values.MustMoney("350.00")))
	})
}

type stubNotifier struct {
	mu       sync.Mutex
	received []closer.WinnerNotification
}

func (n *stubNotifier) NotifyWinner(ctx context.Context, w closer.WinnerNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.received = append(n.received, w)
	return nil
}

func (n *stubNotifier) notifications() []closer.WinnerNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]closer.WinnerNotification(nil), n.received...)
}
