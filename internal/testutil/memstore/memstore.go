// Package memstore is an in-memory implementation of the storage contracts,
// used by service tests and the single-binary dev mode. One mutex serializes
// transactions, standing in for the row locks the SQL store takes; rollback
// comes from staging writes until commit.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bidwire/auction-exchange-backend/internal/domain/account"
	"github.com/bidwire/auction-exchange-backend/internal/domain/auction"
	domainErrors "github.com/bidwire/auction-exchange-backend/internal/domain/errors"
	"github.com/bidwire/auction-exchange-backend/internal/domain/ledger"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
	"github.com/bidwire/auction-exchange-backend/internal/service/arbitration"
	"github.com/bidwire/auction-exchange-backend/internal/service/catalog"
	"github.com/bidwire/auction-exchange-backend/internal/service/closer"
)

// Store holds all state. Create views with BidStore, CloserStore and
// CatalogRepository; they share this data.
type Store struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*account.User
	wallets  map[uuid.UUID]*account.Wallet // keyed by user id
	auctions map[uuid.UUID]*auction.Auction
	bids     []*auction.Bid
	entries  []*ledger.Entry

	// failures injects transaction-level errors, oldest first. Each InTx
	// consumes one; fn still runs so locks and reads stay observable.
	failures []error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:    make(map[uuid.UUID]*account.User),
		wallets:  make(map[uuid.UUID]*account.Wallet),
		auctions: make(map[uuid.UUID]*auction.Auction),
	}
}

// FailNextTx queues an error for the next transaction. Queue several to
// exercise retry loops; a retryable error simulates serialization conflict.
func (s *Store) FailNextTx(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, err)
}

// PutUser stores a user and an empty wallet for them.
func (s *Store) PutUser(u *account.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	if _, ok := s.wallets[u.ID]; !ok {
		s.wallets[u.ID] = account.NewWallet(u.ID)
	}
}

// PutWallet replaces a user's wallet.
func (s *Store) PutWallet(w *account.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[w.UserID] = copyWallet(w)
}

// PutAuction stores an auction.
func (s *Store) PutAuction(a *auction.Auction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions[a.ID] = copyAuction(a)
}

// PutBid appends a bid row directly, bypassing arbitration.
func (s *Store) PutBid(b *auction.Bid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *b
	s.bids = append(s.bids, &c)
}

// Wallet returns a snapshot of a user's wallet.
func (s *Store) Wallet(userID uuid.UUID) *account.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[userID]
	if !ok {
		return nil
	}
	return copyWallet(w)
}

// Auction returns a snapshot of an auction.
func (s *Store) Auction(id uuid.UUID) *auction.Auction {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return nil
	}
	return copyAuction(a)
}

// Bids returns all bids on an auction in insertion order.
func (s *Store) Bids(auctionID uuid.UUID) []*auction.Bid {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*auction.Bid
	for _, b := range s.bids {
		if b.AuctionID == auctionID {
			c := *b
			out = append(out, &c)
		}
	}
	return out
}

// Entries returns a wallet's ledger entries in insertion order.
func (s *Store) Entries(walletID uuid.UUID) []*ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ledger.Entry
	for _, e := range s.entries {
		if e.WalletID == walletID {
			c := *e
			out = append(out, &c)
		}
	}
	return out
}

// AllEntries returns every ledger entry in insertion order.
func (s *Store) AllEntries() []*ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ledger.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		c := *e
		out = append(out, &c)
	}
	return out
}

// BidStore returns the arbitration view.
func (s *Store) BidStore() arbitration.Store { return &bidStore{s} }

// CloserStore returns the sweep view.
func (s *Store) CloserStore() closer.Store { return &closerStore{s} }

// CatalogRepository returns the catalog view.
func (s *Store) CatalogRepository() catalog.Repository { return &catalogRepo{s} }

type bidStore struct{ s *Store }

func (b *bidStore) InTx(ctx context.Context, fn func(arbitration.Tx) error) error {
	return b.s.inTx(ctx, func(tx *memTx) error { return fn(tx) })
}

type closerStore struct{ s *Store }

func (c *closerStore) InTx(ctx context.Context, fn func(closer.Tx) error) error {
	return c.s.inTx(ctx, func(tx *memTx) error { return fn(tx) })
}

// inTx serializes the transaction, runs fn against a staging tx, and
// applies the staged writes only when everything succeeded.
func (s *Store) inTx(ctx context.Context, fn func(*memTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var injected error
	if len(s.failures) > 0 {
		injected = s.failures[0]
		s.failures = s.failures[1:]
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		s:        s,
		wallets:  make(map[uuid.UUID]*account.Wallet),
		auctions: make(map[uuid.UUID]*auction.Auction),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if injected != nil {
		return injected
	}
	tx.commit()
	return nil
}

// memTx stages writes; reads see staged state first, then the store.
type memTx struct {
	s        *Store
	wallets  map[uuid.UUID]*account.Wallet
	auctions map[uuid.UUID]*auction.Auction
	bids     []*auction.Bid
	entries  []*ledger.Entry
}

func (t *memTx) commit() {
	for id, w := range t.wallets {
		t.s.wallets[id] = w
	}
	for id, a := range t.auctions {
		t.s.auctions[id] = a
	}
	t.s.bids = append(t.s.bids, t.bids...)
	t.s.entries = append(t.s.entries, t.entries...)
}

func (t *memTx) LockWallet(ctx context.Context, userID uuid.UUID) (*account.Wallet, error) {
	if w, ok := t.wallets[userID]; ok {
		return copyWallet(w), nil
	}
	w, ok := t.s.wallets[userID]
	if !ok {
		return nil, domainErrors.ErrWalletNotFound
	}
	return copyWallet(w), nil
}

func (t *memTx) LockAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	if a, ok := t.auctions[id]; ok {
		return copyAuction(a), nil
	}
	a, ok := t.s.auctions[id]
	if !ok {
		return nil, domainErrors.ErrAuctionNotFound
	}
	return copyAuction(a), nil
}

func (t *memTx) LockExpired(ctx context.Context, now time.Time) ([]*auction.Auction, error) {
	var expired []*auction.Auction
	for _, a := range t.s.auctions {
		if a.Status == auction.StatusActive && a.EndTime.Before(now) {
			expired = append(expired, copyAuction(a))
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].EndTime.Before(expired[j].EndTime)
	})
	return expired, nil
}

func (t *memTx) UpdateWallet(ctx context.Context, w *account.Wallet) error {
	t.wallets[w.UserID] = copyWallet(w)
	return nil
}

func (t *memTx) UpdateAuction(ctx context.Context, a *auction.Auction) error {
	t.auctions[a.ID] = copyAuction(a)
	return nil
}

func (t *memTx) InsertBid(ctx context.Context, b *auction.Bid) error {
	c := *b
	t.bids = append(t.bids, &c)
	return nil
}

func (t *memTx) InsertLedgerEntry(ctx context.Context, e *ledger.Entry) error {
	c := *e
	t.entries = append(t.entries, &c)
	return nil
}

// catalogRepo implements catalog.Repository on the shared state.
type catalogRepo struct{ s *Store }

func (r *catalogRepo) InsertAuction(ctx context.Context, a *auction.Auction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[a.Product.OwnerID]; !ok {
		return domainErrors.ErrUserNotFound
	}
	r.s.auctions[a.ID] = copyAuction(a)
	return nil
}

func (r *catalogRepo) GetAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.auctions[id]
	if !ok {
		return nil, domainErrors.ErrAuctionNotFound
	}
	return copyAuction(a), nil
}

func (r *catalogRepo) Mutate(ctx context.Context, id uuid.UUID, fn func(a *auction.Auction) error) (*auction.Auction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.auctions[id]
	if !ok {
		return nil, domainErrors.ErrAuctionNotFound
	}
	work := copyAuction(stored)
	if err := fn(work); err != nil {
		return nil, err
	}
	r.s.auctions[id] = copyAuction(work)
	return work, nil
}

func (r *catalogRepo) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.auctions[id]
	if !ok {
		return domainErrors.ErrAuctionNotFound
	}
	if a.Status != auction.StatusDraft {
		return domainErrors.NewValidationError("NOT_DRAFT", "only draft auctions can be deleted")
	}
	delete(r.s.auctions, id)
	return nil
}

func (r *catalogRepo) List(ctx context.Context, q *catalog.ListQuery) ([]*auction.Auction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	matches := make([]*auction.Auction, 0)
	for _, a := range r.s.auctions {
		if !matchesQuery(a, q) {
			continue
		}
		matches = append(matches, copyAuction(a))
	}

	sortAuctions(matches, q.SortBy, q.Descending)

	if q.Offset >= len(matches) {
		return []*auction.Auction{}, nil
	}
	matches = matches[q.Offset:]
	if q.Limit > 0 && q.Limit < len(matches) {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

func matchesQuery(a *auction.Auction, q *catalog.ListQuery) bool {
	if a.Status == auction.StatusDraft {
		return false
	}
	if q.Status != nil && a.Status != *q.Status {
		return false
	}
	if q.Category != nil && a.Product.Category != *q.Category {
		return false
	}
	if q.Condition != nil && a.Product.Condition != *q.Condition {
		return false
	}
	if q.MinPrice != nil && a.CurrentPrice.LessThan(*q.MinPrice) {
		return false
	}
	if q.MaxPrice != nil && a.CurrentPrice.GreaterThan(*q.MaxPrice) {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		title := strings.ToLower(a.Product.Title)
		desc := strings.ToLower(a.Product.Description)
		if !strings.Contains(title, needle) && !strings.Contains(desc, needle) {
			return false
		}
	}
	return true
}

func sortAuctions(list []*auction.Auction, field catalog.SortField, descending bool) {
	less := func(i, j int) bool {
		switch field {
		case catalog.SortCurrentPrice:
			return list[i].CurrentPrice.LessThan(list[j].CurrentPrice)
		case catalog.SortEndTime:
			return list[i].EndTime.Before(list[j].EndTime)
		default:
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
	}
	if descending {
		sort.SliceStable(list, func(i, j int) bool { return less(j, i) })
		return
	}
	sort.SliceStable(list, less)
}

func (r *catalogRepo) ListBids(ctx context.Context, auctionID uuid.UUID, limit int) ([]catalog.BidRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	records := make([]catalog.BidRecord, 0)
	for _, b := range r.s.bids {
		if b.AuctionID != auctionID {
			continue
		}
		username := ""
		if u, ok := r.s.users[b.BidderID]; ok {
			username = u.Username
		}
		records = append(records, catalog.BidRecord{Bid: *b, BidderUsername: username})
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[j].Bid.Amount.LessThan(records[i].Bid.Amount)
	})
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}

func (r *catalogRepo) ListBidAuctions(ctx context.Context, userID uuid.UUID) ([]catalog.BidAuction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	highest := make(map[uuid.UUID]values.Money)
	for _, b := range r.s.bids {
		if b.BidderID != userID {
			continue
		}
		if cur, ok := highest[b.AuctionID]; !ok || cur.LessThan(b.Amount) {
			highest[b.AuctionID] = b.Amount
		}
	}

	result := make([]catalog.BidAuction, 0, len(highest))
	for auctionID, amount := range highest {
		a, ok := r.s.auctions[auctionID]
		if !ok {
			continue
		}
		result = append(result, catalog.BidAuction{Auction: copyAuction(a), HighestBid: amount})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[j].Auction.CreatedAt.Before(result[i].Auction.CreatedAt)
	})
	return result, nil
}

func (r *catalogRepo) HighestBid(ctx context.Context, auctionID, userID uuid.UUID) (values.Money, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	best := values.Zero()
	found := false
	for _, b := range r.s.bids {
		if b.AuctionID != auctionID || b.BidderID != userID {
			continue
		}
		if !found || best.LessThan(b.Amount) {
			best = b.Amount
			found = true
		}
	}
	return best, found, nil
}

func copyWallet(w *account.Wallet) *account.Wallet {
	c := *w
	return &c
}

func copyAuction(a *auction.Auction) *auction.Auction {
	c := *a
	if a.Product != nil {
		p := *a.Product
		c.Product = &p
	}
	if a.BuyNowPrice != nil {
		m := *a.BuyNowPrice
		c.BuyNowPrice = &m
	}
	if a.WinnerID != nil {
		id := *a.WinnerID
		c.WinnerID = &id
	}
	return &c
}
