package querybuilder

import (
	"github.com/bidwire/auction-exchange-backend/internal/domain/auction"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
)

// AuctionColumns is the canonical select list for an auction joined with its
// product. Scan destinations must follow this order.
var AuctionColumns = []string{
	"a.id", "a.status", "a.start_time", "a.end_time",
	"a.starting_price", "a.current_price", "a.buy_now_price", "a.winner_id",
	"a.created_at", "a.updated_at",
	"p.id", "p.owner_id", "p.title", "p.description", "p.category", "p.condition", "p.created_at",
}

// AuctionQuery builds the filtered public listing query.
type AuctionQuery struct {
	*SelectBuilder
}

// NewAuctionQuery starts an auction listing query with the product join in
// place.
func NewAuctionQuery() *AuctionQuery {
	b := Select(AuctionColumns...).
		From("auctions a").
		Join("products p", "p.id = a.product_id")
	return &AuctionQuery{b}
}

// ExcludeDrafts removes unpublished auctions; every public listing does this.
func (q *AuctionQuery) ExcludeDrafts() *AuctionQuery {
	q.Where("a.status", NotEqual, auction.StatusDraft.String())
	return q
}

// WithStatus filters by lifecycle status.
func (q *AuctionQuery) WithStatus(s auction.Status) *AuctionQuery {
	q.WhereEqual("a.status", s.String())
	return q
}

// WithCategory filters by product category.
func (q *AuctionQuery) WithCategory(c auction.Category) *AuctionQuery {
	q.WhereEqual("p.category", c.String())
	return q
}

// WithCondition filters by product condition.
func (q *AuctionQuery) WithCondition(c auction.Condition) *AuctionQuery {
	q.WhereEqual("p.condition", c.String())
	return q
}

// PriceAtLeast keeps auctions whose current price is at least m.
func (q *AuctionQuery) PriceAtLeast(m values.Money) *AuctionQuery {
	q.Where("a.current_price", GreaterThanOrEqual, m)
	return q
}

// PriceAtMost keeps auctions whose current price is at most m.
func (q *AuctionQuery) PriceAtMost(m values.Money) *AuctionQuery {
	q.Where("a.current_price", LessThanOrEqual, m)
	return q
}

// SearchText matches the term against product title or description.
func (q *AuctionQuery) SearchText(term string) *AuctionQuery {
	q.WhereAnyILike(term, "p.title", "p.description")
	return q
}

// SortBy orders by an auction column. Callers whitelist the column name.
func (q *AuctionQuery) SortBy(column string, descending bool) *AuctionQuery {
	dir := Asc
	if descending {
		dir = Desc
	}
	q.OrderBy("a."+column, dir)
	return q
}

// Paginate applies limit and offset.
func (q *AuctionQuery) Paginate(limit, offset int) *AuctionQuery {
	q.Limit(limit)
	if offset > 0 {
		q.Offset(offset)
	}
	return q
}
