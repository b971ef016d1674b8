package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DedupStore records one-shot dispatch marks with SETNX. The closer uses
// it so a sweep re-run after a partial failure does not notify the same
// winner twice.
type DedupStore struct {
	client *Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewDedupStore creates a mark store. Marks expire after ttl, which bounds
// how far back a sweep replay stays deduplicated.
func NewDedupStore(client *Client, ttl time.Duration, logger *zap.Logger) *DedupStore {
	return &DedupStore{client: client, ttl: ttl, logger: logger}
}

// MarkNotified claims the dispatch slot for an auction. Returns true when
// this call set the mark and false when an earlier run already had.
func (d *DedupStore) MarkNotified(ctx context.Context, auctionID uuid.UUID) (bool, error) {
	key := NotifiedPrefix + auctionID.String()

	set, err := d.client.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		d.logger.Error("dedup mark failed",
			zap.String("auction_id", auctionID.String()),
			zap.Error(err))
		return false, fmt.Errorf("marking auction %s notified: %w", auctionID, err)
	}
	return set, nil
}
