package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/config"
	"github.com/bidwire/auction-exchange-backend/internal/service/closer"
)

const (
	dialTimeout = 5 * time.Second

	// TaskNotifyWinner names the job for the delivery worker that owns the
	// actual email/push channel.
	TaskNotifyWinner = "notify_winner"
)

// job is the envelope the delivery workers consume: a named task with a
// unique id and keyword arguments, one JSON document per list element.
type job struct {
	ID         string                    `json:"id"`
	Task       string                    `json:"task"`
	Kwargs     closer.WinnerNotification `json:"kwargs"`
	EnqueuedAt time.Time                 `json:"enqueued_at"`
}

// QueueNotifier implements closer.Notifier by pushing job envelopes onto a
// Redis list. Workers pop with BRPOP, so LPUSH keeps FIFO order.
type QueueNotifier struct {
	rdb    *redis.Client
	queue  string
	logger *zap.Logger
}

// NewQueueNotifier connects to the broker and verifies the connection.
func NewQueueNotifier(cfg *config.BusConfig, queue string, logger *zap.Logger) (*QueueNotifier, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing queue url: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to queue broker: %w", err)
	}

	logger.Info("notification queue connected",
		zap.String("addr", opts.Addr),
		zap.String("queue", queue))

	return &QueueNotifier{rdb: rdb, queue: queue, logger: logger}, nil
}

// NotifyWinner enqueues one winner job. The push either lands whole or
// fails whole; the caller owns retries.
func (n *QueueNotifier) NotifyWinner(ctx context.Context, wn closer.WinnerNotification) error {
	payload, err := json.Marshal(job{
		ID:         uuid.New().String(),
		Task:       TaskNotifyWinner,
		Kwargs:     wn,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding winner job: %w", err)
	}

	if err := n.rdb.LPush(ctx, n.queue, payload).Err(); err != nil {
		return fmt.Errorf("enqueueing winner job for auction %s: %w", wn.AuctionID, err)
	}

	n.logger.Debug("winner job enqueued",
		zap.String("auction_id", wn.AuctionID.String()),
		zap.String("winner_id", wn.WinnerID.String()))
	return nil
}

// Ping reports broker reachability for readiness checks.
func (n *QueueNotifier) Ping(ctx context.Context) error {
	return n.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (n *QueueNotifier) Close() error {
	return n.rdb.Close()
}
