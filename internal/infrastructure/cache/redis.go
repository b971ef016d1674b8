package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/config"
)

const dialTimeout = 5 * time.Second

// Key prefixes shared by the helpers in this package. One Redis instance
// backs the bus, the notification queue and these marks, so every key is
// namespaced.
const (
	RateLimitPrefix = "auction:ratelimit:"
	NotifiedPrefix  = "auction:notified:"
)

// Client wraps the Redis connection used by the operational helpers:
// rate limiting and notification dedup marks.
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewClient connects to Redis and verifies the connection before returning.
func NewClient(cfg *config.BusConfig, logger *zap.Logger) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	logger.Info("redis cache connected",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB))

	return &Client{rdb: rdb, logger: logger}, nil
}

// Ping reports reachability for readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
