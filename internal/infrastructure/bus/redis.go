package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/config"
)

const (
	dialTimeout = 5 * time.Second

	// subscriptionBuffer absorbs short bursts between the Redis reader and
	// the consumer; sessions carry their own outbound buffering on top.
	subscriptionBuffer = 16
)

// RedisBus implements Bus on Redis PUBLISH/SUBSCRIBE.
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBus connects to the broker named by the bus URL and verifies the
// connection before returning.
func NewRedisBus(cfg *config.BusConfig, logger *zap.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing bus url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to bus: %w", err)
	}

	logger.Info("Redis bus connected",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB))

	return &RedisBus{client: client, logger: logger}, nil
}

// Publish sends payload to topic. Failures are returned, not retried;
// callers decide whether a missed broadcast matters.
func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Subscribe opens a topic stream. The subscription is confirmed with the
// broker before returning, so messages published afterwards are delivered.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		msgs:   make(chan []byte, subscriptionBuffer),
		done:   make(chan struct{}),
	}
	go sub.pump()
	return sub, nil
}

// Ping reports broker reachability for readiness checks.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases the client and every subscription it carries.
func (b *RedisBus) Close() error {
	b.logger.Info("Redis bus closing")
	return b.client.Close()
}

type redisSubscription struct {
	pubsub   *redis.PubSub
	msgs     chan []byte
	done     chan struct{}
	once     sync.Once
	closeErr error
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.msgs
}

// Close is idempotent; repeated calls return the first result.
func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.closeErr = s.pubsub.Close()
	})
	return s.closeErr
}

// pump moves broker messages onto the subscriber channel. Closing the
// subscription ends the underlying channel, which ends the loop; the done
// guard keeps a stalled consumer from pinning the goroutine.
func (s *redisSubscription) pump() {
	defer close(s.msgs)
	for msg := range s.pubsub.Channel() {
		select {
		case s.msgs <- []byte(msg.Payload):
		case <-s.done:
			return
		}
	}
}
