package bus

import (
	"context"

	"github.com/google/uuid"
)

// Bus is the process-to-process fan-out channel for realtime auction events.
// Delivery is at-least-once to subscribers connected at publish time; there
// is no history and no replay.
type Bus interface {
	// Publish sends payload to every current subscriber of topic.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe opens a stream of payloads published to topic.
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Subscription is one subscriber's view of a topic. Messages is closed
// after Close returns or the underlying connection is lost.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// AuctionTopic returns the per-auction event topic.
func AuctionTopic(auctionID uuid.UUID) string {
	return "auction:" + auctionID.String()
}
