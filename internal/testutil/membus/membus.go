// Package membus is an in-process implementation of the fan-out bus, used
// by gateway tests and the single-binary dev mode.
package membus

import (
	"context"
	"sync"

	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/bus"
)

const subscriptionBuffer = 16

// Bus delivers published payloads to every live subscription of the topic.
// Semantics match the broker-backed bus: no history, no replay, delivery
// only to subscribers connected at publish time.
type Bus struct {
	mu     sync.Mutex
	topics map[string]map[*subscription]struct{}
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{topics: make(map[string]map[*subscription]struct{})}
}

// Publish fans payload out to current subscribers. A subscriber whose
// buffer is full misses the message rather than blocking the publisher.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.topics[topic]))
	for s := range b.topics[topic] {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.deliver(payload)
	}
	return nil
}

// Subscribe opens a stream on topic.
func (b *Bus) Subscribe(ctx context.Context, topic string) (bus.Subscription, error) {
	s := &subscription{
		bus:   b,
		topic: topic,
		msgs:  make(chan []byte, subscriptionBuffer),
	}

	b.mu.Lock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*subscription]struct{})
	}
	b.topics[topic][s] = struct{}{}
	b.mu.Unlock()

	return s, nil
}

// Subscribers reports the live subscription count on a topic. Tests use it
// to wait for sessions to attach before publishing.
func (b *Bus) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

// Close ends every subscription.
func (b *Bus) Close() error {
	b.mu.Lock()
	all := make([]*subscription, 0)
	for _, subs := range b.topics {
		for s := range subs {
			all = append(all, s)
		}
	}
	b.topics = make(map[string]map[*subscription]struct{})
	b.mu.Unlock()

	for _, s := range all {
		s.close()
	}
	return nil
}

type subscription struct {
	bus   *Bus
	topic string

	mu     sync.Mutex
	msgs   chan []byte
	closed bool
}

func (s *subscription) Messages() <-chan []byte {
	return s.msgs
}

// Close detaches from the bus and closes the message channel. Idempotent.
func (s *subscription) Close() error {
	s.bus.mu.Lock()
	if subs, ok := s.bus.topics[s.topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.bus.topics, s.topic)
		}
	}
	s.bus.mu.Unlock()

	s.close()
	return nil
}

func (s *subscription) deliver(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.msgs <- payload:
	default:
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.msgs)
}
