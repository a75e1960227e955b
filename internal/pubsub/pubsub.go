// Package pubsub is the in-process topic bus connecting game actors to
// observers. Delivery is best effort: a slow subscriber drops messages
// rather than stalling the publisher.
package pubsub

import (
	"sync"

	"github.com/rs/zerolog"
)

const defaultBuffer = 64

// Message is one published item. Kind names the message type on the wire
// ("game_state", "game_ready", "queue_status"); Payload is the
// JSON-serializable body.
type Message struct {
	Topic   string
	Kind    string
	Payload any
}

// Subscription is one subscriber's feed. Receive from C until it is closed.
type Subscription struct {
	C      <-chan Message
	ch     chan Message
	topics []string
	bus    *Bus
	once   sync.Once
}

// Cancel detaches the subscription and closes its channel.
func (s *Subscription) Cancel() {
	s.once.Do(func() { s.bus.remove(s) })
}

// Bus fans published messages out to topic subscribers.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	log    zerolog.Logger
}

// New returns an empty bus.
func New(log zerolog.Logger) *Bus {
	return &Bus{
		topics: make(map[string]map[*Subscription]struct{}),
		log:    log.With().Str("component", "pubsub").Logger(),
	}
}

// Subscribe registers a buffered subscription on the given topics.
func (b *Bus) Subscribe(topics ...string) *Subscription {
	ch := make(chan Message, defaultBuffer)
	sub := &Subscription{C: ch, ch: ch, topics: topics, bus: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range topics {
		set, ok := b.topics[topic]
		if !ok {
			set = make(map[*Subscription]struct{})
			b.topics[topic] = set
		}
		set[sub] = struct{}{}
	}
	return sub
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range sub.topics {
		if set, ok := b.topics[topic]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.topics, topic)
			}
		}
	}
	close(sub.ch)
}

// Publish delivers msg to every subscriber of msg.Topic and returns the
// number reached. Full subscriber buffers drop the message.
func (b *Bus) Publish(msg Message) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for sub := range b.topics[msg.Topic] {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			b.log.Warn().
				Str("topic", msg.Topic).
				Str("kind", msg.Kind).
				Msg("subscriber buffer full, dropping message")
		}
	}
	return delivered
}
