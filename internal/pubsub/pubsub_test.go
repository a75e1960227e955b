package pubsub

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() *Bus {
	return New(zerolog.Nop())
}

func TestPublishReachesTopicSubscribers(t *testing.T) {
	bus := newTestBus()
	sub := bus.Subscribe("game:1")
	other := bus.Subscribe("game:2")

	n := bus.Publish(Message{Topic: "game:1", Kind: "game_state", Payload: "snap"})
	assert.Equal(t, 1, n)

	msg := <-sub.C
	assert.Equal(t, "game_state", msg.Kind)
	assert.Equal(t, "snap", msg.Payload)

	select {
	case <-other.C:
		t.Fatal("message leaked to unrelated topic")
	default:
	}
}

func TestSubscribeMultipleTopics(t *testing.T) {
	bus := newTestBus()
	sub := bus.Subscribe("game:1", "player:alice")

	bus.Publish(Message{Topic: "game:1", Kind: "a"})
	bus.Publish(Message{Topic: "player:alice", Kind: "b"})

	assert.Equal(t, "a", (<-sub.C).Kind)
	assert.Equal(t, "b", (<-sub.C).Kind)
}

func TestCancelClosesChannel(t *testing.T) {
	bus := newTestBus()
	sub := bus.Subscribe("game:1")
	sub.Cancel()
	sub.Cancel() // idempotent

	_, open := <-sub.C
	assert.False(t, open)

	n := bus.Publish(Message{Topic: "game:1", Kind: "x"})
	assert.Zero(t, n)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := newTestBus()
	sub := bus.Subscribe("game:1")

	for i := 0; i < defaultBuffer+10; i++ {
		bus.Publish(Message{Topic: "game:1", Kind: "tick", Payload: i})
	}

	// The buffer holds the first defaultBuffer messages; the rest dropped.
	count := 0
	for {
		select {
		case <-sub.C:
			count++
			continue
		default:
		}
		break
	}
	require.Equal(t, defaultBuffer, count)
}

func TestPublishWithNoSubscribers(t *testing.T) {
	bus := newTestBus()
	assert.Zero(t, bus.Publish(Message{Topic: "nobody", Kind: "x"}))
}
