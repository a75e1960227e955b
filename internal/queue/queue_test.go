package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixplus/shortdeck/internal/eventlog"
	"github.com/sixplus/shortdeck/internal/metrics"
	"github.com/sixplus/shortdeck/internal/pubsub"
	"github.com/sixplus/shortdeck/internal/supervisor"
	"github.com/sixplus/shortdeck/internal/token"
)

type fixture struct {
	queue   *Queue
	sup     *supervisor.Supervisor
	bus     *pubsub.Bus
	signer  *token.Signer
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, store eventlog.Store, playersPerGame int) *fixture {
	t.Helper()

	bus := pubsub.New(zerolog.Nop())
	m := metrics.New()
	sup := supervisor.New(supervisor.Options{
		Store: store,
		Bus:   bus,
		Log:   zerolog.Nop(),
		Grace: time.Second,
	})
	t.Cleanup(sup.Shutdown)

	signer := token.NewSigner("test-secret")
	q := New(Options{
		Supervisor:     sup,
		Signer:         signer,
		Bus:            bus,
		Metrics:        m,
		Log:            zerolog.Nop(),
		PlayersPerGame: playersPerGame,
		StartingChips:  1000,
		SmallBlind:     10,
		BigBlind:       20,
	})
	return &fixture{queue: q, sup: sup, bus: bus, signer: signer, metrics: m}
}

func openStore(t *testing.T) *eventlog.SQLiteStore {
	t.Helper()
	store, err := eventlog.OpenSQLite(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestJoinOrdersWaitersFIFO(t *testing.T) {
	f := newFixture(t, openStore(t), 4)
	ctx := context.Background()

	require.NoError(t, f.queue.Join(ctx, "a"))
	require.NoError(t, f.queue.Join(ctx, "b"))
	require.NoError(t, f.queue.Join(ctx, "c"))

	waiters := f.queue.Status()
	require.Len(t, waiters, 3)
	assert.Equal(t, "a", waiters[0].Name)
	assert.Equal(t, "b", waiters[1].Name)
	assert.Equal(t, "c", waiters[2].Name)
	assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.QueueDepth))
}

func TestJoinRejectsDuplicatesAndEmptyNames(t *testing.T) {
	f := newFixture(t, openStore(t), 4)
	ctx := context.Background()

	require.NoError(t, f.queue.Join(ctx, "a"))
	assert.ErrorIs(t, f.queue.Join(ctx, "a"), ErrAlreadyQueued)
	assert.ErrorIs(t, f.queue.Join(ctx, ""), ErrEmptyName)
}

func TestLeaveRemovesWaiter(t *testing.T) {
	f := newFixture(t, openStore(t), 4)
	ctx := context.Background()

	require.NoError(t, f.queue.Join(ctx, "a"))
	require.NoError(t, f.queue.Join(ctx, "b"))
	require.NoError(t, f.queue.Leave("a"))

	waiters := f.queue.Status()
	require.Len(t, waiters, 1)
	assert.Equal(t, "b", waiters[0].Name)

	assert.ErrorIs(t, f.queue.Leave("a"), ErrNotQueued)
}

func TestQueueSeatsGameWhenFull(t *testing.T) {
	f := newFixture(t, openStore(t), 2)
	ctx := context.Background()

	subA := f.bus.Subscribe("player:a")
	subB := f.bus.Subscribe("player:b")

	require.NoError(t, f.queue.Join(ctx, "a"))
	require.NoError(t, f.queue.Join(ctx, "b"))

	assert.Empty(t, f.queue.Status(), "seated players leave the queue")

	msgA := <-subA.C
	require.Equal(t, "game_ready", msgA.Kind)
	ready := msgA.Payload.(GameReady)

	id, err := f.signer.Verify(ready.Token)
	require.NoError(t, err)
	assert.Equal(t, ready.GameID, id.GameID)
	assert.Equal(t, "a", id.PlayerName)

	msgB := <-subB.C
	require.Equal(t, "game_ready", msgB.Kind)
	readyB := msgB.Payload.(GameReady)
	assert.Equal(t, ready.GameID, readyB.GameID)

	_, err = f.sup.Get(ready.GameID)
	assert.NoError(t, err, "supervisor runs the new game")
}

func TestQueueSeatsFrontOfQueueOnly(t *testing.T) {
	f := newFixture(t, openStore(t), 2)
	ctx := context.Background()

	require.NoError(t, f.queue.Join(ctx, "a"))
	sub := f.bus.Subscribe("player:c")
	require.NoError(t, f.queue.Join(ctx, "b"))
	require.NoError(t, f.queue.Join(ctx, "c"))

	waiters := f.queue.Status()
	require.Len(t, waiters, 1)
	assert.Equal(t, "c", waiters[0].Name)

	select {
	case msg := <-sub.C:
		if msg.Kind == "game_ready" {
			t.Fatal("c should still be waiting")
		}
	default:
	}
}

func TestQueuePublishesStatusUpdates(t *testing.T) {
	f := newFixture(t, openStore(t), 4)
	ctx := context.Background()

	sub := f.bus.Subscribe("game_queue")

	require.NoError(t, f.queue.Join(ctx, "a"))
	msg := <-sub.C
	require.Equal(t, "queue_status", msg.Kind)
	status := msg.Payload.(StatusUpdate)
	assert.Equal(t, 1, status.Depth)
	assert.Equal(t, []string{"a"}, status.Waiters)

	require.NoError(t, f.queue.Leave("a"))
	msg = <-sub.C
	status = msg.Payload.(StatusUpdate)
	assert.Equal(t, 0, status.Depth)
}

// brokenStore fails every append so game creation cannot persist
// tournament_created.
type brokenStore struct {
	eventlog.Store
}

func (s *brokenStore) Append(ctx context.Context, e eventlog.Event) error {
	return errors.New("disk on fire")
}

func TestWaitersKeptWhenGameCreationFails(t *testing.T) {
	f := newFixture(t, &brokenStore{Store: openStore(t)}, 2)
	ctx := context.Background()

	require.NoError(t, f.queue.Join(ctx, "a"))
	require.NoError(t, f.queue.Join(ctx, "b"))

	waiters := f.queue.Status()
	require.Len(t, waiters, 2)
	assert.Equal(t, "a", waiters[0].Name)
	assert.Equal(t, "b", waiters[1].Name)
}
