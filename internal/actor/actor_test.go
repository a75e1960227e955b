package actor

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixplus/shortdeck/internal/eventlog"
	"github.com/sixplus/shortdeck/internal/game"
	"github.com/sixplus/shortdeck/internal/pubsub"
)

func newStore(t *testing.T) *eventlog.SQLiteStore {
	t.Helper()
	store, err := eventlog.OpenSQLite(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

type fixture struct {
	actor *Actor
	store eventlog.Store
	bus   *pubsub.Bus
	done  chan error
}

func startActor(t *testing.T, store eventlog.Store, chips ...int) *fixture {
	t.Helper()

	players := make([]game.Player, len(chips))
	for i, c := range chips {
		players[i] = game.Player{ID: string(rune('a' + i)), Seat: i, Chips: c}
	}

	bus := pubsub.New(zerolog.Nop())
	a, err := New(context.Background(), Config{
		GameID:           "g1",
		Players:          players,
		SmallBlind:       10,
		BigBlind:         20,
		SnapshotInterval: 5,
		Store:            store,
		Bus:              bus,
		Log:              zerolog.Nop(),
		Seed:             42,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &fixture{actor: a, store: store, bus: bus, done: make(chan error, 1)}
	go func() { f.done <- a.Run(ctx) }()
	return f
}

func reqCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestActorServesFilteredState(t *testing.T) {
	f := startActor(t, newStore(t), 1000, 1000)
	ctx := reqCtx(t)

	snap, err := f.actor.State(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.HandNumber)
	assert.True(t, snap.YourTurn, "heads-up button acts first")
	assert.Equal(t, 30, snap.Pot)

	// Spectators see no hole cards at all.
	spec, err := f.actor.State(ctx, "")
	require.NoError(t, err)
	for _, seat := range spec.Players {
		assert.Empty(t, seat.HoleCards)
	}
}

func TestActorRejectsOutOfTurnAction(t *testing.T) {
	f := startActor(t, newStore(t), 1000, 1000)
	ctx := reqCtx(t)

	err := f.actor.Act(ctx, "b", game.Action{Type: game.Check})
	assert.ErrorIs(t, err, game.ErrNotYourTurn)

	err = f.actor.Act(ctx, "zz", game.Action{Type: game.Fold})
	assert.ErrorIs(t, err, game.ErrPlayerNotFound)
}

func TestActorAdvancesStreets(t *testing.T) {
	f := startActor(t, newStore(t), 1000, 1000)
	ctx := reqCtx(t)

	require.NoError(t, f.actor.Act(ctx, "a", game.Action{Type: game.Call}))
	require.NoError(t, f.actor.Act(ctx, "b", game.Action{Type: game.Check}))

	snap, err := f.actor.State(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "flop", snap.Phase)
	assert.Len(t, snap.Community, 3)
	assert.True(t, snap.YourTurn, "big blind leads post-flop heads-up")
}

func TestActorFoldWinStartsNextHand(t *testing.T) {
	f := startActor(t, newStore(t), 1000, 1000)
	ctx := reqCtx(t)

	require.NoError(t, f.actor.Act(ctx, "a", game.Action{Type: game.Fold}))

	snap, err := f.actor.State(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.HandNumber, "next hand deals automatically")

	// Hand 2: button moved to b, blinds reposted.
	var a, b int
	for _, seat := range snap.Players {
		switch seat.Name {
		case "a":
			a = seat.Chips + seat.StreetBet
		case "b":
			b = seat.Chips + seat.StreetBet
		}
	}
	assert.Equal(t, 990, a)
	assert.Equal(t, 1010, b)
}

func TestActorPersistsBeforeApplying(t *testing.T) {
	store := newStore(t)
	f := startActor(t, store, 1000, 1000)
	ctx := reqCtx(t)

	require.NoError(t, f.actor.Act(ctx, "a", game.Action{Type: game.Raise, Amount: 60}))

	events, err := store.Events(ctx, "g1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, eventlog.TypeTournamentCreated, events[0].Type)
	assert.Equal(t, eventlog.TypeHandStarted, events[1].Type)
	assert.Equal(t, eventlog.TypePlayerRaised, events[2].Type)

	// The action event records the pot after the raise settled.
	var pa eventlog.PlayerAction
	require.NoError(t, json.Unmarshal(events[2].Payload, &pa))
	assert.Equal(t, "a", pa.Player)
	assert.Equal(t, 60, pa.Amount)
	assert.Equal(t, 80, pa.Pot)
}

func TestActorSnapshotShowsLivePotAndStacks(t *testing.T) {
	f := startActor(t, newStore(t), 1000, 1000)
	ctx := reqCtx(t)

	// Button raises to 60 on top of the blinds: the snapshot taken between
	// actions must already show the chips in the middle.
	require.NoError(t, f.actor.Act(ctx, "a", game.Action{Type: game.Raise, Amount: 60}))

	snap, err := f.actor.State(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 80, snap.Pot)
	for _, seat := range snap.Players {
		switch seat.Name {
		case "a":
			assert.Equal(t, 940, seat.Chips)
		case "b":
			assert.Equal(t, 980, seat.Chips)
		}
	}

	require.NoError(t, f.actor.Act(ctx, "b", game.Action{Type: game.Call}))

	snap, err = f.actor.State(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "flop", snap.Phase)
	assert.Equal(t, 120, snap.Pot)
}

func TestActorBroadcastsAfterPersist(t *testing.T) {
	store := newStore(t)
	bus := pubsub.New(zerolog.Nop())

	players := []game.Player{{ID: "a", Seat: 0, Chips: 1000}, {ID: "b", Seat: 1, Chips: 1000}}
	a, err := New(context.Background(), Config{
		GameID: "g1", Players: players, SmallBlind: 10, BigBlind: 20,
		SnapshotInterval: 100, Store: store, Bus: bus, Log: zerolog.Nop(), Seed: 42,
	})
	require.NoError(t, err)

	sub := bus.Subscribe("game:g1:b")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// hand_started broadcast.
	msg := <-sub.C
	assert.Equal(t, "game_state", msg.Kind)

	require.NoError(t, a.Act(reqCtx(t), "a", game.Action{Type: game.Call}))
	msg = <-sub.C
	assert.Equal(t, "game_state", msg.Kind)
}

// failingStore passes appends through until armed, then fails them all.
type failingStore struct {
	eventlog.Store
	fail bool
}

func (s *failingStore) Append(ctx context.Context, e eventlog.Event) error {
	if s.fail {
		return errors.New("disk on fire")
	}
	return s.Store.Append(ctx, e)
}

func TestActorRollsBackOnPersistFailure(t *testing.T) {
	store := &failingStore{Store: newStore(t)}
	f := startActor(t, store, 1000, 1000)
	ctx := reqCtx(t)

	store.fail = true
	err := f.actor.Act(ctx, "a", game.Action{Type: game.Call})
	assert.ErrorIs(t, err, ErrPersistFailed)

	// Nothing applied: still hand 1, still a's turn, pot unchanged.
	snap, err := f.actor.State(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.HandNumber)
	assert.True(t, snap.YourTurn)
	assert.Equal(t, 30, snap.Pot)

	// The same action succeeds once the store recovers.
	store.fail = false
	require.NoError(t, f.actor.Act(ctx, "a", game.Action{Type: game.Call}))
}

// dealFailingStore fails only hand_started appends while armed, so actions
// persist but the next deal cannot.
type dealFailingStore struct {
	eventlog.Store
	fail bool
}

func (s *dealFailingStore) Append(ctx context.Context, e eventlog.Event) error {
	if s.fail && e.Type == eventlog.TypeHandStarted {
		return errors.New("disk on fire")
	}
	return s.Store.Append(ctx, e)
}

func TestActorRetriesDealAfterPersistFailure(t *testing.T) {
	store := &dealFailingStore{Store: newStore(t)}
	f := startActor(t, store, 1000, 1000)
	ctx := reqCtx(t)

	// The fold settles hand 1, but hand 2 cannot be dealt while the store is
	// down.
	store.fail = true
	err := f.actor.Act(ctx, "a", game.Action{Type: game.Fold})
	assert.ErrorIs(t, err, ErrPersistFailed)

	// Once the store recovers, the next request deals hand 2 instead of
	// leaving the game stuck between hands.
	store.fail = false
	snap, err := f.actor.State(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.HandNumber)
	assert.NotEmpty(t, snap.ActivePlayer)

	require.NoError(t, f.actor.Act(ctx, snap.ActivePlayer, game.Action{Type: game.Call}))
}

func TestActorBroadcastsGameEndedOnShutdown(t *testing.T) {
	store := newStore(t)
	bus := pubsub.New(zerolog.Nop())

	players := []game.Player{{ID: "a", Seat: 0, Chips: 1000}, {ID: "b", Seat: 1, Chips: 1000}}
	a, err := New(context.Background(), Config{
		GameID: "g1", Players: players, SmallBlind: 10, BigBlind: 20,
		SnapshotInterval: 100, Store: store, Bus: bus, Log: zerolog.Nop(), Seed: 42,
	})
	require.NoError(t, err)

	sub := bus.Subscribe("game:g1:a")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	msg := <-sub.C
	assert.Equal(t, "game_state", msg.Kind)

	// Cancellation sends a final notice so clients know the game stopped
	// rather than going silent.
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	msg = <-sub.C
	assert.Equal(t, "game_ended", msg.Kind)
}

func TestActorPlaysToTournamentEnd(t *testing.T) {
	store := newStore(t)
	f := startActor(t, store, 1000, 1000)

	// Shove every hand until someone busts.
	for hand := 0; hand < 200; hand++ {
		select {
		case <-f.actor.Ended():
			winner := f.actor.Winner()
			require.NotEmpty(t, winner)

			events, err := store.Events(context.Background(), "g1", 0)
			require.NoError(t, err)
			last := events[len(events)-1]
			assert.Equal(t, eventlog.TypeTournamentEnded, last.Type)

			require.NoError(t, <-f.done)
			return
		default:
		}

		ctx := reqCtx(t)
		snap, err := f.actor.State(ctx, "")
		if err != nil {
			continue
		}
		if snap.ActivePlayer == "" {
			continue
		}
		player := snap.ActivePlayer
		if err := f.actor.Act(ctx, player, game.Action{Type: game.AllIn}); err != nil {
			// Calling the shove instead when all-in is not offered.
			require.NoError(t, f.actor.Act(ctx, player, game.Action{Type: game.Call}))
		}
	}
	t.Fatal("tournament did not finish")
}

func TestActorRecoversAfterCrash(t *testing.T) {
	store := newStore(t)

	players := []game.Player{{ID: "a", Seat: 0, Chips: 1000}, {ID: "b", Seat: 1, Chips: 1000}}
	cfg := Config{
		GameID: "g1", Players: players, SmallBlind: 10, BigBlind: 20,
		SnapshotInterval: 100, Store: store, Log: zerolog.Nop(), Seed: 42,
	}

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.NoError(t, a.Act(reqCtx(t), "a", game.Action{Type: game.Raise, Amount: 60}))
	before, err := a.State(reqCtx(t), "a")
	require.NoError(t, err)

	// Crash mid-hand.
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// Rebuild from the log and resume.
	res, err := eventlog.Recover(context.Background(), store, "g1")
	require.NoError(t, err)
	resumed := Resume(cfg, res)

	ctx2, cancel2 := context.WithCancel(context.Background())
	t.Cleanup(cancel2)
	go resumed.Run(ctx2)

	after, err := resumed.State(reqCtx(t), "a")
	require.NoError(t, err)

	assert.Equal(t, before.HandNumber, after.HandNumber)
	assert.Equal(t, before.Pot, after.Pot)
	assert.Equal(t, before.ActivePlayer, after.ActivePlayer)
	assert.Equal(t, before.Players, after.Players)

	// The hand is still playable after recovery.
	require.NoError(t, resumed.Act(reqCtx(t), "b", game.Action{Type: game.Call}))
}
