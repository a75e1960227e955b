// Package actor runs one game as a single-writer goroutine. All reads and
// writes of a game's state flow through the actor's inbox, so the game never
// needs a lock and every mutation is persisted before it is visible.
package actor

import (
	"context"
	"errors"
	"fmt"
	rand "math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/sixplus/shortdeck/internal/deck"
	"github.com/sixplus/shortdeck/internal/eventlog"
	"github.com/sixplus/shortdeck/internal/game"
	"github.com/sixplus/shortdeck/internal/metrics"
	"github.com/sixplus/shortdeck/internal/pubsub"
	"github.com/sixplus/shortdeck/internal/randutil"
	"github.com/sixplus/shortdeck/internal/view"
)

// ErrPersistFailed is returned when an action was legal but could not be
// written to the event log. The game state is unchanged and the player may
// retry.
var ErrPersistFailed = errors.New("persist_failed")

// Config wires an actor to its collaborators.
type Config struct {
	GameID     string
	Players    []game.Player
	SmallBlind int
	BigBlind   int

	// SnapshotInterval is the number of events between state snapshots.
	SnapshotInterval int

	Store   eventlog.Store
	Bus     *pubsub.Bus
	Metrics *metrics.Metrics
	Log     zerolog.Logger

	// Seed pins the deck shuffles for tests; 0 seeds from the clock.
	Seed int64
}

// Actor owns one game. Interact through State and Act; Run must be running
// for either to respond.
type Actor struct {
	cfg   Config
	log   zerolog.Logger
	rng   *rand.Rand
	inbox chan request

	// Owned exclusively by the Run goroutine.
	gs      *game.GameState
	round   *game.BettingRound
	seq     uint64
	ended   bool
	winner  string
	endedCh chan struct{}
}

type request interface{ isRequest() }

type stateReq struct {
	recipient string
	reply     chan view.Snapshot
}

type actionReq struct {
	player string
	action game.Action
	reply  chan error
}

func (stateReq) isRequest()  {}
func (actionReq) isRequest() {}

// New creates the actor for a brand-new game and persists its
// tournament_created event.
func New(ctx context.Context, cfg Config) (*Actor, error) {
	a := build(cfg)
	a.gs = game.NewGameState(cfg.Players, cfg.SmallBlind, cfg.BigBlind)

	seated := make([]eventlog.SeatedPlayer, len(cfg.Players))
	for i, p := range cfg.Players {
		seated[i] = eventlog.SeatedPlayer{Name: p.ID, Seat: p.Seat, Chips: p.Chips}
	}
	created := eventlog.TournamentCreated{
		Players:    seated,
		SmallBlind: cfg.SmallBlind,
		BigBlind:   cfg.BigBlind,
	}
	if err := a.append(ctx, eventlog.TypeTournamentCreated, created); err != nil {
		return nil, err
	}
	return a, nil
}

// Resume rebuilds the actor from a replayed event stream after a crash.
func Resume(cfg Config, res *eventlog.ReplayResult) *Actor {
	a := build(cfg)
	a.gs = res.State
	a.round = res.Round
	a.seq = res.LastSeq
	a.ended = res.Ended
	a.winner = res.Winner
	if a.ended {
		close(a.endedCh)
	}
	return a
}

func build(cfg Config) *Actor {
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &Actor{
		cfg:     cfg,
		log:     cfg.Log.With().Str("component", "actor").Str("game_id", cfg.GameID).Logger(),
		rng:     randutil.New(cfg.Seed),
		inbox:   make(chan request, 16),
		endedCh: make(chan struct{}),
	}
}

// Ended is closed once the tournament has a winner.
func (a *Actor) Ended() <-chan struct{} { return a.endedCh }

// Winner returns the tournament winner; empty until Ended is closed.
func (a *Actor) Winner() string { return a.winner }

// State returns the filtered snapshot for one recipient. An empty recipient
// gets the spectator view with all cards hidden.
func (a *Actor) State(ctx context.Context, recipient string) (view.Snapshot, error) {
	req := stateReq{recipient: recipient, reply: make(chan view.Snapshot, 1)}
	select {
	case a.inbox <- req:
	case <-ctx.Done():
		return view.Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-req.reply:
		return snap, nil
	case <-ctx.Done():
		return view.Snapshot{}, ctx.Err()
	}
}

// Act submits one player action and waits for the authoritative result.
func (a *Actor) Act(ctx context.Context, player string, action game.Action) error {
	req := actionReq{player: player, action: action, reply: make(chan error, 1)}
	select {
	case a.inbox <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the single-writer loop. It starts the first hand (or the next one
// after a between-hands crash), then serves the inbox until the tournament
// ends or ctx is cancelled.
func (a *Actor) Run(ctx context.Context) error {
	a.log.Info().Int("players", len(a.gs.Players)).Msg("game actor starting")

	if err := a.ensureHand(ctx); err != nil {
		a.log.Error().Err(err).Msg("hand start failed, will retry")
	}
	if a.ended {
		a.log.Info().Str("winner", a.winner).Msg("tournament complete")
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			a.log.Info().Msg("game actor stopping")
			a.broadcast("game_ended", nil)
			return ctx.Err()
		case req := <-a.inbox:
			// A failed deal leaves the game between hands; retry before
			// serving so the game resumes once the store recovers.
			if err := a.ensureHand(ctx); err != nil {
				a.log.Error().Err(err).Msg("hand start retry failed")
			}
			switch r := req.(type) {
			case stateReq:
				r.reply <- a.buildView(r.recipient, nil)
			case actionReq:
				r.reply <- a.handleAction(ctx, r.player, r.action)
			}
			if a.ended {
				a.log.Info().Str("winner", a.winner).Msg("tournament complete")
				return nil
			}
		}
	}
}

// ensureHand deals the next hand when none is live.
func (a *Actor) ensureHand(ctx context.Context) error {
	if a.ended || a.round != nil {
		return nil
	}
	return a.startHand(ctx)
}

// startHand shuffles, persists hand_started with the full deck order, and
// only then commits the dealt state. A persist failure leaves the previous
// state in place.
func (a *Actor) startHand(ctx context.Context) error {
	d := deck.New(a.rng)
	order := make([]string, 0, d.Remaining())
	for _, c := range d.Cards() {
		order = append(order, c.String())
	}

	next := a.gs.Clone()
	round, err := next.StartHandWithDeck(d)
	if errors.Is(err, game.ErrTournamentComplete) {
		return a.endTournament(ctx, next)
	}
	if err != nil {
		return err
	}

	started := eventlog.HandStarted{HandNumber: next.HandNumber, Deck: order}
	if err := a.append(ctx, eventlog.TypeHandStarted, started); err != nil {
		return err
	}

	a.gs = next
	a.round = &round
	a.log.Debug().Int("hand", next.HandNumber).Int("button", next.ButtonSeat).Msg("hand started")
	a.broadcast("game_state", nil)
	a.maybeSnapshot(ctx)

	// Posting the blinds can leave nobody able to act; the hand runs out
	// immediately.
	if round.Complete() {
		return a.advanceAfter(ctx, round)
	}
	return nil
}

// advanceAfter drives the hand forward from a just-applied round, settling
// outcomes and dealing the next hand when this one ends.
func (a *Actor) advanceAfter(ctx context.Context, next game.BettingRound) error {
	final, outcome, err := game.Advance(a.gs, next)
	if err != nil {
		return err
	}

	if outcome == nil {
		a.round = &final
		a.broadcast("game_state", nil)
		a.maybeSnapshot(ctx)
		return nil
	}

	// Hand over: announce with the round as betting ended, so street bets
	// and all-in flags reflect the action that closed it.
	a.round = &next
	if a.cfg.Metrics != nil {
		a.cfg.Metrics.HandsPlayed.Inc()
	}
	a.log.Info().
		Int("hand", a.gs.HandNumber).
		Bool("fold_win", outcome.FoldWin).
		Msg("hand complete")
	a.broadcast("game_state", outcome)
	a.maybeSnapshot(ctx)

	a.round = nil
	return a.startHand(ctx)
}

// handleAction validates, persists, applies, and broadcasts one action. The
// order matters: nothing is applied or announced unless the event is in the
// log first.
func (a *Actor) handleAction(ctx context.Context, player string, action game.Action) error {
	if a.ended || a.round == nil {
		return game.ErrNoActiveBettingRound
	}

	next, err := a.round.Apply(player, action)
	if err != nil {
		return err
	}

	evType := eventTypeFor(action.Type)
	payload := eventlog.PlayerAction{Player: player, Pot: next.Pot}
	switch action.Type {
	case game.Raise:
		payload.Amount = action.Amount
	case game.AllIn:
		payload.Amount = next.TotalBets[player]
	}
	if err := a.append(ctx, evType, payload); err != nil {
		return err
	}

	if a.cfg.Metrics != nil {
		a.cfg.Metrics.ActionsTotal.WithLabelValues(action.Type.String()).Inc()
	}
	return a.advanceAfter(ctx, next)
}

// endTournament records the winner and closes the game.
func (a *Actor) endTournament(ctx context.Context, final *game.GameState) error {
	winner := ""
	if len(final.Players) == 1 {
		winner = final.Players[0].ID
	}
	if err := a.append(ctx, eventlog.TypeTournamentEnded, eventlog.TournamentEnded{Winner: winner}); err != nil {
		return err
	}

	a.gs = final
	a.round = nil
	a.ended = true
	a.winner = winner
	close(a.endedCh)

	if a.cfg.Bus != nil {
		for _, p := range a.gs.Players {
			a.cfg.Bus.Publish(pubsub.Message{
				Topic:   playerTopic(a.cfg.GameID, p.ID),
				Kind:    "tournament_ended",
				Payload: map[string]string{"game_id": a.cfg.GameID, "winner": winner},
			})
		}
		a.cfg.Bus.Publish(pubsub.Message{
			Topic:   "game:" + a.cfg.GameID,
			Kind:    "tournament_ended",
			Payload: map[string]string{"game_id": a.cfg.GameID, "winner": winner},
		})
	}
	return nil
}

// append persists one event at the next sequence number. On success the
// actor's sequence advances; on failure the caller must not apply the
// corresponding state change.
func (a *Actor) append(ctx context.Context, typ eventlog.Type, payload any) error {
	e, err := eventlog.NewEvent(a.cfg.GameID, a.seq+1, typ, payload)
	if err != nil {
		return err
	}
	if err := a.cfg.Store.Append(ctx, e); err != nil {
		if a.cfg.Metrics != nil {
			a.cfg.Metrics.PersistErrors.Inc()
		}
		a.log.Error().Err(err).Str("type", string(typ)).Uint64("seq", a.seq+1).Msg("event append failed, rolling back")
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	a.seq++
	if a.cfg.Metrics != nil {
		a.cfg.Metrics.EventsAppended.Inc()
	}
	return nil
}

// maybeSnapshot stores a snapshot every SnapshotInterval events. Snapshot
// failures are logged, not fatal: the stream alone is enough to recover.
func (a *Actor) maybeSnapshot(ctx context.Context) {
	if a.cfg.SnapshotInterval <= 0 || a.seq%uint64(a.cfg.SnapshotInterval) != 0 {
		return
	}
	snap, err := eventlog.NewSnapshot(a.cfg.GameID, a.seq, a.gs, a.round)
	if err != nil {
		a.log.Warn().Err(err).Msg("snapshot encode failed")
		return
	}
	if err := a.cfg.Store.SaveSnapshot(ctx, snap); err != nil {
		a.log.Warn().Err(err).Uint64("seq", a.seq).Msg("snapshot save failed")
	}
}

func (a *Actor) buildView(recipient string, outcome *game.HandOutcome) view.Snapshot {
	return view.Build(a.cfg.GameID, a.gs, a.round, outcome, recipient)
}

// broadcast publishes a filtered snapshot on every seated player's
// game:{game_id}:{player_id} topic and a spectator snapshot on the game
// topic.
func (a *Actor) broadcast(kind string, outcome *game.HandOutcome) {
	if a.cfg.Bus == nil {
		return
	}
	for _, p := range a.gs.Players {
		a.cfg.Bus.Publish(pubsub.Message{
			Topic:   playerTopic(a.cfg.GameID, p.ID),
			Kind:    kind,
			Payload: a.buildView(p.ID, outcome),
		})
	}
	a.cfg.Bus.Publish(pubsub.Message{
		Topic:   "game:" + a.cfg.GameID,
		Kind:    kind,
		Payload: a.buildView("", outcome),
	})
}

// playerTopic names one player's private feed for one game.
func playerTopic(gameID, playerID string) string {
	return "game:" + gameID + ":" + playerID
}

func eventTypeFor(t game.ActionType) eventlog.Type {
	switch t {
	case game.Fold:
		return eventlog.TypePlayerFolded
	case game.Check:
		return eventlog.TypePlayerChecked
	case game.Call:
		return eventlog.TypePlayerCalled
	case game.Raise:
		return eventlog.TypePlayerRaised
	default:
		return eventlog.TypePlayerAllIn
	}
}
