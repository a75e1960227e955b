package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/sixplus/shortdeck/internal/deck"
	"github.com/sixplus/shortdeck/internal/game"
)

// ErrReplayDiverged is returned when a stream cannot be applied cleanly,
// meaning the log and the reducer disagree about the game's history.
var ErrReplayDiverged = errors.New("eventlog: replay diverged from stream")

// ReplayResult is the state rebuilt from a stream.
type ReplayResult struct {
	State *game.GameState
	// Round is the live betting round awaiting an action, nil between hands
	// or after the tournament ended.
	Round   *game.BettingRound
	LastSeq uint64
	Ended   bool
	Winner  string
}

// Replay folds a complete stream into game state. The first event must be
// tournament_created.
func Replay(events []Event) (*ReplayResult, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: empty stream", ErrReplayDiverged)
	}
	if events[0].Type != TypeTournamentCreated {
		return nil, fmt.Errorf("%w: stream starts with %s", ErrReplayDiverged, events[0].Type)
	}

	var created TournamentCreated
	if err := json.Unmarshal(events[0].Payload, &created); err != nil {
		return nil, fmt.Errorf("decode tournament_created: %w", err)
	}

	players := make([]game.Player, len(created.Players))
	for i, sp := range created.Players {
		players[i] = game.Player{ID: sp.Name, Seat: sp.Seat, Chips: sp.Chips}
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Seat < players[j].Seat })

	result := &ReplayResult{
		State:   game.NewGameState(players, created.SmallBlind, created.BigBlind),
		LastSeq: events[0].Seq,
	}
	return replayInto(result, events[1:])
}

// ReplayFrom resumes from a decoded snapshot and applies the events after it.
func ReplayFrom(gs *game.GameState, round *game.BettingRound, snapshotSeq uint64, events []Event) (*ReplayResult, error) {
	result := &ReplayResult{State: gs, Round: round, LastSeq: snapshotSeq}
	return replayInto(result, events)
}

func replayInto(result *ReplayResult, events []Event) (*ReplayResult, error) {
	for _, e := range events {
		if e.Seq != result.LastSeq+1 {
			return nil, fmt.Errorf("%w: seq jumps %d -> %d", ErrReplayDiverged, result.LastSeq, e.Seq)
		}
		if err := applyEvent(result, e); err != nil {
			return nil, err
		}
		result.LastSeq = e.Seq
	}
	return result, nil
}

func applyEvent(result *ReplayResult, e Event) error {
	switch e.Type {
	case TypeTournamentCreated:
		return fmt.Errorf("%w: duplicate tournament_created at seq %d", ErrReplayDiverged, e.Seq)

	case TypeHandStarted:
		var started HandStarted
		if err := json.Unmarshal(e.Payload, &started); err != nil {
			return fmt.Errorf("decode hand_started: %w", err)
		}
		cards := make([]deck.Card, len(started.Deck))
		for i, s := range started.Deck {
			card, err := deck.ParseCard(s)
			if err != nil {
				return fmt.Errorf("hand_started deck: %w", err)
			}
			cards[i] = card
		}
		round, err := result.State.StartHandWithDeck(deck.NewOrdered(cards))
		if err != nil {
			return fmt.Errorf("%w: starting hand at seq %d: %v", ErrReplayDiverged, e.Seq, err)
		}
		if result.State.HandNumber != started.HandNumber {
			return fmt.Errorf("%w: hand number %d, stream says %d", ErrReplayDiverged, result.State.HandNumber, started.HandNumber)
		}
		// Blinds can put everyone all-in; such hands run out without any
		// action events.
		if round.Complete() {
			round, outcome, err := game.Advance(result.State, round)
			if err != nil {
				return fmt.Errorf("%w: running out hand at seq %d: %v", ErrReplayDiverged, e.Seq, err)
			}
			if outcome != nil {
				result.Round = nil
				return nil
			}
			result.Round = &round
			return nil
		}
		result.Round = &round
		return nil

	case TypePlayerFolded, TypePlayerChecked, TypePlayerCalled, TypePlayerRaised, TypePlayerAllIn:
		if result.Round == nil {
			return fmt.Errorf("%w: %s at seq %d with no live hand", ErrReplayDiverged, e.Type, e.Seq)
		}
		var pa PlayerAction
		if err := json.Unmarshal(e.Payload, &pa); err != nil {
			return fmt.Errorf("decode %s: %w", e.Type, err)
		}

		action := actionFor(e.Type, pa)
		next, err := result.Round.Apply(pa.Player, action)
		if err != nil {
			return fmt.Errorf("%w: applying %s for %s at seq %d: %v", ErrReplayDiverged, e.Type, pa.Player, e.Seq, err)
		}
		// Streams written before the pot field was recorded carry zero; a pot
		// can never be zero after an action, so zero means "not recorded".
		if pa.Pot != 0 && pa.Pot != next.Pot {
			return fmt.Errorf("%w: pot %d after seq %d, stream says %d", ErrReplayDiverged, next.Pot, e.Seq, pa.Pot)
		}

		next, outcome, err := game.Advance(result.State, next)
		if err != nil {
			return fmt.Errorf("%w: advancing after seq %d: %v", ErrReplayDiverged, e.Seq, err)
		}
		if outcome != nil {
			result.Round = nil
		} else {
			result.Round = &next
		}
		return nil

	case TypeTournamentEnded:
		var ended TournamentEnded
		if err := json.Unmarshal(e.Payload, &ended); err != nil {
			return fmt.Errorf("decode tournament_ended: %w", err)
		}
		result.Ended = true
		result.Winner = ended.Winner
		result.Round = nil
		return nil

	default:
		return fmt.Errorf("%w: unknown event type %q at seq %d", ErrReplayDiverged, e.Type, e.Seq)
	}
}

func actionFor(typ Type, pa PlayerAction) game.Action {
	switch typ {
	case TypePlayerFolded:
		return game.Action{Type: game.Fold}
	case TypePlayerChecked:
		return game.Action{Type: game.Check}
	case TypePlayerCalled:
		return game.Action{Type: game.Call}
	case TypePlayerRaised:
		return game.Action{Type: game.Raise, Amount: pa.Amount}
	default:
		return game.Action{Type: game.AllIn}
	}
}

// Recover rebuilds a game from the store: latest valid snapshot plus the
// events after it, or the whole stream when no usable snapshot exists.
func Recover(ctx context.Context, store Store, gameID string) (*ReplayResult, error) {
	snap, err := store.LatestSnapshot(ctx, gameID)
	switch {
	case err == nil:
		gs, round, decErr := DecodeState(snap.State)
		if decErr != nil {
			return nil, decErr
		}
		events, evErr := store.Events(ctx, gameID, snap.Seq)
		if evErr != nil {
			return nil, evErr
		}
		return ReplayFrom(gs, round, snap.Seq, events)

	case errors.Is(err, ErrNoSnapshot), errors.Is(err, ErrSnapshotCorrupt):
		events, evErr := store.Events(ctx, gameID, 0)
		if evErr != nil {
			return nil, evErr
		}
		return Replay(events)

	default:
		return nil, err
	}
}
