// Package eventlog persists every game's history as an append-only event
// stream and rebuilds game state from it after a crash.
package eventlog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type names an event in a game's stream.
type Type string

const (
	TypeTournamentCreated Type = "tournament_created"
	TypeHandStarted       Type = "hand_started"
	TypePlayerFolded      Type = "player_folded"
	TypePlayerChecked     Type = "player_checked"
	TypePlayerCalled      Type = "player_called"
	TypePlayerRaised      Type = "player_raised"
	TypePlayerAllIn       Type = "player_all_in"
	TypeTournamentEnded   Type = "tournament_ended"
)

// Event is one entry in a game's stream. Seq is dense and gapless per game,
// starting at 1.
type Event struct {
	GameID    string
	Seq       uint64
	Type      Type
	Payload   json.RawMessage
	CreatedAt time.Time
}

// SeatedPlayer is one entry of a tournament_created payload.
type SeatedPlayer struct {
	Name  string `json:"name"`
	Seat  int    `json:"seat"`
	Chips int    `json:"chips"`
}

// TournamentCreated records the initial seating and stakes.
type TournamentCreated struct {
	Players    []SeatedPlayer `json:"players"`
	SmallBlind int            `json:"small_blind"`
	BigBlind   int            `json:"big_blind"`
}

// HandStarted records the shuffled deck order so replay deals the exact same
// cards.
type HandStarted struct {
	HandNumber int      `json:"hand_number"`
	Deck       []string `json:"deck"`
}

// PlayerAction is the payload of the player_* action events. Amount is the
// raise total for player_raised and the committed total for player_all_in.
// Pot is the hand pot immediately after the action; replay checks it against
// the rebuilt round to detect divergence.
type PlayerAction struct {
	Player string `json:"player"`
	Amount int    `json:"amount,omitempty"`
	Pot    int    `json:"pot"`
}

// TournamentEnded marks a finished game; streams without it are resumed at
// boot.
type TournamentEnded struct {
	Winner string `json:"winner"`
}

// NewEvent marshals payload into an event at the given sequence number.
func NewEvent(gameID string, seq uint64, typ Type, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Event{
		GameID:    gameID,
		Seq:       seq,
		Type:      typ,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// ActionEventType maps a wire action name to its event type.
func ActionEventType(action string) (Type, bool) {
	switch action {
	case "fold":
		return TypePlayerFolded, true
	case "check":
		return TypePlayerChecked, true
	case "call":
		return TypePlayerCalled, true
	case "raise":
		return TypePlayerRaised, true
	case "allin":
		return TypePlayerAllIn, true
	default:
		return "", false
	}
}
