package eventlog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sixplus/shortdeck/internal/deck"
	"github.com/sixplus/shortdeck/internal/game"
)

// Snapshot is a point-in-time capture of a game's full state at sequence
// Seq. Replay resumes from here instead of the stream's beginning.
type Snapshot struct {
	GameID    string
	Seq       uint64
	State     []byte
	Hash      string
	CreatedAt time.Time
}

// HashState returns the integrity hash stored alongside a snapshot.
func HashState(state []byte) string {
	sum := sha256.Sum256(state)
	return hex.EncodeToString(sum[:])
}

// NewSnapshot encodes the given state and stamps its hash.
func NewSnapshot(gameID string, seq uint64, gs *game.GameState, round *game.BettingRound) (Snapshot, error) {
	state, err := EncodeState(gs, round)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		GameID:    gameID,
		Seq:       seq,
		State:     state,
		Hash:      HashState(state),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// encodedState is the serialized form of a game mid-flight. The deck is
// captured as the cards still undealt, in order.
type encodedState struct {
	Players    []game.Player      `json:"players"`
	Community  []deck.Card        `json:"community,omitempty"`
	Pot        int                `json:"pot"`
	Phase      game.Phase         `json:"phase"`
	HandNumber int                `json:"hand_number"`
	ButtonSeat int                `json:"button_seat"`
	SmallBlind int                `json:"small_blind"`
	BigBlind   int                `json:"big_blind"`
	DeckCards  []deck.Card        `json:"deck,omitempty"`
	Round      *game.BettingRound `json:"round,omitempty"`
}

// EncodeState serializes the game state and, when a hand is live, its
// current betting round.
func EncodeState(gs *game.GameState, round *game.BettingRound) ([]byte, error) {
	enc := encodedState{
		Players:    gs.Players,
		Community:  gs.Community,
		Pot:        gs.Pot,
		Phase:      gs.Phase,
		HandNumber: gs.HandNumber,
		ButtonSeat: gs.ButtonSeat,
		SmallBlind: gs.SmallBlind,
		BigBlind:   gs.BigBlind,
		Round:      round,
	}
	if gs.Deck != nil {
		enc.DeckCards = gs.Deck.Cards()
	}
	state, err := json.Marshal(enc)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return state, nil
}

// DecodeState is the inverse of EncodeState. The returned round is nil when
// no hand was live.
func DecodeState(state []byte) (*game.GameState, *game.BettingRound, error) {
	var enc encodedState
	if err := json.Unmarshal(state, &enc); err != nil {
		return nil, nil, fmt.Errorf("decode state: %w", err)
	}

	gs := &game.GameState{
		Players:    enc.Players,
		Community:  enc.Community,
		Pot:        enc.Pot,
		Phase:      enc.Phase,
		HandNumber: enc.HandNumber,
		ButtonSeat: enc.ButtonSeat,
		SmallBlind: enc.SmallBlind,
		BigBlind:   enc.BigBlind,
	}
	if enc.DeckCards != nil {
		gs.Deck = deck.NewOrdered(enc.DeckCards)
	}
	return gs, enc.Round, nil
}
