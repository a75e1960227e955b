// Package view builds the per-recipient game snapshots sent to clients.
// Each recipient sees their own hole cards always, and opponents' cards only
// when a showdown actually reveals them.
package view

import (
	"github.com/sixplus/shortdeck/internal/deck"
	"github.com/sixplus/shortdeck/internal/game"
)

// SeatView is one player's public row in a snapshot. HoleCards is populated
// only for the recipient's own seat or at showdown.
type SeatView struct {
	Name      string   `json:"name"`
	Seat      int      `json:"seat"`
	Chips     int      `json:"chips"`
	Button    bool     `json:"button,omitempty"`
	Folded    bool     `json:"folded,omitempty"`
	AllIn     bool     `json:"all_in,omitempty"`
	StreetBet int      `json:"street_bet,omitempty"`
	HoleCards []string `json:"hole_cards,omitempty"`
}

// PotView is one pot layer in a showdown result.
type PotView struct {
	Amount  int            `json:"amount"`
	Winners []string       `json:"winners"`
	Payouts map[string]int `json:"payouts"`
}

// ShowdownView is sent when a hand reaches showdown. Hands carries the
// revealed holdings with a human-readable description.
type ShowdownView struct {
	Hands   map[string]RevealedHand `json:"hands"`
	Pots    []PotView               `json:"pots"`
	Payouts map[string]int          `json:"payouts"`
}

// RevealedHand is one player's showdown holding.
type RevealedHand struct {
	HoleCards   []string `json:"hole_cards"`
	Best        []string `json:"best"`
	Description string   `json:"description"`
}

// FoldWinView is sent when everyone else folded. No cards are included.
type FoldWinView struct {
	Winner string `json:"winner"`
	Amount int    `json:"amount"`
}

// Snapshot is the full filtered state for one recipient.
type Snapshot struct {
	GameID     string     `json:"game_id"`
	HandNumber int        `json:"hand_number"`
	Phase      string     `json:"phase"`
	You        string     `json:"you"`
	Players    []SeatView `json:"players"`
	Community  []string   `json:"community,omitempty"`
	Pot        int        `json:"pot"`

	CurrentBet   int      `json:"current_bet,omitempty"`
	ToCall       int      `json:"to_call,omitempty"`
	MinimumRaise int      `json:"minimum_raise,omitempty"`
	ActivePlayer string   `json:"active_player,omitempty"`
	YourTurn     bool     `json:"your_turn,omitempty"`
	LegalActions []string `json:"legal_actions,omitempty"`

	Showdown *ShowdownView `json:"showdown,omitempty"`
	FoldWin  *FoldWinView  `json:"fold_win,omitempty"`
}

// Build assembles the snapshot of gs for one recipient. round is nil between
// hands; outcome is non-nil only right after a hand ends.
func Build(gameID string, gs *game.GameState, round *game.BettingRound, outcome *game.HandOutcome, recipient string) Snapshot {
	snap := Snapshot{
		GameID:     gameID,
		HandNumber: gs.HandNumber,
		Phase:      gs.Phase.String(),
		You:        recipient,
		Community:  cardStrings(gs.Community),
		Pot:        gs.Pot,
	}

	reveal := outcome != nil && outcome.Showdown != nil

	for _, p := range gs.Players {
		seat := SeatView{
			Name:   p.ID,
			Seat:   p.Seat,
			Chips:  p.Chips,
			Button: p.Seat == gs.ButtonSeat,
		}
		if round != nil {
			seat.Folded = round.Folded[p.ID]
			seat.AllIn = round.AllIn[p.ID]
			seat.StreetBet = round.PlayerBets[p.ID]
		}
		// Cards stay face down for everyone but the recipient until a real
		// showdown; a fold win reveals nothing.
		if p.ID == recipient || (reveal && !seat.Folded) {
			seat.HoleCards = cardStrings(p.HoleCards)
		}
		snap.Players = append(snap.Players, seat)
	}

	if round != nil && outcome == nil {
		snap.CurrentBet = round.CurrentBet
		snap.MinimumRaise = round.MinimumRaise()
		if active, ok := round.ActivePlayer(); ok {
			snap.ActivePlayer = active.ID
			if active.ID == recipient {
				snap.YourTurn = true
				snap.ToCall = round.AmountToCall(recipient)
				for _, a := range round.LegalActions(recipient) {
					snap.LegalActions = append(snap.LegalActions, a.String())
				}
			}
		}
	}

	if outcome != nil {
		if outcome.FoldWin {
			snap.FoldWin = &FoldWinView{Winner: outcome.Winner, Amount: outcome.Amount}
		} else if outcome.Showdown != nil {
			snap.Showdown = buildShowdown(gs, round, outcome.Showdown)
		}
	}
	return snap
}

func buildShowdown(gs *game.GameState, round *game.BettingRound, result *game.ShowdownResult) *ShowdownView {
	sv := &ShowdownView{
		Hands:   make(map[string]RevealedHand, len(result.Hands)),
		Payouts: result.Payouts,
	}
	for id, hand := range result.Hands {
		revealed := RevealedHand{
			Best:        cardStrings(hand.Cards),
			Description: hand.Describe(),
		}
		if round != nil {
			for _, p := range round.Players {
				if p.ID == id {
					revealed.HoleCards = cardStrings(p.HoleCards)
					break
				}
			}
		}
		sv.Hands[id] = revealed
	}
	for _, pot := range result.Pots {
		sv.Pots = append(sv.Pots, PotView{Amount: pot.Amount, Winners: pot.Winners, Payouts: pot.Payouts})
	}
	return sv
}

func cardStrings(cards []deck.Card) []string {
	if len(cards) == 0 {
		return nil
	}
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}
