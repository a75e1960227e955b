package game

import (
	"fmt"
	rand "math/rand/v2"

	"github.com/sixplus/shortdeck/internal/deck"
	"github.com/sixplus/shortdeck/internal/evaluator"
)

// Phase is the game-level phase across streets.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhasePreflop
	PhaseFlop
	PhaseTurn
	PhaseRiver
	PhaseHandComplete
	PhaseTournamentComplete
)

// String returns the phase name.
func (p Phase) String() string {
	return [...]string{
		"waiting", "preflop", "flop", "turn", "river",
		"hand_complete", "tournament_complete",
	}[p]
}

// PhaseForStreet maps a betting street to its game phase.
func PhaseForStreet(s Street) Phase {
	return PhasePreflop + Phase(s)
}

// GameState holds the cross-street state of one tournament game.
type GameState struct {
	Players    []Player
	Community  []deck.Card
	Pot        int
	Phase      Phase
	HandNumber int
	Deck       *deck.Deck
	ButtonSeat int
	SmallBlind int
	BigBlind   int
}

// NewGameState seats the given players for a fresh tournament. The button
// starts on the last seat so the first hand puts it on seat 0.
func NewGameState(players []Player, smallBlind, bigBlind int) *GameState {
	return &GameState{
		Players:    clonePlayers(players),
		Phase:      PhaseWaiting,
		ButtonSeat: len(players) - 1,
		SmallBlind: smallBlind,
		BigBlind:   bigBlind,
	}
}

// Clone deep-copies the state. Callers that must persist before committing
// mutate a clone and swap it in on success.
func (gs *GameState) Clone() *GameState {
	out := *gs
	out.Players = clonePlayers(gs.Players)
	if gs.Community != nil {
		out.Community = append([]deck.Card(nil), gs.Community...)
	}
	if gs.Deck != nil {
		out.Deck = deck.NewOrdered(gs.Deck.Cards())
	}
	return &out
}

// PlayerByID returns the seated player with the given id.
func (gs *GameState) PlayerByID(id string) (*Player, bool) {
	for i := range gs.Players {
		if gs.Players[i].ID == id {
			return &gs.Players[i], true
		}
	}
	return nil, false
}

// StartHand shuffles a fresh deck with rng and begins the next hand.
func (gs *GameState) StartHand(rng *rand.Rand) (BettingRound, error) {
	return gs.StartHandWithDeck(deck.New(rng))
}

// StartHandWithDeck begins the next hand using a prepared deck. Callers that
// persist the deck order (for deterministic replay) capture it before
// dealing. Eliminations and tournament completion are resolved here, at hand
// boundaries, never mid-hand.
func (gs *GameState) StartHandWithDeck(d *deck.Deck) (BettingRound, error) {
	gs.eliminateBustedPlayers()

	if len(gs.Players) <= 1 {
		gs.Phase = PhaseTournamentComplete
		return BettingRound{}, ErrTournamentComplete
	}

	gs.Deck = d
	gs.Community = nil
	gs.Pot = 0
	gs.HandNumber++
	gs.ButtonSeat = (gs.ButtonSeat + 1) % len(gs.Players)

	// Two hole cards to each seated player in one pass, lowest seat first.
	for i := range gs.Players {
		cards, err := gs.Deck.DealN(2)
		if err != nil {
			return BettingRound{}, fmt.Errorf("dealing hole cards: %w", err)
		}
		gs.Players[i].HoleCards = cards
	}

	// The round constructor posts the blinds; the game state does not
	// double-post.
	round, err := NewRound(gs.Players, gs.SmallBlind, gs.BigBlind, gs.ButtonSeat)
	if err != nil {
		return BettingRound{}, err
	}

	gs.SyncFromRound(round)
	gs.Phase = PhasePreflop
	return round, nil
}

// eliminateBustedPlayers removes zero-chip players, compacts seats to
// 0..M-1, and repositions the button: it stays with its holder if they
// survive, otherwise moves to the nearest surviving seat clockwise.
func (gs *GameState) eliminateBustedPlayers() {
	anyBusted := false
	for _, p := range gs.Players {
		if p.Chips == 0 {
			anyBusted = true
			break
		}
	}
	if !anyBusted {
		return
	}

	oldPlayers := gs.Players
	n := len(oldPlayers)

	survivors := make([]Player, 0, n)
	for _, p := range oldPlayers {
		if p.Chips > 0 {
			survivors = append(survivors, p)
		}
	}

	var buttonID string
	for i := 0; i < n; i++ {
		seat := (gs.ButtonSeat + i) % n
		if oldPlayers[seat].Chips > 0 {
			buttonID = oldPlayers[seat].ID
			break
		}
	}

	for i := range survivors {
		survivors[i].Seat = i
		if survivors[i].ID == buttonID {
			gs.ButtonSeat = i
		}
	}
	gs.Players = survivors
}

// SyncFromRound copies the betting round's chip counts and pot back into
// the game state.
func (gs *GameState) SyncFromRound(r BettingRound) {
	for _, rp := range r.Players {
		if p, ok := gs.PlayerByID(rp.ID); ok {
			p.Chips = rp.Chips
		}
	}
	gs.Pot = r.Pot
}

// DealCommunity burns one card and deals the community cards for the given
// street: three for the flop, one each for turn and river.
func (gs *GameState) DealCommunity(street Street) error {
	var count int
	switch street {
	case StreetFlop:
		count = 3
	case StreetTurn, StreetRiver:
		count = 1
	default:
		return fmt.Errorf("no community cards for %s", street)
	}

	if err := gs.Deck.Burn(); err != nil {
		return fmt.Errorf("burning before %s: %w", street, err)
	}
	cards, err := gs.Deck.DealN(count)
	if err != nil {
		return fmt.Errorf("dealing %s: %w", street, err)
	}
	gs.Community = append(gs.Community, cards...)
	gs.Phase = PhaseForStreet(street)
	return nil
}

// PotResult is the outcome of a single pot layer at showdown.
type PotResult struct {
	Amount  int
	Winners []string
	// Payouts maps winner id to chips received from this pot, including
	// any odd chip.
	Payouts map[string]int
}

// ShowdownResult is the full outcome of a showdown.
type ShowdownResult struct {
	Pots []PotResult
	// Hands holds every non-folded player's evaluated hand.
	Hands map[string]evaluator.Hand
	// Payouts aggregates winnings per player across all pots.
	Payouts map[string]int
}

// AwardFoldWin gives the whole pot to the sole non-folded player and ends
// the hand. No cards are revealed.
func (gs *GameState) AwardFoldWin(r BettingRound) (string, int) {
	remaining := r.NonFolded()
	if len(remaining) != 1 {
		return "", 0
	}
	winnerID := remaining[0].ID

	gs.SyncFromRound(r)
	if p, ok := gs.PlayerByID(winnerID); ok {
		p.Chips += gs.Pot
	}
	won := gs.Pot
	gs.Pot = 0
	gs.Phase = PhaseHandComplete
	return winnerID, won
}

// Showdown evaluates every non-folded hand, distributes each pot layer to
// its strongest eligible players, and ends the hand. Split-pot remainders go
// one chip at a time to winners nearest clockwise from the button.
func (gs *GameState) Showdown(r BettingRound) ShowdownResult {
	gs.SyncFromRound(r)

	result := ShowdownResult{
		Hands:   make(map[string]evaluator.Hand),
		Payouts: make(map[string]int),
	}
	for _, p := range r.NonFolded() {
		result.Hands[p.ID] = evaluator.EvaluateBest(p.HoleCards, gs.Community)
	}

	for _, pot := range r.SidePots() {
		hands := make([]evaluator.PlayerHand, 0, len(pot.Eligible))
		for _, id := range pot.Eligible {
			hands = append(hands, evaluator.PlayerHand{PlayerID: id, Hand: result.Hands[id]})
		}
		winners := evaluator.DetermineWinners(hands)
		if len(winners) == 0 {
			continue
		}

		payouts := gs.splitPot(pot.Amount, winners)
		for id, amount := range payouts {
			if p, ok := gs.PlayerByID(id); ok {
				p.Chips += amount
			}
			result.Payouts[id] += amount
		}
		result.Pots = append(result.Pots, PotResult{
			Amount:  pot.Amount,
			Winners: winners,
			Payouts: payouts,
		})
	}

	gs.Pot = 0
	gs.Phase = PhaseHandComplete
	return result
}

// splitPot divides amount equally among winners. Indivisible remainder
// chips go to winners in clockwise order from the seat after the button.
func (gs *GameState) splitPot(amount int, winners []string) map[string]int {
	share := amount / len(winners)
	remainder := amount % len(winners)

	ordered := gs.clockwiseFromButton(winners)
	payouts := make(map[string]int, len(winners))
	for i, id := range ordered {
		payouts[id] = share
		if i < remainder {
			payouts[id]++
		}
	}
	return payouts
}

// clockwiseFromButton orders the given player ids by seat distance
// clockwise from the button.
func (gs *GameState) clockwiseFromButton(ids []string) []string {
	n := len(gs.Players)
	type seated struct {
		id   string
		dist int
	}
	out := make([]seated, 0, len(ids))
	for _, id := range ids {
		if p, ok := gs.PlayerByID(id); ok {
			dist := (p.Seat - gs.ButtonSeat - 1 + n) % n
			out = append(out, seated{id: id, dist: dist})
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].dist < out[i].dist {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	ordered := make([]string, len(out))
	for i, s := range out {
		ordered[i] = s.id
	}
	return ordered
}

// TotalChips returns chips behind plus the live pot; constant across a
// tournament.
func (gs *GameState) TotalChips() int {
	total := gs.Pot
	for _, p := range gs.Players {
		total += p.Chips
	}
	return total
}
