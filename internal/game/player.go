package game

import "github.com/sixplus/shortdeck/internal/deck"

// Player represents a seated player. Seats are dense 0..N-1 and compacted
// after eliminations; identity is the opaque ID.
type Player struct {
	ID        string
	Chips     int
	Seat      int
	HoleCards []deck.Card
}

// clonePlayers deep-copies a player slice so functional betting-round updates
// never alias the previous value.
func clonePlayers(players []Player) []Player {
	out := make([]Player, len(players))
	copy(out, players)
	for i := range out {
		if players[i].HoleCards != nil {
			out[i].HoleCards = append([]deck.Card(nil), players[i].HoleCards...)
		}
	}
	return out
}

// cloneSet copies a string set.
func cloneSet(set map[string]bool) map[string]bool {
	out := make(map[string]bool, len(set))
	for k, v := range set {
		if v {
			out[k] = true
		}
	}
	return out
}
