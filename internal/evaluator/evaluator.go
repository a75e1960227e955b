// Package evaluator scores short-deck hold'em hands. The 36-card deck changes
// the standard rankings: a flush outranks a full house, and the lowest
// straight is the wheel A-6-7-8-9.
package evaluator

import (
	"sort"
	"strings"

	"github.com/sixplus/shortdeck/internal/deck"
)

// Category is a hand category under short-deck rankings, weakest first.
type Category int

const (
	HighCard Category = iota
	OnePair
	TwoPair
	ThreeOfAKind
	Straight
	FullHouse
	Flush
	FourOfAKind
	StraightFlush
)

// String returns the readable name of the category.
func (c Category) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case OnePair:
		return "One Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case FullHouse:
		return "Full House"
	case Flush:
		return "Flush"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	default:
		return "Unknown"
	}
}

// Hand is an evaluated five-card (or fewer) hand.
type Hand struct {
	Category Category
	// Tiebreak holds category-specific ranks, most significant first
	// (pair rank then kickers, straight high card, etc.).
	Tiebreak []deck.Rank
	// Cards are the five cards making the hand.
	Cards []deck.Card
}

// Describe returns a human readable description, e.g. "Flush, Ace high".
func (h Hand) Describe() string {
	if len(h.Tiebreak) == 0 {
		return h.Category.String()
	}
	switch h.Category {
	case OnePair:
		return "Pair of " + plural(h.Tiebreak[0])
	case TwoPair:
		return "Two Pair, " + plural(h.Tiebreak[0]) + " and " + plural(h.Tiebreak[1])
	case ThreeOfAKind:
		return "Three of a Kind, " + plural(h.Tiebreak[0])
	case FullHouse:
		return "Full House, " + plural(h.Tiebreak[0]) + " over " + plural(h.Tiebreak[1])
	case FourOfAKind:
		return "Four of a Kind, " + plural(h.Tiebreak[0])
	case Straight, StraightFlush:
		return h.Category.String() + ", " + rankName(h.Tiebreak[0]) + " high"
	default:
		return h.Category.String() + ", " + rankName(h.Tiebreak[0]) + " high"
	}
}

func rankName(r deck.Rank) string {
	switch r {
	case deck.Six:
		return "Six"
	case deck.Seven:
		return "Seven"
	case deck.Eight:
		return "Eight"
	case deck.Nine:
		return "Nine"
	case deck.Ten:
		return "Ten"
	case deck.Jack:
		return "Jack"
	case deck.Queen:
		return "Queen"
	case deck.King:
		return "King"
	case deck.Ace:
		return "Ace"
	default:
		return "?"
	}
}

func plural(r deck.Rank) string {
	name := rankName(r)
	if r == deck.Six {
		return name + "es"
	}
	return name + "s"
}

// Compare returns 1 if a beats b, -1 if b beats a, 0 on a split.
func Compare(a, b Hand) int {
	if a.Category != b.Category {
		if a.Category > b.Category {
			return 1
		}
		return -1
	}
	for i := 0; i < len(a.Tiebreak) && i < len(b.Tiebreak); i++ {
		if a.Tiebreak[i] != b.Tiebreak[i] {
			if a.Tiebreak[i] > b.Tiebreak[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

// EvaluateBest returns the strongest hand formable from hole cards plus
// board. With seven cards it scores all 21 five-card subsets; with fewer
// than five cards available it evaluates what exists.
func EvaluateBest(hole, board []deck.Card) Hand {
	cards := make([]deck.Card, 0, len(hole)+len(board))
	cards = append(cards, hole...)
	cards = append(cards, board...)
	return Evaluate(cards)
}

// Evaluate returns the strongest hand among all five-card subsets of cards.
func Evaluate(cards []deck.Card) Hand {
	if len(cards) <= 5 {
		return scoreFive(cards)
	}

	var best Hand
	first := true
	subset := make([]deck.Card, 5)
	var recurse func(start, depth int)
	recurse = func(start, depth int) {
		if depth == 5 {
			h := scoreFive(subset)
			if first || Compare(h, best) > 0 {
				best = h
				first = false
			}
			return
		}
		for i := start; i <= len(cards)-(5-depth); i++ {
			subset[depth] = cards[i]
			recurse(i+1, depth+1)
		}
	}
	recurse(0, 0)
	return best
}

// scoreFive categorizes an exact hand of up to five cards.
func scoreFive(cards []deck.Card) Hand {
	sorted := make([]deck.Card, len(cards))
	copy(sorted, cards)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Rank > sorted[j].Rank })

	counts := make(map[deck.Rank]int)
	for _, c := range sorted {
		counts[c.Rank]++
	}

	// Group ranks by multiplicity: quads, trips, pairs, singles.
	var quads, trips, pairs, singles []deck.Rank
	for r, n := range counts {
		switch n {
		case 4:
			quads = append(quads, r)
		case 3:
			trips = append(trips, r)
		case 2:
			pairs = append(pairs, r)
		default:
			singles = append(singles, r)
		}
	}
	sortDesc(quads)
	sortDesc(trips)
	sortDesc(pairs)
	sortDesc(singles)

	isFlush := len(sorted) == 5 && allSameSuit(sorted)
	straightHigh, isStraight := straightHighCard(sorted)

	switch {
	case isStraight && isFlush:
		return Hand{Category: StraightFlush, Tiebreak: []deck.Rank{straightHigh}, Cards: sorted}
	case len(quads) == 1:
		return Hand{Category: FourOfAKind, Tiebreak: append(quads, singles...), Cards: sorted}
	case isFlush:
		return Hand{Category: Flush, Tiebreak: ranksOf(sorted), Cards: sorted}
	case len(trips) == 1 && len(pairs) >= 1:
		return Hand{Category: FullHouse, Tiebreak: []deck.Rank{trips[0], pairs[0]}, Cards: sorted}
	case isStraight:
		return Hand{Category: Straight, Tiebreak: []deck.Rank{straightHigh}, Cards: sorted}
	case len(trips) == 1:
		return Hand{Category: ThreeOfAKind, Tiebreak: append(trips, singles...), Cards: sorted}
	case len(pairs) >= 2:
		tb := []deck.Rank{pairs[0], pairs[1]}
		return Hand{Category: TwoPair, Tiebreak: append(tb, singles...), Cards: sorted}
	case len(pairs) == 1:
		return Hand{Category: OnePair, Tiebreak: append(pairs, singles...), Cards: sorted}
	default:
		return Hand{Category: HighCard, Tiebreak: ranksOf(sorted), Cards: sorted}
	}
}

// straightHighCard reports whether five cards form a straight and its
// canonical high card. The wheel A-6-7-8-9 is the lowest straight and
// ranks by its nine, below the 6-7-8-9-T straight which ranks by its ten.
func straightHighCard(sorted []deck.Card) (deck.Rank, bool) {
	if len(sorted) != 5 {
		return 0, false
	}
	ranks := ranksOf(sorted)
	for i := 0; i < 4; i++ {
		if ranks[i] == ranks[i+1] {
			return 0, false
		}
	}

	// Wheel: A-9-8-7-6 in descending order.
	if ranks[0] == deck.Ace && ranks[1] == deck.Nine && ranks[2] == deck.Eight &&
		ranks[3] == deck.Seven && ranks[4] == deck.Six {
		return deck.Nine, true
	}

	for i := 0; i < 4; i++ {
		if ranks[i] != ranks[i+1]+1 {
			return 0, false
		}
	}
	return ranks[0], true
}

func allSameSuit(cards []deck.Card) bool {
	for _, c := range cards[1:] {
		if c.Suit != cards[0].Suit {
			return false
		}
	}
	return true
}

func ranksOf(cards []deck.Card) []deck.Rank {
	ranks := make([]deck.Rank, len(cards))
	for i, c := range cards {
		ranks[i] = c.Rank
	}
	return ranks
}

func sortDesc(ranks []deck.Rank) {
	sort.Slice(ranks, func(i, j int) bool { return ranks[i] > ranks[j] })
}

// PlayerHand pairs a player id with their evaluated hand for winner
// determination.
type PlayerHand struct {
	PlayerID string
	Hand     Hand
}

// DetermineWinners returns the ids of every player whose hand ties the best.
// Folded players must not be passed in.
func DetermineWinners(hands []PlayerHand) []string {
	if len(hands) == 0 {
		return nil
	}
	best := hands[0]
	winners := []string{best.PlayerID}
	for _, ph := range hands[1:] {
		switch Compare(ph.Hand, best.Hand) {
		case 1:
			best = ph
			winners = winners[:0]
			winners = append(winners, ph.PlayerID)
		case 0:
			winners = append(winners, ph.PlayerID)
		}
	}
	return winners
}

// FormatCards renders cards as a compact string, e.g. "AsKd9h".
func FormatCards(cards []deck.Card) string {
	var b strings.Builder
	for _, c := range cards {
		b.WriteString(c.String())
	}
	return b.String()
}
