package deck

import (
	"errors"
	rand "math/rand/v2"
)

// Size is the number of cards in a short deck (ranks 6..A, four suits).
const Size = 36

// ErrEmpty is returned when dealing from an exhausted deck.
var ErrEmpty = errors.New("deck: no cards remaining")

// Deck represents a 36-card short deck.
type Deck struct {
	cards []Card
}

// New creates a fresh short deck shuffled with the provided RNG.
// Pass a seeded rand.Rand for deterministic tests.
func New(rng *rand.Rand) *Deck {
	d := &Deck{cards: make([]Card, 0, Size)}
	for suit := Clubs; suit <= Spades; suit++ {
		for rank := Six; rank <= Ace; rank++ {
			d.cards = append(d.cards, NewCard(rank, suit))
		}
	}
	rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
	return d
}

// NewOrdered creates a deck with the exact card order given. Used to rebuild
// a hand deterministically during event replay and in tests.
func NewOrdered(cards []Card) *Deck {
	d := &Deck{cards: make([]Card, len(cards))}
	copy(d.cards, cards)
	return d
}

// Deal removes and returns the top card.
func (d *Deck) Deal() (Card, error) {
	if len(d.cards) == 0 {
		return Card{}, ErrEmpty
	}
	card := d.cards[0]
	d.cards = d.cards[1:]
	return card, nil
}

// DealN deals n cards from the top of the deck.
func (d *Deck) DealN(n int) ([]Card, error) {
	if n > len(d.cards) {
		return nil, ErrEmpty
	}
	cards := make([]Card, n)
	copy(cards, d.cards[:n])
	d.cards = d.cards[n:]
	return cards, nil
}

// Burn discards the top card.
func (d *Deck) Burn() error {
	_, err := d.Deal()
	return err
}

// Remaining returns the number of cards left in the deck.
func (d *Deck) Remaining() int {
	return len(d.cards)
}

// Cards returns the remaining cards in order. The caller must not mutate
// the returned slice; it backs deterministic replay.
func (d *Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}
