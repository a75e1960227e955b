package game

import (
	"fmt"
	"sort"
)

// Street represents the betting round within a hand.
type Street int

const (
	StreetPreflop Street = iota
	StreetFlop
	StreetTurn
	StreetRiver
)

// String returns the street name.
func (s Street) String() string {
	return [...]string{"preflop", "flop", "turn", "river"}[s]
}

// Next returns the following street and whether one exists.
func (s Street) Next() (Street, bool) {
	if s >= StreetRiver {
		return s, false
	}
	return s + 1, true
}

// BettingRound is the state of one street of betting. It is an immutable
// value: Apply returns a new round and never mutates the receiver, so a
// failed action leaves the prior state untouched.
type BettingRound struct {
	// Players are the seated players in seat order. Chip counts reflect
	// bets already committed.
	Players    []Player
	SmallBlind int
	BigBlind   int
	Street     Street
	ButtonSeat int

	// Pot is the total committed to the hand up to and including this round.
	Pot int
	// CurrentBet is the highest per-player wager in this round.
	CurrentBet int
	// PlayerBets maps player id to chips committed this round.
	PlayerBets map[string]int
	// TotalBets maps player id to chips committed across the whole hand;
	// side pots are layered from these.
	TotalBets map[string]int

	// ActiveIndex is the index of the player to act, -1 when none.
	ActiveIndex int
	Folded      map[string]bool
	AllIn       map[string]bool

	// LastRaiseSize seeds minimum-raise math; 0 means no raise yet this
	// street (minimum falls back to the big blind).
	LastRaiseSize int
	// CanAct holds the ids of players who still owe an action. A raise
	// refills it with every live opponent.
	CanAct     map[string]bool
	LastRaiser string
}

// BlindSeats returns the small- and big-blind seats for a button position.
// Heads-up the button posts the small blind.
func BlindSeats(numPlayers, button int) (sb, bb int) {
	if numPlayers == 2 {
		return button, (button + 1) % numPlayers
	}
	return (button + 1) % numPlayers, (button + 2) % numPlayers
}

// NewRound constructs the preflop betting round, posting blinds. A blind
// poster who cannot cover the blind posts their whole stack and is all-in.
func NewRound(players []Player, smallBlind, bigBlind, buttonSeat int) (BettingRound, error) {
	n := len(players)
	if n < 2 {
		return BettingRound{}, fmt.Errorf("betting round requires at least 2 players, got %d", n)
	}
	for i, p := range players {
		if p.Seat != i {
			return BettingRound{}, fmt.Errorf("player %s at index %d has seat %d, want dense seating", p.ID, i, p.Seat)
		}
	}

	r := BettingRound{
		Players:       clonePlayers(players),
		SmallBlind:    smallBlind,
		BigBlind:      bigBlind,
		Street:        StreetPreflop,
		ButtonSeat:    buttonSeat,
		PlayerBets:    make(map[string]int, n),
		TotalBets:     make(map[string]int, n),
		Folded:        make(map[string]bool),
		AllIn:         make(map[string]bool),
		CanAct:        make(map[string]bool, n),
		LastRaiseSize: bigBlind,
	}

	sbSeat, bbSeat := BlindSeats(n, buttonSeat)
	r.post(sbSeat, smallBlind)
	r.post(bbSeat, bigBlind)
	r.CurrentBet = bigBlind

	// Everyone not already all-in owes an action, the big blind included:
	// they keep the option to raise when action returns unraised.
	for _, p := range r.Players {
		if !r.AllIn[p.ID] {
			r.CanAct[p.ID] = true
		}
	}

	var firstToAct int
	if n == 2 {
		firstToAct = buttonSeat
	} else {
		firstToAct = (buttonSeat + 3) % n
	}
	r.ActiveIndex = r.nextActor(firstToAct - 1)
	return r, nil
}

// NewRoundFromExisting constructs a post-preflop round. No blinds are
// posted; carriedPot and carriedTotals bring forward the hand's committed
// chips, and the folded/all-in sets survive from earlier streets.
func NewRoundFromExisting(players []Player, smallBlind, bigBlind int, carriedPot int, carriedTotals map[string]int, street Street, buttonSeat int, folded, allIn map[string]bool) BettingRound {
	n := len(players)
	r := BettingRound{
		Players:    clonePlayers(players),
		SmallBlind: smallBlind,
		BigBlind:   bigBlind,
		Street:     street,
		ButtonSeat: buttonSeat,
		Pot:        carriedPot,
		PlayerBets: make(map[string]int, n),
		TotalBets:  cloneIntMap(carriedTotals),
		Folded:     cloneSet(folded),
		AllIn:      cloneSet(allIn),
		CanAct:     make(map[string]bool, n),
	}

	for _, p := range r.Players {
		if !r.Folded[p.ID] && !r.AllIn[p.ID] {
			r.CanAct[p.ID] = true
		}
	}

	// First to act is the first live player clockwise from the button;
	// heads-up post-flop that is the big blind.
	r.ActiveIndex = r.nextActor(buttonSeat)
	return r
}

// post commits a blind for the player in the given seat.
func (r *BettingRound) post(seat, blind int) {
	p := &r.Players[seat]
	amount := blind
	if amount > p.Chips {
		amount = p.Chips
	}
	p.Chips -= amount
	r.PlayerBets[p.ID] = amount
	r.TotalBets[p.ID] = amount
	r.Pot += amount
	if p.Chips == 0 {
		r.AllIn[p.ID] = true
	}
}

// clone deep-copies the round for a functional update.
func (r BettingRound) clone() BettingRound {
	out := r
	out.Players = clonePlayers(r.Players)
	out.PlayerBets = cloneIntMap(r.PlayerBets)
	out.TotalBets = cloneIntMap(r.TotalBets)
	out.Folded = cloneSet(r.Folded)
	out.AllIn = cloneSet(r.AllIn)
	out.CanAct = cloneSet(r.CanAct)
	return out
}

func cloneIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ActivePlayer returns the player due to act, or false when the round is
// complete.
func (r BettingRound) ActivePlayer() (Player, bool) {
	if r.ActiveIndex < 0 || r.ActiveIndex >= len(r.Players) {
		return Player{}, false
	}
	return r.Players[r.ActiveIndex], true
}

// AmountToCall returns the chips the player owes to match the current bet.
func (r BettingRound) AmountToCall(playerID string) int {
	return r.CurrentBet - r.PlayerBets[playerID]
}

// raiseStep is the size the next raise must add on top of the current bet.
func (r BettingRound) raiseStep() int {
	if r.LastRaiseSize > 0 {
		return r.LastRaiseSize
	}
	return r.BigBlind
}

// MinimumRaise returns the smallest legal raise total.
func (r BettingRound) MinimumRaise() int {
	return r.CurrentBet + r.raiseStep()
}

// opponentsCanRespond reports whether any other player could still respond
// to a wager.
func (r BettingRound) opponentsCanRespond(playerID string) bool {
	for _, p := range r.Players {
		if p.ID != playerID && !r.Folded[p.ID] && !r.AllIn[p.ID] {
			return true
		}
	}
	return false
}

// LegalActions returns the actions open to the given player. Empty when it
// is not their turn.
func (r BettingRound) LegalActions(playerID string) []ActionType {
	active, ok := r.ActivePlayer()
	if !ok || active.ID != playerID {
		return nil
	}

	owed := r.AmountToCall(playerID)
	responders := r.opponentsCanRespond(playerID)

	if owed > 0 {
		if active.Chips < owed {
			return []ActionType{Fold, AllIn}
		}
		if responders {
			return []ActionType{Fold, Call, Raise, AllIn}
		}
		return []ActionType{Fold, Call}
	}

	actions := []ActionType{Fold, Check}
	if responders {
		actions = append(actions, Raise)
	}
	actions = append(actions, AllIn)
	return actions
}

// Apply validates and applies an action for playerID, returning the
// resulting round. The receiver is never modified.
func (r BettingRound) Apply(playerID string, action Action) (BettingRound, error) {
	if err := action.Validate(); err != nil {
		return r, err
	}

	active, ok := r.ActivePlayer()
	if !ok {
		return r, ErrNoActiveBettingRound
	}
	if active.ID != playerID {
		if !r.hasPlayer(playerID) {
			return r, ErrPlayerNotFound
		}
		return r, ErrNotYourTurn
	}

	legal := false
	for _, a := range r.LegalActions(playerID) {
		if a == action.Type {
			legal = true
			break
		}
	}
	if !legal {
		return r, fmt.Errorf("%w: %s not available", ErrInvalidAction, action.Type)
	}

	next := r.clone()
	p := &next.Players[next.ActiveIndex]

	switch action.Type {
	case Fold:
		next.Folded[p.ID] = true
		delete(next.CanAct, p.ID)

	case Check:
		delete(next.CanAct, p.ID)

	case Call:
		owed := next.AmountToCall(p.ID)
		pay := owed
		if pay > p.Chips {
			pay = p.Chips
		}
		p.Chips -= pay
		next.PlayerBets[p.ID] += pay
		next.TotalBets[p.ID] += pay
		next.Pot += pay
		delete(next.CanAct, p.ID)
		if p.Chips == 0 {
			next.AllIn[p.ID] = true
		}

	case Raise:
		minimum := next.MinimumRaise()
		if action.Amount < minimum {
			return r, &BelowMinimumRaiseError{Attempted: action.Amount, Minimum: minimum}
		}
		cost := action.Amount - next.PlayerBets[p.ID]
		if cost > p.Chips {
			return r, ErrInsufficientChips
		}
		p.Chips -= cost
		next.Pot += cost
		next.LastRaiseSize = action.Amount - next.CurrentBet
		next.CurrentBet = action.Amount
		next.PlayerBets[p.ID] = action.Amount
		next.TotalBets[p.ID] += cost
		next.LastRaiser = p.ID
		next.reopenBetting(p.ID)
		if p.Chips == 0 {
			next.AllIn[p.ID] = true
		}

	case AllIn:
		commit := p.Chips
		if commit == 0 {
			return r, fmt.Errorf("%w: no chips to commit", ErrInvalidAction)
		}
		priorBet := next.CurrentBet
		minimum := next.MinimumRaise()
		total := next.PlayerBets[p.ID] + commit
		p.Chips = 0
		next.Pot += commit
		next.PlayerBets[p.ID] = total
		next.TotalBets[p.ID] += commit
		next.AllIn[p.ID] = true
		delete(next.CanAct, p.ID)

		if total > priorBet {
			next.LastRaiseSize = total - priorBet
			next.CurrentBet = total
			// An all-in below the minimum-raise threshold does not
			// reopen betting for players who already acted.
			if total >= minimum {
				next.LastRaiser = p.ID
				next.reopenBetting(p.ID)
			}
		}
	}

	next.ActiveIndex = next.nextActor(next.ActiveIndex)
	return next, nil
}

// reopenBetting refills CanAct with every live opponent of the raiser and
// removes the raiser.
func (r *BettingRound) reopenBetting(raiserID string) {
	for _, p := range r.Players {
		if p.ID != raiserID && !r.Folded[p.ID] && !r.AllIn[p.ID] {
			r.CanAct[p.ID] = true
		}
	}
	delete(r.CanAct, raiserID)
}

// nextActor returns the index of the next player clockwise from `from` who
// still owes an action, or -1 when none remain.
func (r BettingRound) nextActor(from int) int {
	n := len(r.Players)
	for i := 1; i <= n; i++ {
		idx := (from + i) % n
		if idx < 0 {
			idx += n
		}
		if r.CanAct[r.Players[idx].ID] {
			return idx
		}
	}
	return -1
}

// Complete reports whether the betting round is finished: one player left
// unfolded, or nobody owes an action.
func (r BettingRound) Complete() bool {
	if r.NonFoldedCount() <= 1 {
		return true
	}
	return len(r.CanAct) == 0
}

// NonFoldedCount returns the number of players still in the hand.
func (r BettingRound) NonFoldedCount() int {
	count := 0
	for _, p := range r.Players {
		if !r.Folded[p.ID] {
			count++
		}
	}
	return count
}

// NonFolded returns the players still in the hand, in seat order.
func (r BettingRound) NonFolded() []Player {
	var out []Player
	for _, p := range r.Players {
		if !r.Folded[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

func (r BettingRound) hasPlayer(playerID string) bool {
	for _, p := range r.Players {
		if p.ID == playerID {
			return true
		}
	}
	return false
}

// SidePot is one layer of the pot with the player ids eligible to win it.
type SidePot struct {
	Amount   int
	Eligible []string
}

// SidePots partitions the hand's committed chips into main and side pots
// from the cumulative per-player totals. Folded players' chips stay in the
// layers they reach, but folded players are never eligible.
func (r BettingRound) SidePots() []SidePot {
	// Distinct commitment levels of non-folded players, ascending.
	levelSet := make(map[int]bool)
	for _, p := range r.Players {
		if !r.Folded[p.ID] && r.TotalBets[p.ID] > 0 {
			levelSet[r.TotalBets[p.ID]] = true
		}
	}
	levels := make([]int, 0, len(levelSet))
	for l := range levelSet {
		levels = append(levels, l)
	}
	sort.Ints(levels)

	var pots []SidePot
	prev := 0
	for _, level := range levels {
		pot := SidePot{}
		for _, p := range r.Players {
			committed := r.TotalBets[p.ID]
			share := clamp(committed, prev, level) - prev
			if share > 0 {
				pot.Amount += share
			}
			if !r.Folded[p.ID] && committed >= level {
				pot.Eligible = append(pot.Eligible, p.ID)
			}
		}
		if pot.Amount > 0 {
			pots = append(pots, pot)
		}
		prev = level
	}

	// Folded chips above the highest live commitment are dead money; they
	// land in the last pot so no chip ever leaves the hand.
	if len(pots) > 0 {
		counted := 0
		for _, pot := range pots {
			counted += pot.Amount
		}
		if leftover := r.Pot - counted; leftover > 0 {
			pots[len(pots)-1].Amount += leftover
		}
	}
	return pots
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
