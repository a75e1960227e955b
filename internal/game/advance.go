package game

// HandOutcome describes how a hand ended.
type HandOutcome struct {
	// FoldWin is set when everyone else folded; Winner took Amount without a
	// showdown and no cards are revealed.
	FoldWin bool
	Winner  string
	Amount  int

	// Showdown is set when the hand reached a showdown. Cards are revealed
	// only then.
	Showdown *ShowdownResult
}

// Advance drives the hand forward after an action until either another
// action is needed or the hand ends. It resolves fold wins, deals the next
// street when a round completes, runs the remaining streets out when nobody
// can act (all-in), and settles the showdown after the river.
//
// The returned round is the live round awaiting an action when outcome is
// nil, or the final round of the hand otherwise.
func Advance(gs *GameState, r BettingRound) (BettingRound, *HandOutcome, error) {
	for r.Complete() {
		if r.NonFoldedCount() <= 1 {
			winner, won := gs.AwardFoldWin(r)
			return r, &HandOutcome{FoldWin: true, Winner: winner, Amount: won}, nil
		}

		next, ok := r.Street.Next()
		if !ok {
			result := gs.Showdown(r)
			return r, &HandOutcome{Showdown: &result}, nil
		}

		if err := gs.DealCommunity(next); err != nil {
			return r, nil, err
		}
		r = NewRoundFromExisting(r.Players, gs.SmallBlind, gs.BigBlind, r.Pot, r.TotalBets, next, gs.ButtonSeat, r.Folded, r.AllIn)
	}
	// The hand continues: fold the round's chip movement back into the game
	// state so snapshots taken between actions show the live pot and stacks.
	gs.SyncFromRound(r)
	return r, nil, nil
}
