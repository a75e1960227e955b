package game

import (
	"errors"
	"fmt"
)

// Protocol violations surfaced to players. Reason strings are stable; the
// transport layer forwards them verbatim.
var (
	ErrNotYourTurn          = errors.New("not_your_turn")
	ErrInvalidAction        = errors.New("invalid_action")
	ErrNoActiveBettingRound = errors.New("no_active_betting_round")
	ErrInsufficientChips    = errors.New("insufficient_chips")
	ErrPlayerNotFound       = errors.New("player_not_found")
	ErrGameNotFound         = errors.New("game_not_found")
	ErrHandInProgress       = errors.New("hand_in_progress")
	ErrTournamentComplete   = errors.New("tournament_complete")
)

// BelowMinimumRaiseError rejects an undersized raise, carrying the attempted
// total and the minimum legal total.
type BelowMinimumRaiseError struct {
	Attempted int
	Minimum   int
}

func (e *BelowMinimumRaiseError) Error() string {
	return fmt.Sprintf("below_minimum_raise: attempted %d, minimum %d", e.Attempted, e.Minimum)
}

// InvalidInputError rejects malformed input at the entry boundary.
type InvalidInputError struct {
	Detail string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid_input: %s", e.Detail)
}
