package game

import "fmt"

// ActionType identifies a player action.
type ActionType int

const (
	Fold ActionType = iota
	Check
	Call
	Raise
	AllIn
)

// String returns the wire name of the action.
func (a ActionType) String() string {
	switch a {
	case Fold:
		return "fold"
	case Check:
		return "check"
	case Call:
		return "call"
	case Raise:
		return "raise"
	case AllIn:
		return "allin"
	default:
		return "unknown"
	}
}

// ParseActionType parses a wire action name.
func ParseActionType(s string) (ActionType, error) {
	switch s {
	case "fold":
		return Fold, nil
	case "check":
		return Check, nil
	case "call":
		return Call, nil
	case "raise":
		return Raise, nil
	case "allin", "all_in":
		return AllIn, nil
	default:
		return Fold, fmt.Errorf("%w: unknown action %q", ErrInvalidAction, s)
	}
}

// Action is a player's move. Amount is only meaningful for raises and is the
// total the player will have committed this round afterwards, not an
// increment.
type Action struct {
	Type   ActionType
	Amount int
}

// Validate rejects malformed action shapes before they reach the round.
func (a Action) Validate() error {
	switch a.Type {
	case Fold, Check, Call, AllIn:
		if a.Amount != 0 {
			return &InvalidInputError{Detail: fmt.Sprintf("%s carries no amount", a.Type)}
		}
		return nil
	case Raise:
		if a.Amount <= 0 {
			return &InvalidInputError{Detail: "raise amount must be positive"}
		}
		return nil
	default:
		return &InvalidInputError{Detail: "unknown action type"}
	}
}
