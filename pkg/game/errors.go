package game

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSlot   = errors.New("invalid slot")
	ErrSlotTaken     = errors.New("slot is already taken")
	ErrInvalidName   = errors.New("invalid player name")
	ErrNotJoined     = errors.New("player has not joined")
	ErrNotInProgress = errors.New("game is not in progress")
	ErrInvalidMove   = errors.New("invalid move")
	ErrOutOfRange    = errors.New("move is out of range")
	ErrCellFixed     = errors.New("cell is fixed")
	ErrCellFilled    = errors.New("cell is already filled")
)

// NotYourTurnError is returned when a move arrives from a slot other than
// the current turn.
type NotYourTurnError struct {
	Slot        int
	CurrentTurn int
	CurrentName string
}

func (e *NotYourTurnError) Error() string {
	return fmt.Sprintf("not your turn, current turn: player %d (%s)", e.CurrentTurn+1, e.CurrentName)
}

// IsNotYourTurn reports whether err is a turn-ordering rejection.
func IsNotYourTurn(err error) bool {
	var e *NotYourTurnError
	return errors.As(err, &e)
}
