package game

import (
	"github.com/cbodonnell/tabletop/pkg/game/types"
	"github.com/cbodonnell/tabletop/pkg/shm"
)

// Variant is the rule set that resolves moves of one kind of game.
type Variant interface {
	Kind() shm.VariantKind
	// NewBoard builds the board of a new game, or returns nil when the
	// variant has none. It is called outside the lock.
	NewBoard() *shm.Board
	// Resolve applies move by slot. It is called with the lock held once the
	// game is known to be in progress and slot holds the turn. A returned
	// error means nothing was changed.
	Resolve(g *shm.GameSection, slot int, move types.Move) (types.MoveOutcome, error)
	// Finished evaluates the completion rule. mover is the slot that just
	// moved, or NoPlayer when called from the scheduler.
	Finished(g *shm.GameSection, mover int) (winner int, done bool)
}
