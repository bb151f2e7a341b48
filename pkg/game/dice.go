package game

import (
	"fmt"
	"math/rand/v2"

	"github.com/cbodonnell/tabletop/pkg/game/constants"
	"github.com/cbodonnell/tabletop/pkg/game/types"
	"github.com/cbodonnell/tabletop/pkg/shm"
)

// Roller draws two dice.
type Roller func() (int, int)

// RandomRoller draws from the process-wide source.
func RandomRoller() (int, int) {
	return rand.IntN(constants.DieSides) + 1, rand.IntN(constants.DieSides) + 1
}

// DiceVariant accumulates the sum of two dice per turn. Snake eyes reset the
// mover's score to zero.
type DiceVariant struct {
	roll         Roller
	winningScore int
}

func NewDiceVariant(winningScore int, roll Roller) *DiceVariant {
	if roll == nil {
		roll = RandomRoller
	}
	if winningScore <= 0 {
		winningScore = constants.WinningScore
	}
	return &DiceVariant{roll: roll, winningScore: winningScore}
}

func (v *DiceVariant) Kind() shm.VariantKind { return shm.VariantDice }

func (v *DiceVariant) NewBoard() *shm.Board { return nil }

func (v *DiceVariant) Resolve(g *shm.GameSection, slot int, move types.Move) (types.MoveOutcome, error) {
	if move.Kind != types.MoveRoll {
		return types.MoveOutcome{}, fmt.Errorf("%w: dice games only accept rolls", ErrInvalidMove)
	}

	p := g.Player(slot)
	a, b := v.roll()
	out := types.MoveOutcome{Slot: slot, Kind: types.MoveRoll, Die1: a, Die2: b}
	if a == 1 && b == 1 {
		out.Reset = true
		out.Gained = -int(p.Score)
		p.Score = 0
	} else {
		out.Gained = a + b
		p.Score += int32(a + b)
	}
	p.Rolls++
	out.Score = int(p.Score)
	return out, nil
}

func (v *DiceVariant) Finished(g *shm.GameSection, mover int) (int, bool) {
	if mover >= 0 && mover < len(g.Players) && int(g.Players[mover].Score) >= v.winningScore {
		return mover, true
	}
	winner := highestScore(g)
	if winner != constants.NoPlayer && int(g.Players[winner].Score) >= v.winningScore {
		return winner, true
	}
	return constants.NoPlayer, false
}
