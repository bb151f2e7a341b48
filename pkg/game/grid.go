package game

import (
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/cbodonnell/tabletop/pkg/game/constants"
	"github.com/cbodonnell/tabletop/pkg/game/types"
	"github.com/cbodonnell/tabletop/pkg/shm"
)

// GridVariant is the placement game: players fill the hidden solution of a
// generated puzzle one cell at a time.
type GridVariant struct {
	correctPoints int
	wrongPenalty  int
	clues         int

	mu  sync.Mutex
	rng *rand.Rand
}

type NewGridVariantOptions struct {
	CorrectPoints int
	WrongPenalty  int
	Clues         int
	// Rand defaults to a source seeded from the clock and pid.
	Rand *rand.Rand
}

func NewGridVariant(opts NewGridVariantOptions) *GridVariant {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(os.Getpid())))
	}
	return &GridVariant{
		correctPoints: opts.CorrectPoints,
		wrongPenalty:  opts.WrongPenalty,
		clues:         opts.Clues,
		rng:           rng,
	}
}

func (v *GridVariant) Kind() shm.VariantKind { return shm.VariantGrid }

func (v *GridVariant) NewBoard() *shm.Board {
	v.mu.Lock()
	puzzle := GeneratePuzzle(v.rng, v.clues)
	v.mu.Unlock()

	b := &shm.Board{}
	b.Reset()
	for idx := range b.Cells {
		c := &b.Cells[idx]
		c.Solution = puzzle.Solution[idx]
		if puzzle.Fixed[idx] {
			c.Fixed = true
			c.Value = c.Solution
		} else {
			b.Remaining++
		}
	}
	return b
}

func (v *GridVariant) Resolve(g *shm.GameSection, slot int, move types.Move) (types.MoveOutcome, error) {
	if move.Kind != types.MovePlace {
		return types.MoveOutcome{}, fmt.Errorf("%w: grid games only accept placements", ErrInvalidMove)
	}
	if move.Row < 0 || move.Row >= constants.BoardSize || move.Col < 0 || move.Col >= constants.BoardSize {
		return types.MoveOutcome{}, fmt.Errorf("%w: cell (%d,%d)", ErrOutOfRange, move.Row, move.Col)
	}
	if move.Value < 1 || move.Value > constants.BoardSize {
		return types.MoveOutcome{}, fmt.Errorf("%w: value %d", ErrOutOfRange, move.Value)
	}

	c := g.Board.Cell(move.Row, move.Col)
	if c.Fixed {
		return types.MoveOutcome{}, ErrCellFixed
	}
	if c.Value != 0 {
		return types.MoveOutcome{}, ErrCellFilled
	}

	p := g.Player(slot)
	out := types.MoveOutcome{Slot: slot, Kind: types.MovePlace, Row: move.Row, Col: move.Col, Value: move.Value}
	if int(c.Solution) == move.Value {
		c.Value = int8(move.Value)
		c.PlacedBy = int8(slot)
		g.Board.Remaining--
		p.Score += int32(v.correctPoints)
		p.Correct++
		out.Correct = true
		out.Gained = v.correctPoints
	} else {
		p.Score -= int32(v.wrongPenalty)
		p.Incorrect++
		out.Gained = -v.wrongPenalty
	}
	out.Score = int(p.Score)
	out.Remaining = int(g.Board.Remaining)
	return out, nil
}

func (v *GridVariant) Finished(g *shm.GameSection, _ int) (int, bool) {
	if g.Board.Remaining > 0 {
		return constants.NoPlayer, false
	}
	return highestScore(g), true
}
