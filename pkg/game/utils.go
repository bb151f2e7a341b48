package game

import (
	"github.com/cbodonnell/tabletop/pkg/game/constants"
	"github.com/cbodonnell/tabletop/pkg/game/types"
	"github.com/cbodonnell/tabletop/pkg/ledger"
	"github.com/cbodonnell/tabletop/pkg/shm"
	"github.com/google/uuid"
)

// SnapshotFromState copies g. It must be called with the lock held.
func SnapshotFromState(g *shm.GameSection) *types.GameSnapshot {
	snap := &types.GameSnapshot{
		Seq:         g.GameSeq,
		Phase:       g.Phase.String(),
		Variant:     g.Variant.String(),
		NumPlayers:  int(g.NumPlayers),
		CurrentTurn: int(g.CurrentTurn),
		Winner:      int(g.Winner),
		TurnSignal:  g.TurnSignal,
		Players:     make([]types.PlayerSnapshot, 0, len(g.Players)),
	}
	if id := uuid.UUID(g.GameID); id != uuid.Nil {
		snap.GameID = id.String()
	}
	for i := range g.Players {
		p := &g.Players[i]
		snap.Players = append(snap.Players, types.PlayerSnapshot{
			Slot:      int(p.Slot),
			Name:      p.NameString(),
			State:     p.State.String(),
			Score:     int(p.Score),
			Correct:   int(p.Correct),
			Incorrect: int(p.Incorrect),
			Rolls:     int(p.Rolls),
		})
	}
	if g.Variant == shm.VariantGrid && g.Phase != shm.PhaseAwaitingPlayers {
		b := &types.BoardSnapshot{
			Size:      constants.BoardSize,
			Remaining: int(g.Board.Remaining),
			Values:    make([]int8, constants.BoardCells),
			Fixed:     make([]bool, constants.BoardCells),
			PlacedBy:  make([]int8, constants.BoardCells),
		}
		for i, c := range g.Board.Cells {
			b.Values[i] = c.Value
			b.Fixed[i] = c.Fixed
			b.PlacedBy[i] = c.PlacedBy
		}
		snap.Board = b
	}
	return snap
}

// LedgerResults converts a settlement into ledger updates.
func LedgerResults(s *types.Settlement) []ledger.Result {
	results := make([]ledger.Result, 0, len(s.Players))
	for _, p := range s.Players {
		results = append(results, ledger.Result{
			Name:      p.Name,
			Won:       p.Won,
			Correct:   p.Correct,
			Incorrect: p.Incorrect,
		})
	}
	return results
}
