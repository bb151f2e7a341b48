package game

import (
	"github.com/cbodonnell/tabletop/pkg/game/constants"
	"github.com/cbodonnell/tabletop/pkg/shm"
)

// nextActive returns the first Active slot after from in ascending slot order,
// wrapping around. from may be NoPlayer to start at slot 0. When from is the
// only Active slot it is returned again. Returns NoPlayer when no slot is Active.
func nextActive(g *shm.GameSection, from int) int {
	n := len(g.Players)
	for i := 1; i <= n; i++ {
		slot := ((from+i)%n + n) % n
		if g.Players[slot].State == shm.PlayerActive {
			return slot
		}
	}
	return constants.NoPlayer
}

// turnValid reports whether current_turn references an Active player.
func turnValid(g *shm.GameSection) bool {
	t := int(g.CurrentTurn)
	return t >= 0 && t < len(g.Players) && g.Players[t].State == shm.PlayerActive
}

// setTurn moves the turn to slot. turn_signal only ever increases.
func setTurn(g *shm.GameSection, slot int) {
	g.CurrentTurn = int32(slot)
	g.TurnSignal++
}

// highestScore returns the Active or Finished player with the highest score,
// ties going to the lowest slot, or NoPlayer.
func highestScore(g *shm.GameSection) int {
	winner := constants.NoPlayer
	for i := range g.Players {
		p := &g.Players[i]
		if p.State != shm.PlayerActive && p.State != shm.PlayerFinished {
			continue
		}
		if winner == constants.NoPlayer || p.Score > g.Players[winner].Score {
			winner = i
		}
	}
	return winner
}
