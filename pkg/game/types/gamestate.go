package types

// GameSnapshot is a deep copy of the shared game state taken under the lock.
type GameSnapshot struct {
	GameID      string           `json:"gameId,omitempty"`
	Seq         uint64           `json:"seq"`
	Phase       string           `json:"phase"`
	Variant     string           `json:"variant"`
	NumPlayers  int              `json:"numPlayers"`
	CurrentTurn int              `json:"currentTurn"`
	Winner      int              `json:"winner"`
	TurnSignal  uint64           `json:"turnSignal"`
	Players     []PlayerSnapshot `json:"players"`
	Board       *BoardSnapshot   `json:"board,omitempty"`
}

// BoardSnapshot is the visible part of the placement grid. Hidden solution
// values are never included.
type BoardSnapshot struct {
	Size      int    `json:"size"`
	Remaining int    `json:"remaining"`
	Values    []int8 `json:"values"`
	Fixed     []bool `json:"fixed"`
	PlacedBy  []int8 `json:"placedBy"`
}

// Player returns the snapshot of slot, or nil.
func (g *GameSnapshot) Player(slot int) *PlayerSnapshot {
	for i := range g.Players {
		if g.Players[i].Slot == slot {
			return &g.Players[i]
		}
	}
	return nil
}

// CurrentName returns the name of the player whose turn it is.
func (g *GameSnapshot) CurrentName() string {
	if p := g.Player(g.CurrentTurn); p != nil {
		return p.Name
	}
	return ""
}

// Value returns the visible value at row, col, 0 when empty.
func (b *BoardSnapshot) Value(row, col int) int8 {
	return b.Values[row*b.Size+col]
}
