package types

import "time"

type MoveKind string

const (
	MoveRoll  MoveKind = "roll"
	MovePlace MoveKind = "place"
)

// Move is a turn submitted by a player. Row, Col and Value are only used by
// placements.
type Move struct {
	Kind  MoveKind `json:"kind"`
	Row   int      `json:"row,omitempty"`
	Col   int      `json:"col,omitempty"`
	Value int      `json:"value,omitempty"`
}

// MoveOutcome describes what a resolved move changed.
type MoveOutcome struct {
	Slot  int      `json:"slot"`
	Name  string   `json:"name"`
	Kind  MoveKind `json:"kind"`
	Score int      `json:"score"`

	Die1   int  `json:"die1,omitempty"`
	Die2   int  `json:"die2,omitempty"`
	Gained int  `json:"gained"`
	Reset  bool `json:"reset,omitempty"`

	Row       int  `json:"row,omitempty"`
	Col       int  `json:"col,omitempty"`
	Value     int  `json:"value,omitempty"`
	Correct   bool `json:"correct,omitempty"`
	Remaining int  `json:"remaining,omitempty"`

	Finished bool `json:"finished"`
	Winner   int  `json:"winner"`
	NextTurn int  `json:"nextTurn"`
}

// PlayerResult is one participant of a finished game.
type PlayerResult struct {
	Slot      int    `json:"slot"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Correct   int    `json:"correct"`
	Incorrect int    `json:"incorrect"`
	Rolls     int    `json:"rolls"`
	Won       bool   `json:"won"`
}

// Settlement is the result of a finished game, handed to the single writer of
// the score ledger and game history exactly once.
type Settlement struct {
	GameID     string         `json:"gameId"`
	Seq        uint64         `json:"seq"`
	Variant    string         `json:"variant"`
	Winner     int            `json:"winner"`
	WinnerName string         `json:"winnerName"`
	FinishedAt time.Time      `json:"finishedAt"`
	Players    []PlayerResult `json:"players"`
}
