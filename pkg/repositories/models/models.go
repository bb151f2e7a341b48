package models

import "time"

// GameResult is the history row of one finished game.
type GameResult struct {
	ID         string         `json:"id"`
	Seq        uint64         `json:"seq"`
	Variant    string         `json:"variant"`
	Winner     int            `json:"winner"`
	WinnerName string         `json:"winner_name"`
	FinishedAt time.Time      `json:"finished_at"`
	Players    []PlayerResult `json:"players"`
}

type PlayerResult struct {
	Slot      int    `json:"slot"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Correct   int    `json:"correct"`
	Incorrect int    `json:"incorrect"`
	Rolls     int    `json:"rolls"`
	Won       bool   `json:"won"`
}
