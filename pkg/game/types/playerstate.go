package types

type PlayerSnapshot struct {
	Slot      int    `json:"slot"`
	Name      string `json:"name"`
	State     string `json:"state"`
	Score     int    `json:"score"`
	Correct   int    `json:"correct"`
	Incorrect int    `json:"incorrect"`
	Rolls     int    `json:"rolls"`
}

// Connected is true for any state other than disconnected.
func (p *PlayerSnapshot) Connected() bool {
	return p.State != "disconnected"
}
