package messages

import (
	"encoding/json"
	"fmt"

	"github.com/cbodonnell/tabletop/pkg/game/types"
)

const (
	// MaxFrameSize is the largest compressed payload a frame may carry.
	MaxFrameSize = 64 * 1024
	// MaxMessageSize bounds a decompressed message.
	MaxMessageSize = 1024 * 1024
)

// Message types sent by clients
const (
	MessageTypeJoin   = "join"
	MessageTypeRoll   = "roll"
	MessageTypePlace  = "place"
	MessageTypeStatus = "status"
	MessageTypeQuit   = "quit"
)

// Message types sent by the server. Status answers reuse MessageTypeStatus.
const (
	MessageTypeJoined         = "joined"
	MessageTypeYourTurn       = "your_turn"
	MessageTypeMoveResult     = "move_result"
	MessageTypeGameOver       = "game_over"
	MessageTypeWait           = "wait"
	MessageTypeError          = "error"
	MessageTypePlayerLeft     = "player_left"
	MessageTypeGameStarted    = "game_started"
	MessageTypeStateBroadcast = "state"
	MessageTypeGoodbye        = "goodbye"
)

// Message represents a generic message for serialization/deserialization
type Message struct {
	Slot    int             `json:"slot"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds a message with payload encoded as JSON. A nil payload
// leaves the payload empty.
func NewMessage(slot int, messageType string, payload interface{}) (*Message, error) {
	m := &Message{Slot: slot, Type: messageType}
	if payload == nil {
		return m, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %v", messageType, err)
	}
	m.Payload = b
	return m, nil
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v interface{}) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %v", m.Type, err)
	}
	return nil
}

type JoinRequest struct {
	Name string `json:"name"`
}

type PlaceRequest struct {
	Row   int `json:"row"`
	Col   int `json:"col"`
	Value int `json:"value"`
}

type Joined struct {
	Slot    int                 `json:"slot"`
	Name    string              `json:"name"`
	Started bool                `json:"started"`
	Missing int                 `json:"missing"`
	State   *types.GameSnapshot `json:"state"`
}

type YourTurn struct {
	State *types.GameSnapshot `json:"state"`
}

type MoveResult struct {
	Outcome types.MoveOutcome   `json:"outcome"`
	State   *types.GameSnapshot `json:"state"`
}

type GameOver struct {
	Winner     int                 `json:"winner"`
	WinnerName string              `json:"winnerName"`
	State      *types.GameSnapshot `json:"state"`
}

// Wait is the answer to a move made out of turn or before the game started.
type Wait struct {
	Message     string `json:"message"`
	CurrentTurn int    `json:"currentTurn"`
	CurrentName string `json:"currentName,omitempty"`
}

type Error struct {
	Message string `json:"message"`
}

type PlayerLeft struct {
	Slot  int                 `json:"slot"`
	Name  string              `json:"name"`
	State *types.GameSnapshot `json:"state"`
}

type GameStarted struct {
	State *types.GameSnapshot `json:"state"`
}

type StateBroadcast struct {
	State *types.GameSnapshot `json:"state"`
}

type Status struct {
	State *types.GameSnapshot `json:"state"`
}
