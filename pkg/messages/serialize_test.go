package messages

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/cbodonnell/tabletop/pkg/game/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	snap := &types.GameSnapshot{
		GameID:      "4b7f0c2e-0d1a-4a53-9d3c-0f7e8d1f2a11",
		Phase:       "in_progress",
		Variant:     "dice",
		NumPlayers:  3,
		CurrentTurn: 1,
		Winner:      -1,
		TurnSignal:  7,
		Players: []types.PlayerSnapshot{
			{Slot: 0, Name: "alice", State: "active", Score: 17},
			{Slot: 1, Name: "bob", State: "active", Score: -5},
		},
	}
	tests := []struct {
		name    string
		slot    int
		typ     string
		payload interface{}
		decode  func(t *testing.T, m *Message)
	}{
		{
			name:    "join request",
			slot:    2,
			typ:     MessageTypeJoin,
			payload: JoinRequest{Name: "carol"},
			decode: func(t *testing.T, m *Message) {
				var p JoinRequest
				require.NoError(t, m.Decode(&p))
				assert.Equal(t, "carol", p.Name)
			},
		},
		{
			name: "roll has no payload",
			slot: 0,
			typ:  MessageTypeRoll,
			decode: func(t *testing.T, m *Message) {
				assert.Empty(t, m.Payload)
				assert.Error(t, m.Decode(&struct{}{}))
			},
		},
		{
			name:    "state broadcast",
			slot:    1,
			typ:     MessageTypeStateBroadcast,
			payload: StateBroadcast{State: snap},
			decode: func(t *testing.T, m *Message) {
				var p StateBroadcast
				require.NoError(t, m.Decode(&p))
				assert.Equal(t, snap, p.State)
			},
		},
		{
			name:    "wait",
			slot:    0,
			typ:     MessageTypeWait,
			payload: Wait{Message: "not your turn", CurrentTurn: 1, CurrentName: "bob"},
			decode: func(t *testing.T, m *Message) {
				var p Wait
				require.NoError(t, m.Decode(&p))
				assert.Equal(t, 1, p.CurrentTurn)
				assert.Equal(t, "bob", p.CurrentName)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMessage(tt.slot, tt.typ, tt.payload)
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, WriteFrame(&buf, m))

			got, err := ReadFrame(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.slot, got.Slot)
			assert.Equal(t, tt.typ, got.Type)
			tt.decode(t, got)

			_, err = ReadFrame(&buf)
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestReadFrame_stream(t *testing.T) {
	var buf bytes.Buffer
	for i, typ := range []string{MessageTypeJoin, MessageTypeRoll, MessageTypeQuit} {
		m, err := NewMessage(i, typ, nil)
		require.NoError(t, err)
		require.NoError(t, WriteFrame(&buf, m))
	}
	for i, typ := range []string{MessageTypeJoin, MessageTypeRoll, MessageTypeQuit} {
		m, err := ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, i, m.Slot)
		assert.Equal(t, typ, m.Type)
	}
}

func TestReadFrame_errors(t *testing.T) {
	valid, err := EncodeFrame(&Message{Slot: 1, Type: MessageTypeStatus})
	require.NoError(t, err)

	header := func(n uint32) []byte {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, n)
		return b
	}

	tests := []struct {
		name    string
		input   []byte
		wantErr error
		wantMsg string
	}{
		{name: "clean eof", input: nil, wantErr: io.EOF},
		{name: "partial header", input: []byte{0, 0}, wantErr: io.ErrUnexpectedEOF},
		{name: "truncated body", input: valid[:len(valid)-1], wantErr: io.ErrUnexpectedEOF},
		{name: "too large", input: header(MaxFrameSize + 1), wantErr: ErrFrameTooLarge},
		{name: "empty", input: header(0), wantErr: ErrEmptyFrame},
		{name: "not zstd", input: append(header(3), 'a', 'b', 'c'), wantErr: ErrMalformedMessage, wantMsg: "failed to decompress"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.input))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestDeserializeMessage_missingType(t *testing.T) {
	b := encoder.EncodeAll([]byte(`{"slot":1}`), nil)
	_, err := DeserializeMessage(b)
	assert.ErrorIs(t, err, ErrMalformedMessage)
	assert.ErrorContains(t, err, "missing type")
}

func TestEncodeFrame_fitsPipeBuffer(t *testing.T) {
	// A full grid snapshot must fit one atomic pipe write.
	board := &types.BoardSnapshot{
		Size:      9,
		Remaining: 45,
		Values:    make([]int8, 81),
		Fixed:     make([]bool, 81),
		PlacedBy:  make([]int8, 81),
	}
	for i := range board.Values {
		board.Values[i] = int8(i%9 + 1)
		board.Fixed[i] = i%2 == 0
		board.PlacedBy[i] = int8(i%5) - 1
	}
	snap := &types.GameSnapshot{Phase: "in_progress", Variant: "grid", Board: board}
	for i := 0; i < 5; i++ {
		snap.Players = append(snap.Players, types.PlayerSnapshot{Slot: i, Name: strings.Repeat("x", 31), State: "active"})
	}
	m, err := NewMessage(0, MessageTypeStateBroadcast, StateBroadcast{State: snap})
	require.NoError(t, err)
	frame, err := EncodeFrame(m)
	require.NoError(t, err)
	assert.Less(t, len(frame), 4096)
}
