package shm

import (
	"bytes"
	"unicode/utf8"
	"unsafe"

	"github.com/cbodonnell/tabletop/pkg/game/constants"
)

const (
	// Magic identifies a tabletop state region ("TTSR")
	Magic uint32 = 0x54545352
	// Version is bumped whenever Layout changes shape
	Version uint32 = 1
)

// Phase is the lifecycle phase of the shared game.
type Phase int32

const (
	PhaseAwaitingPlayers Phase = iota
	PhaseInProgress
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingPlayers:
		return "awaiting_players"
	case PhaseInProgress:
		return "in_progress"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// PlayerState is the connection state of a slot.
type PlayerState int32

const (
	PlayerDisconnected PlayerState = iota
	PlayerWaiting
	PlayerActive
	PlayerFinished
)

func (s PlayerState) String() string {
	switch s {
	case PlayerDisconnected:
		return "disconnected"
	case PlayerWaiting:
		return "waiting"
	case PlayerActive:
		return "active"
	case PlayerFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// VariantKind selects the turn resolution rules of a game.
type VariantKind int32

const (
	VariantDice VariantKind = iota
	VariantGrid
)

func (v VariantKind) String() string {
	switch v {
	case VariantDice:
		return "dice"
	case VariantGrid:
		return "grid"
	default:
		return "unknown"
	}
}

// ParseVariantKind parses the configuration name of a variant.
func ParseVariantKind(name string) (VariantKind, bool) {
	switch name {
	case "dice":
		return VariantDice, true
	case "grid":
		return VariantGrid, true
	default:
		return VariantDice, false
	}
}

// Layout is the complete contents of the shared region. It holds no Go
// pointers, slices or strings so it can be overlaid on mapped memory.
type Layout struct {
	Header Header
	Game   GameSection
	Log    LogSection
	Ledger LedgerSection
}

// LayoutSize is the size in bytes of the shared region.
const LayoutSize = int(unsafe.Sizeof(Layout{}))

type Header struct {
	Magic    uint32
	Version  uint32
	OwnerPID int64
	Ready    uint32
	_        uint32
}

// GameSection is guarded by its Lock word. Notify is advanced on every change
// waiters may care about; TurnSignal only on turn changes.
type GameSection struct {
	Lock        uint32
	Notify      uint32
	Phase       Phase
	Variant     VariantKind
	NumPlayers  int32
	CurrentTurn int32
	Winner      int32
	Settled     bool
	Shutdown    bool
	_           [2]byte
	TurnSignal  uint64
	GameSeq     uint64
	GameID      [16]byte
	Players     [constants.MaxSlots]Player
	Board       Board
}

type Player struct {
	Slot       int32
	State      PlayerState
	Name       [constants.MaxNameLen]byte
	Score      int32
	Correct    int32
	Incorrect  int32
	Rolls      int32
	HandlerPID int32
	// Reserved marks a slot claimed during the current game; it is not handed
	// to a new connection until the game is reset.
	Reserved bool
	// Counted marks a player that was Active when the current game finished
	// and is part of its result.
	Counted bool
	_       [2]byte
}

type Board struct {
	Remaining int32
	Cells     [constants.BoardCells]Cell
}

type Cell struct {
	Value    int8
	Solution int8
	Fixed    bool
	PlacedBy int8
}

type LogSection struct {
	Lock    uint32
	Notify  uint32
	Head    int32
	Tail    int32
	Count   int32
	Closed  bool
	_       [3]byte
	Dropped uint64
	Entries [constants.LogQueueSize]LogEntry
}

type LogEntry struct {
	Timestamp int64
	Len       int32
	_         int32
	Text      [constants.MaxLogMsg]byte
}

type LedgerSection struct {
	Lock    uint32
	Notify  uint32
	Loaded  bool
	_       [3]byte
	Count   int32
	Version uint64
	Entries [constants.MaxLedgerEntries]LedgerRecord
}

type LedgerRecord struct {
	Name      [constants.MaxNameLen]byte
	Wins      int32
	Correct   int32
	Incorrect int32
}

// init writes the initial state of a freshly created, zero-filled region.
func (l *Layout) init(pid int) {
	l.Header.Magic = Magic
	l.Header.Version = Version
	l.Header.OwnerPID = int64(pid)

	g := &l.Game
	g.Phase = PhaseAwaitingPlayers
	g.CurrentTurn = constants.NoPlayer
	g.Winner = constants.NoPlayer
	g.Settled = true
	for i := range g.Players {
		g.Players[i] = Player{Slot: int32(i), State: PlayerDisconnected}
	}
	g.Board.Reset()
}

// Player returns the record of slot.
func (g *GameSection) Player(slot int) *Player {
	return &g.Players[slot]
}

// Reset empties every cell.
func (b *Board) Reset() {
	b.Remaining = 0
	for i := range b.Cells {
		b.Cells[i] = Cell{PlacedBy: constants.NoPlayer}
	}
}

// Cell returns the cell at row, col.
func (b *Board) Cell(row, col int) *Cell {
	return &b.Cells[row*constants.BoardSize+col]
}

// SetName stores name, truncated to fit with a terminating zero byte.
func (p *Player) SetName(name string) {
	putString(p.Name[:], name)
}

// NameString returns the stored name.
func (p *Player) NameString() string {
	return getString(p.Name[:])
}

func (r *LedgerRecord) SetName(name string) {
	putString(r.Name[:], name)
}

func (r *LedgerRecord) NameString() string {
	return getString(r.Name[:])
}

// SetText stores text, truncated to fit with a terminating zero byte.
func (e *LogEntry) SetText(text string) {
	n := putString(e.Text[:], text)
	e.Len = int32(n)
}

func (e *LogEntry) TextString() string {
	return string(e.Text[:e.Len])
}

func putString(dst []byte, s string) int {
	n := copy(dst, fitString(s, len(dst)-1))
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	return n
}

func getString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// fitString cuts s to at most limit bytes without splitting a rune.
func fitString(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	n := limit
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// TruncateName returns name cut to what a fixed name field can hold.
func TruncateName(name string) string {
	return fitString(name, constants.MaxNameLen-1)
}
