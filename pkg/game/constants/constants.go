package constants

const (
	// MaxSlots is the number of player slots in the shared state region
	MaxSlots = 5
	// MinPlayers is the default number of joined players needed to start a game
	MinPlayers = 3
	// MaxNameLen is the size of a player name including the terminating zero byte
	MaxNameLen = 32

	// WinningScore is the default score that ends a dice game
	WinningScore = 100
	// DieSides is the number of faces on each die
	DieSides = 6

	// BoardSize is the side length of the placement grid
	BoardSize = 9
	// BoxSize is the side length of a grid box
	BoxSize = 3
	// BoardCells is the number of cells on the placement grid
	BoardCells = BoardSize * BoardSize
	// GridClues is the default number of fixed cells in a generated puzzle
	GridClues = 36
	// CorrectPoints is the default reward for a correct placement
	CorrectPoints = 10
	// WrongPenalty is the default penalty for a wrong placement
	WrongPenalty = 5

	// MaxLogMsg is the size of a queued log message including the terminating zero byte
	MaxLogMsg = 256
	// LogQueueSize is the capacity of the shared event log queue
	LogQueueSize = 100
	// MaxLedgerEntries is the capacity of the shared score ledger
	MaxLedgerEntries = 100

	// NoPlayer marks an empty current turn, winner or cell owner
	NoPlayer = -1
)
