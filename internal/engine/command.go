package engine

import (
	"github.com/weiqigo/server/internal/board"
	"github.com/weiqigo/server/internal/game"
)

// Command is the typed command sum dispatched to a game's executor. The
// initiating channel travels alongside in Submit, so replies and errors
// reach only that session; broadcasts go to the whole session group.
type Command interface {
	isCommand()
}

type base struct{}

func (base) isCommand() {}

// CreateGame allocates a new session for the creating player.
type CreateGame struct {
	base
	Opts     game.CreateOptions
	PlayerID string
	Username string
}

// JoinGame seats, rejoins, or spectates the initiator.
type JoinGame struct {
	base
	PlayerID    string
	Username    string
	AsSpectator bool
	IsReconnect bool
}

// PlaceStone commits a stone placement for Color at Position.
type PlaceStone struct {
	base
	Position board.Position
	Color    board.Color
	PlayerID string
}

// PassTurn commits a pass; two consecutive passes open scoring.
type PassTurn struct {
	base
	Color    board.Color
	PlayerID string
	EndGame  bool
}

// Resign forfeits the game for Color.
type Resign struct {
	base
	Color    board.Color
	PlayerID string
}

// ToggleDeadStone flips the dead marking of the group at Position.
type ToggleDeadStone struct {
	base
	Position board.Position
	PlayerID string
}

// SyncDeadStones replaces the dead-stone set wholesale (client bulk edit).
type SyncDeadStones struct {
	base
	PlayerID   string
	DeadStones []board.Position
}

// ConfirmScore finalizes the scoring phase.
type ConfirmScore struct {
	base
	PlayerID string
}

// CancelScoring abandons the scoring phase and resumes play.
type CancelScoring struct {
	base
}

// RequestUndo records a pending undo request down to MoveIndex.
type RequestUndo struct {
	base
	PlayerID  string
	MoveIndex int
}

// RespondUndo accepts or rejects the pending undo request.
type RespondUndo struct {
	base
	PlayerID  string
	Accepted  bool
	MoveIndex int
}

// Chat broadcasts a chat line; never mutates game state.
type Chat struct {
	base
	PlayerID string
	Username string
	Message  string
}

// RequestSync replies with the authoritative state and clock projections.
type RequestSync struct {
	base
	PlayerID string
}

// TimerTick drives display-clock projection and timeout detection. It
// mutates nothing except on a detected timeout.
type TimerTick struct {
	base
}

// Leave detaches the initiator from the session group.
type Leave struct {
	base
	PlayerID string
}

// Disconnect is the internal command raised when a channel drops without
// leaving. The player keeps their seat; the group is informed.
type Disconnect struct {
	base
	PlayerID string
}
