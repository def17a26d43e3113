// Package protocol defines the wire surface: command and event names,
// payload schemas, the error channel, and the command registry the
// connection layer dispatches through.
package protocol

import (
	"encoding/json"

	"github.com/weiqigo/server/internal/board"
	"github.com/weiqigo/server/internal/clock"
	"github.com/weiqigo/server/internal/game"
	"github.com/weiqigo/server/internal/score"
)

// Client → server command names.
const (
	CmdCreateGame      = "createGame"
	CmdJoinGame        = "joinGame"
	CmdMakeMove        = "makeMove"
	CmdPassTurn        = "passTurn"
	CmdResignGame      = "resignGame"
	CmdToggleDeadStone = "toggleDeadStone"
	CmdSyncDeadStones  = "syncDeadStones"
	CmdCancelScoring   = "cancelScoring"
	CmdGameEnded       = "gameEnded"
	CmdRequestUndo     = "requestUndo"
	CmdRespondUndo     = "respondToUndoRequest"
	CmdChatMessage     = "chatMessage"
	CmdRequestSync     = "requestSync"
	CmdTimerTick       = "timerTick"
	CmdLeaveGame       = "leaveGame"
)

// Server → client event names.
const (
	EvtGameCreated         = "gameCreated"
	EvtGameState           = "gameState"
	EvtSyncGameState       = "syncGameState"
	EvtJoinedGame          = "joinedGame"
	EvtMoveMade            = "moveMade"
	EvtTimeUpdate          = "timeUpdate"
	EvtByoYomiStarted      = "byoYomiStarted"
	EvtByoYomiPeriodUsed   = "byoYomiPeriodUsed"
	EvtByoYomiReset        = "byoYomiReset"
	EvtPlayerTimeout       = "playerTimeout"
	EvtPlayerJoined        = "playerJoined"
	EvtPlayerLeft          = "playerLeft"
	EvtPlayerDisconnected  = "playerDisconnected"
	EvtPlayerResigned      = "playerResigned"
	EvtScoringPhaseStarted = "scoringPhaseStarted"
	EvtDeadStoneToggled    = "deadStoneToggled"
	EvtScoringCanceled     = "scoringCanceled"
	EvtGameFinished        = "gameFinished"
	EvtChatMessage         = "chatMessage"
	EvtError               = "error"
)

// Envelope frames every inbound command: a type tag plus its raw payload.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event frames every outbound message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ── Command payloads (spec'd field sets) ───────────────────────────

type CreateGamePayload struct {
	GameState game.CreateOptions `json:"gameState"`
	PlayerID  string             `json:"playerId"`
	Username  string             `json:"username"`
}

type JoinGamePayload struct {
	GameID      string `json:"gameId"`
	Code        string `json:"code"`
	PlayerID    string `json:"playerId"`
	Username    string `json:"username"`
	AsSpectator bool   `json:"asSpectator"`
	IsReconnect bool   `json:"isReconnect"`
}

type MakeMovePayload struct {
	GameID   string         `json:"gameId"`
	Position board.Position `json:"position"`
	Color    board.Color    `json:"color"`
	PlayerID string         `json:"playerId"`
}

type PassTurnPayload struct {
	GameID   string      `json:"gameId"`
	Color    board.Color `json:"color"`
	PlayerID string      `json:"playerId"`
	EndGame  bool        `json:"endGame"`
}

type ResignPayload struct {
	GameID   string      `json:"gameId"`
	PlayerID string      `json:"playerId"`
	Color    board.Color `json:"color"`
}

type ToggleDeadStonePayload struct {
	GameID   string         `json:"gameId"`
	Position board.Position `json:"position"`
	PlayerID string         `json:"playerId"`
}

type SyncDeadStonesPayload struct {
	GameID          string           `json:"gameId"`
	PlayerID        string           `json:"playerId"`
	DeadStones      []board.Position `json:"deadStones"`
	DeadBlackStones int              `json:"deadBlackStones"`
	DeadWhiteStones int              `json:"deadWhiteStones"`
}

type CancelScoringPayload struct {
	GameID string `json:"gameId"`
}

type GameEndedPayload struct {
	GameID    string                 `json:"gameId"`
	PlayerID  string                 `json:"playerId"`
	Score     *score.Result          `json:"score,omitempty"`
	Winner    board.Color            `json:"winner,omitempty"`
	Territory map[string]board.Color `json:"territory,omitempty"`
}

type RequestUndoPayload struct {
	GameID    string `json:"gameId"`
	PlayerID  string `json:"playerId"`
	MoveIndex int    `json:"moveIndex"`
}

type RespondUndoPayload struct {
	GameID    string `json:"gameId"`
	PlayerID  string `json:"playerId"`
	Accepted  bool   `json:"accepted"`
	MoveIndex int    `json:"moveIndex"`
}

type ChatMessagePayload struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

type RequestSyncPayload struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
}

type TimerTickPayload struct {
	GameID string `json:"gameId"`
}

type LeaveGamePayload struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
}

// ── Event payloads ─────────────────────────────────────────────────

type GameCreatedPayload struct {
	GameID   string `json:"gameId"`
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
}

type JoinedGamePayload struct {
	Success     bool        `json:"success"`
	GameID      string      `json:"gameId"`
	PlayerID    string      `json:"playerId"`
	NumPlayers  int         `json:"numPlayers"`
	Status      game.Status `json:"status"`
	CurrentTurn board.Color `json:"currentTurn"`
	AsSpectator bool        `json:"asSpectator"`
}

type MoveMadePayload struct {
	GameID        string          `json:"gameId"`
	Position      *board.Position `json:"position,omitempty"`
	Pass          bool            `json:"pass,omitempty"`
	Color         board.Color     `json:"color"`
	PlayerID      string          `json:"playerId"`
	CapturedCount int             `json:"capturedCount"`
	KoPosition    *board.Position `json:"koPosition,omitempty"`
	CurrentTurn   board.Color     `json:"currentTurn"`
}

type TimeUpdatePayload struct {
	GameID   string      `json:"gameId"`
	PlayerID string      `json:"playerId"`
	Color    board.Color `json:"color"`
	clock.PlayerClock
}

type ByoYomiPayload struct {
	GameID             string      `json:"gameId"`
	PlayerID           string      `json:"playerId"`
	Color              board.Color `json:"color"`
	ByoYomiPeriodsLeft int         `json:"byoYomiPeriodsLeft"`
	ByoYomiTimeLeft    float64     `json:"byoYomiTimeLeft"`
}

type PlayerTimeoutPayload struct {
	GameID string      `json:"gameId"`
	Color  board.Color `json:"color"`
	Winner board.Color `json:"winner"`
	Result string      `json:"result"`
}

type PlayerEventPayload struct {
	GameID      string      `json:"gameId"`
	PlayerID    string      `json:"playerId"`
	Username    string      `json:"username,omitempty"`
	Color       board.Color `json:"color,omitempty"`
	AsSpectator bool        `json:"asSpectator,omitempty"`
}

type ScoringPayload struct {
	GameID     string                 `json:"gameId"`
	DeadStones []board.Position       `json:"deadStones"`
	Territory  map[string]board.Color `json:"territory,omitempty"`
}

type GameFinishedPayload struct {
	GameID    string                 `json:"gameId"`
	Winner    board.Color            `json:"winner,omitempty"`
	Result    string                 `json:"result"`
	Score     *score.Result          `json:"score,omitempty"`
	Territory map[string]board.Color `json:"territory,omitempty"`
}

type ChatEventPayload struct {
	ID        string `json:"id"`
	GameID    string `json:"gameId"`
	PlayerID  string `json:"playerId"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}
