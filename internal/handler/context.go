package handler

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/weiqigo/server/internal/engine"
	"github.com/weiqigo/server/internal/net"
	"github.com/weiqigo/server/internal/protocol"
	"github.com/weiqigo/server/internal/store"
)

// Deps holds shared dependencies injected into all command handlers.
type Deps struct {
	Engine *engine.Engine
	Hub    *net.Hub
	Store  store.Store
	Log    *zap.Logger
}

// RegisterAll registers all command handlers into the registry. Only
// createGame and joinGame are accepted before a session is bound to a game.
func RegisterAll(reg *protocol.Registry, deps *Deps) {
	// Entry commands
	reg.Register(protocol.CmdCreateGame, true,
		func(sess any, data json.RawMessage) {
			HandleCreateGame(sess.(*net.Session), data, deps)
		},
	)
	reg.Register(protocol.CmdJoinGame, true,
		func(sess any, data json.RawMessage) {
			HandleJoinGame(sess.(*net.Session), data, deps)
		},
	)

	// In-game commands
	reg.Register(protocol.CmdMakeMove, false,
		func(sess any, data json.RawMessage) {
			HandleMakeMove(sess.(*net.Session), data, deps)
		},
	)
	reg.Register(protocol.CmdPassTurn, false,
		func(sess any, data json.RawMessage) {
			HandlePassTurn(sess.(*net.Session), data, deps)
		},
	)
	reg.Register(protocol.CmdResignGame, false,
		func(sess any, data json.RawMessage) {
			HandleResign(sess.(*net.Session), data, deps)
		},
	)
	reg.Register(protocol.CmdRequestUndo, false,
		func(sess any, data json.RawMessage) {
			HandleRequestUndo(sess.(*net.Session), data, deps)
		},
	)
	reg.Register(protocol.CmdRespondUndo, false,
		func(sess any, data json.RawMessage) {
			HandleRespondUndo(sess.(*net.Session), data, deps)
		},
	)

	// Scoring phase
	reg.Register(protocol.CmdToggleDeadStone, false,
		func(sess any, data json.RawMessage) {
			HandleToggleDeadStone(sess.(*net.Session), data, deps)
		},
	)
	reg.Register(protocol.CmdSyncDeadStones, false,
		func(sess any, data json.RawMessage) {
			HandleSyncDeadStones(sess.(*net.Session), data, deps)
		},
	)
	reg.Register(protocol.CmdGameEnded, false,
		func(sess any, data json.RawMessage) {
			HandleGameEnded(sess.(*net.Session), data, deps)
		},
	)
	reg.Register(protocol.CmdCancelScoring, false,
		func(sess any, data json.RawMessage) {
			HandleCancelScoring(sess.(*net.Session), data, deps)
		},
	)

	// Ambient commands
	reg.Register(protocol.CmdChatMessage, false,
		func(sess any, data json.RawMessage) {
			HandleChat(sess.(*net.Session), data, deps)
		},
	)
	reg.Register(protocol.CmdRequestSync, false,
		func(sess any, data json.RawMessage) {
			HandleRequestSync(sess.(*net.Session), data, deps)
		},
	)
	reg.Register(protocol.CmdTimerTick, false,
		func(sess any, data json.RawMessage) {
			HandleTimerTick(sess.(*net.Session), data, deps)
		},
	)
	reg.Register(protocol.CmdLeaveGame, false,
		func(sess any, data json.RawMessage) {
			HandleLeaveGame(sess.(*net.Session), data, deps)
		},
	)
}
