package handler

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/weiqigo/server/internal/engine"
	"github.com/weiqigo/server/internal/net"
	"github.com/weiqigo/server/internal/protocol"
)

// fail sends a command rejection to the initiating session only.
func fail(sess *net.Session, err error) {
	sess.Send(protocol.ErrorEvent(err))
}

func badPayload(sess *net.Session) {
	fail(sess, protocol.NewError(protocol.KindInvalidCommand, "malformed payload"))
}

// HandleCreateGame processes createGame: allocate the game, bind this
// channel to it, and record the socket→game mapping for reconnect cleanup.
func HandleCreateGame(sess *net.Session, data json.RawMessage, deps *Deps) {
	var p protocol.CreateGamePayload
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(sess)
		return
	}
	if p.PlayerID == "" {
		p.PlayerID = uuid.NewString()
	}

	ctx := context.Background()
	st, err := deps.Engine.Create(ctx, sess.ID, engine.CreateGame{
		Opts:     p.GameState,
		PlayerID: p.PlayerID,
		Username: p.Username,
	})
	if err != nil {
		fail(sess, err)
		return
	}

	if err := deps.Hub.Bind(ctx, sess, st.ID, p.PlayerID); err != nil {
		deps.Log.Warn("群組訂閱失敗", zap.String("game", st.ID), zap.Error(err))
	}
	if err := deps.Store.SetSocketGame(ctx, sess.ID, st.ID); err != nil {
		deps.Log.Warn("socket 對應寫入失敗", zap.String("game", st.ID), zap.Error(err))
	}
}

// HandleJoinGame processes joinGame. The game is resolved by id first, then
// by join code. The channel is bound before the command runs so the joiner
// sees the join broadcasts.
func HandleJoinGame(sess *net.Session, data json.RawMessage, deps *Deps) {
	var p protocol.JoinGamePayload
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(sess)
		return
	}
	if p.PlayerID == "" {
		p.PlayerID = uuid.NewString()
	}

	ctx := context.Background()
	gameID := p.GameID
	if gameID == "" && p.Code != "" {
		id, err := deps.Store.GetSessionByCode(ctx, p.Code)
		if err != nil {
			fail(sess, err)
			return
		}
		gameID = id
	}
	if gameID == "" {
		fail(sess, protocol.NewError(protocol.KindUnknownGame, "no such game or code"))
		return
	}

	if err := deps.Hub.Bind(ctx, sess, gameID, p.PlayerID); err != nil {
		fail(sess, err)
		return
	}

	reply, err := deps.Engine.Submit(ctx, gameID, sess.ID, engine.JoinGame{
		PlayerID:    p.PlayerID,
		Username:    p.Username,
		AsSpectator: p.AsSpectator,
		IsReconnect: p.IsReconnect,
	})
	if err != nil {
		deps.Hub.Unbind(sess)
		fail(sess, err)
		return
	}

	// Rejoining players may come back under a fresh identity; rebind with
	// the id the engine settled on.
	if joined, ok := reply.(protocol.JoinedGamePayload); ok && joined.PlayerID != p.PlayerID {
		if err := deps.Hub.Bind(ctx, sess, gameID, joined.PlayerID); err != nil {
			deps.Log.Warn("群組重綁失敗", zap.String("game", gameID), zap.Error(err))
		}
	}
	if err := deps.Store.SetSocketGame(ctx, sess.ID, gameID); err != nil {
		deps.Log.Warn("socket 對應寫入失敗", zap.String("game", gameID), zap.Error(err))
	}
}

// HandleLeaveGame processes leaveGame: inform the group, then detach and
// drop the socket mapping.
func HandleLeaveGame(sess *net.Session, data json.RawMessage, deps *Deps) {
	var p protocol.LeaveGamePayload
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(sess)
		return
	}
	gameID, playerID := sess.Binding()
	if p.PlayerID != "" {
		playerID = p.PlayerID
	}

	ctx := context.Background()
	if _, err := deps.Engine.Submit(ctx, gameID, sess.ID, engine.Leave{PlayerID: playerID}); err != nil {
		fail(sess, err)
	}
	deps.Hub.Unbind(sess)
	deps.Store.DelSocketGame(ctx, sess.ID)
}

// OnSessionClose is the hub-side cleanup when a channel drops without
// leaving: the seat is kept, the group is told, the socket mapping dies.
func OnSessionClose(deps *Deps) func(*net.Session) {
	return func(sess *net.Session) {
		gameID, playerID := sess.Binding()
		deps.Hub.Forget(sess)

		ctx := context.Background()
		deps.Store.DelSocketGame(ctx, sess.ID)
		if gameID == "" {
			return
		}
		// A slow-consumer close fires on the executor's own emission path;
		// the notification must not wait on that same executor.
		go func() {
			if _, err := deps.Engine.Submit(context.Background(), gameID, "", engine.Disconnect{PlayerID: playerID}); err != nil {
				deps.Log.Debug("斷線通知失敗", zap.String("game", gameID), zap.Error(err))
			}
		}()
	}
}
