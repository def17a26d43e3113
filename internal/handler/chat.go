package handler

import (
	"encoding/json"

	"github.com/weiqigo/server/internal/engine"
	"github.com/weiqigo/server/internal/net"
	"github.com/weiqigo/server/internal/protocol"
)

// HandleChat processes chatMessage. Chat rides the game topic so spectators
// on other instances see it too, but it never touches game state.
func HandleChat(sess *net.Session, data json.RawMessage, deps *Deps) {
	var p protocol.ChatMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(sess)
		return
	}
	if p.PlayerID == "" {
		_, p.PlayerID = sess.Binding()
	}
	submit(sess, deps, gameIDFor(sess, p.GameID), engine.Chat{
		PlayerID: p.PlayerID,
		Username: p.Username,
		Message:  p.Message,
	})
}

// HandleRequestSync processes requestSync: the client wants the
// authoritative snapshot, e.g. after a reconnect or a store error.
func HandleRequestSync(sess *net.Session, data json.RawMessage, deps *Deps) {
	var p protocol.RequestSyncPayload
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(sess)
		return
	}
	submit(sess, deps, gameIDFor(sess, p.GameID), engine.RequestSync{
		PlayerID: p.PlayerID,
	})
}

// HandleTimerTick processes timerTick, the client's 1/s clock heartbeat.
func HandleTimerTick(sess *net.Session, data json.RawMessage, deps *Deps) {
	var p protocol.TimerTickPayload
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(sess)
		return
	}
	submit(sess, deps, gameIDFor(sess, p.GameID), engine.TimerTick{})
}
