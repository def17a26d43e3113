package handler

import (
	"context"
	"encoding/json"

	"github.com/weiqigo/server/internal/engine"
	"github.com/weiqigo/server/internal/net"
	"github.com/weiqigo/server/internal/protocol"
)

// gameIDFor resolves the target game: the payload wins, the session binding
// backs it up.
func gameIDFor(sess *net.Session, payloadID string) string {
	if payloadID != "" {
		return payloadID
	}
	gameID, _ := sess.Binding()
	return gameID
}

// submit runs cmd against the game and reports any rejection back to the
// initiating session.
func submit(sess *net.Session, deps *Deps, gameID string, cmd engine.Command) {
	if _, err := deps.Engine.Submit(context.Background(), gameID, sess.ID, cmd); err != nil {
		fail(sess, err)
	}
}

// HandleMakeMove processes makeMove: a stone placement for the payload's
// color at the payload's position.
func HandleMakeMove(sess *net.Session, data json.RawMessage, deps *Deps) {
	var p protocol.MakeMovePayload
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(sess)
		return
	}
	submit(sess, deps, gameIDFor(sess, p.GameID), engine.PlaceStone{
		Position: p.Position,
		Color:    p.Color,
		PlayerID: p.PlayerID,
	})
}

// HandlePassTurn processes passTurn. The endGame flag carries the client's
// intent to finish; the engine still requires two consecutive passes before
// scoring starts.
func HandlePassTurn(sess *net.Session, data json.RawMessage, deps *Deps) {
	var p protocol.PassTurnPayload
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(sess)
		return
	}
	submit(sess, deps, gameIDFor(sess, p.GameID), engine.PassTurn{
		Color:    p.Color,
		PlayerID: p.PlayerID,
		EndGame:  p.EndGame,
	})
}

// HandleResign processes resignGame.
func HandleResign(sess *net.Session, data json.RawMessage, deps *Deps) {
	var p protocol.ResignPayload
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(sess)
		return
	}
	submit(sess, deps, gameIDFor(sess, p.GameID), engine.Resign{
		Color:    p.Color,
		PlayerID: p.PlayerID,
	})
}

// HandleRequestUndo processes requestUndo.
func HandleRequestUndo(sess *net.Session, data json.RawMessage, deps *Deps) {
	var p protocol.RequestUndoPayload
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(sess)
		return
	}
	submit(sess, deps, gameIDFor(sess, p.GameID), engine.RequestUndo{
		PlayerID:  p.PlayerID,
		MoveIndex: p.MoveIndex,
	})
}

// HandleRespondUndo processes respondToUndoRequest.
func HandleRespondUndo(sess *net.Session, data json.RawMessage, deps *Deps) {
	var p protocol.RespondUndoPayload
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(sess)
		return
	}
	submit(sess, deps, gameIDFor(sess, p.GameID), engine.RespondUndo{
		PlayerID:  p.PlayerID,
		Accepted:  p.Accepted,
		MoveIndex: p.MoveIndex,
	})
}
