package handler

import (
	"encoding/json"

	"github.com/weiqigo/server/internal/engine"
	"github.com/weiqigo/server/internal/net"
	"github.com/weiqigo/server/internal/protocol"
)

// HandleToggleDeadStone processes toggleDeadStone during scoring.
func HandleToggleDeadStone(sess *net.Session, data json.RawMessage, deps *Deps) {
	var p protocol.ToggleDeadStonePayload
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(sess)
		return
	}
	submit(sess, deps, gameIDFor(sess, p.GameID), engine.ToggleDeadStone{
		Position: p.Position,
		PlayerID: p.PlayerID,
	})
}

// HandleSyncDeadStones processes syncDeadStones: a wholesale replacement of
// the dead-stone set.
func HandleSyncDeadStones(sess *net.Session, data json.RawMessage, deps *Deps) {
	var p protocol.SyncDeadStonesPayload
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(sess)
		return
	}
	submit(sess, deps, gameIDFor(sess, p.GameID), engine.SyncDeadStones{
		PlayerID:   p.PlayerID,
		DeadStones: p.DeadStones,
	})
}

// HandleGameEnded processes gameEnded: both players agreed on the dead
// stones, so the score is computed and the game finishes.
func HandleGameEnded(sess *net.Session, data json.RawMessage, deps *Deps) {
	var p protocol.GameEndedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(sess)
		return
	}
	submit(sess, deps, gameIDFor(sess, p.GameID), engine.ConfirmScore{
		PlayerID: p.PlayerID,
	})
}

// HandleCancelScoring processes cancelScoring: back to play, dead markings
// discarded.
func HandleCancelScoring(sess *net.Session, data json.RawMessage, deps *Deps) {
	var p protocol.CancelScoringPayload
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(sess)
		return
	}
	submit(sess, deps, gameIDFor(sess, p.GameID), engine.CancelScoring{})
}
