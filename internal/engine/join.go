package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/weiqigo/server/internal/board"
	"github.com/weiqigo/server/internal/clock"
	"github.com/weiqigo/server/internal/game"
	"github.com/weiqigo/server/internal/protocol"
)

// applyJoin seats the second player, restores a rejoining player, or admits
// a spectator. Rejoining matches on username: the stored player record is
// kept, clocks included, and only its id is re-linked to the new identity,
// so a dropped-and-returned player never gains time.
func (ex *executor) applyJoin(st *game.State, sid string, cmd JoinGame, now time.Time) (applyResult, error) {
	if cmd.Username == "" && cmd.PlayerID == "" {
		return applyResult{}, protocol.NewError(protocol.KindInvalidCommand, "join requires a player identity")
	}

	if p := rejoiningPlayer(st, cmd); p != nil {
		return ex.rejoin(st, sid, cmd, p, now)
	}

	if cmd.AsSpectator || st.Status != game.StatusWaiting || len(st.Players) >= 2 {
		return ex.joinAsSpectator(st, sid, cmd)
	}

	// Seat as the second player; the game starts now.
	color := openColor(st)
	p := game.NewPlayer(cmd.PlayerID, cmd.Username, color, st.TimeControl)
	st.Players = append(st.Players, p)
	st.Status = game.StatusPlaying
	if clock.Blitz(string(st.GameType), st.TimeControl) {
		// Blitz clocks only start on the first stone; both seats begin
		// with the per-move budget installed.
		for _, seated := range st.Players {
			clock.StartBlitzTurn(&seated.PlayerClock, st.TimeControl)
		}
	} else {
		st.StartTurn(now)
	}

	ex.eng.log.Info("玩家入座，對局開始",
		zap.String("game", st.ID),
		zap.String("player", p.ID),
		zap.String("color", string(p.Color)),
	)

	res := applyResult{mutated: true}
	res.reply = joinedReply(st, p, false)
	res.emits = append(res.emits,
		broadcast(playerEvent(protocol.EvtPlayerJoined, st, p)),
		sendTo(sid, protocol.Event{Type: protocol.EvtJoinedGame, Data: joinedReply(st, p, false)}),
		broadcast(gameStateEvent(st, protocol.EvtGameState)),
	)
	for _, seated := range st.Players {
		res.emits = append(res.emits, broadcast(timeUpdateEvent(st, seated, seated.PlayerClock)))
	}
	return res, nil
}

func rejoiningPlayer(st *game.State, cmd JoinGame) *game.Player {
	if cmd.Username != "" {
		if p := st.PlayerByUsername(cmd.Username); p != nil {
			return p
		}
	}
	if cmd.PlayerID != "" {
		if p := st.PlayerByID(cmd.PlayerID); p != nil {
			return p
		}
	}
	return nil
}

func (ex *executor) rejoin(st *game.State, sid string, cmd JoinGame, p *game.Player, now time.Time) (applyResult, error) {
	mutated := false
	if cmd.PlayerID != "" && p.ID != cmd.PlayerID {
		relinkPlayerID(st, p, cmd.PlayerID)
		mutated = true
	}

	res := applyResult{mutated: mutated, reply: joinedReply(st, p, false)}
	res.emits = append(res.emits,
		sendTo(sid, protocol.Event{Type: protocol.EvtJoinedGame, Data: joinedReply(st, p, false)}),
		sendTo(sid, gameStateEvent(st, protocol.EvtGameState)),
	)
	for _, seated := range st.Players {
		res.emits = append(res.emits, sendTo(sid, timeUpdateEvent(st, seated, ex.projectClock(st, seated, now))))
	}
	res.emits = append(res.emits, broadcast(playerEvent(protocol.EvtPlayerJoined, st, p)))
	return res, nil
}

// relinkPlayerID rewrites the player's id and every history reference to it
// so authorization keeps working across a reconnect under a fresh identity.
func relinkPlayerID(st *game.State, p *game.Player, newID string) {
	oldID := p.ID
	p.ID = newID
	for i := range st.History {
		if st.History[i].PlayerID == oldID {
			st.History[i].PlayerID = newID
		}
	}
	if st.LastMovePlayerID == oldID {
		st.LastMovePlayerID = newID
	}
	if st.UndoRequest != nil && st.UndoRequest.RequestedBy == oldID {
		st.UndoRequest.RequestedBy = newID
	}
}

func (ex *executor) joinAsSpectator(st *game.State, sid string, cmd JoinGame) (applyResult, error) {
	if !cmd.AsSpectator {
		return applyResult{}, protocol.NewError(protocol.KindGameFull, "both seats are taken")
	}
	p := st.SpectatorByID(cmd.PlayerID)
	mutated := false
	if p == nil {
		p = game.NewPlayer(cmd.PlayerID, cmd.Username, "", clock.TimeControl{})
		p.IsSpectator = true
		st.Spectators = append(st.Spectators, p)
		mutated = true
	}

	res := applyResult{mutated: mutated, reply: joinedReply(st, p, true)}
	res.emits = append(res.emits,
		sendTo(sid, protocol.Event{Type: protocol.EvtJoinedGame, Data: joinedReply(st, p, true)}),
		sendTo(sid, gameStateEvent(st, protocol.EvtGameState)),
		broadcast(playerEvent(protocol.EvtPlayerJoined, st, p)),
	)
	return res, nil
}

func joinedReply(st *game.State, p *game.Player, spectator bool) protocol.JoinedGamePayload {
	return protocol.JoinedGamePayload{
		Success:     true,
		GameID:      st.ID,
		PlayerID:    p.ID,
		NumPlayers:  len(st.Players),
		Status:      st.Status,
		CurrentTurn: st.CurrentTurn,
		AsSpectator: spectator,
	}
}

// openColor returns the seat color not yet taken.
func openColor(st *game.State) board.Color {
	if st.PlayerByColor(board.Black) == nil {
		return board.Black
	}
	return board.White
}

func (ex *executor) applyLeave(st *game.State, cmd Leave) (applyResult, error) {
	res := applyResult{}
	if sp := st.SpectatorByID(cmd.PlayerID); sp != nil {
		st.Spectators = removePlayer(st.Spectators, sp.ID)
		res.mutated = true
		res.emits = append(res.emits, broadcast(playerEvent(protocol.EvtPlayerLeft, st, sp)))
		return res, nil
	}
	if p := st.PlayerByID(cmd.PlayerID); p != nil {
		// Seated players keep their seat; only the group is informed.
		res.emits = append(res.emits, broadcast(playerEvent(protocol.EvtPlayerLeft, st, p)))
	}
	return res, nil
}

func (ex *executor) applyDisconnect(st *game.State, cmd Disconnect) (applyResult, error) {
	res := applyResult{}
	if p := st.PlayerByID(cmd.PlayerID); p != nil {
		res.emits = append(res.emits, broadcast(playerEvent(protocol.EvtPlayerDisconnected, st, p)))
	} else if sp := st.SpectatorByID(cmd.PlayerID); sp != nil {
		st.Spectators = removePlayer(st.Spectators, sp.ID)
		res.mutated = true
		res.emits = append(res.emits, broadcast(playerEvent(protocol.EvtPlayerDisconnected, st, sp)))
	}
	return res, nil
}

func removePlayer(list []*game.Player, id string) []*game.Player {
	out := list[:0]
	for _, p := range list {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}
