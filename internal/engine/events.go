package engine

import (
	"github.com/weiqigo/server/internal/board"
	"github.com/weiqigo/server/internal/clock"
	"github.com/weiqigo/server/internal/game"
	"github.com/weiqigo/server/internal/protocol"
)

// emission is one outbound event with its destination: a single channel
// when to is set, otherwise the whole session group. apply functions build
// emissions in delivery order; the executor releases them after persist.
type emission struct {
	to  string
	evt protocol.Event
}

type applyResult struct {
	mutated bool
	emits   []emission
	reply   any
}

func broadcast(evt protocol.Event) emission { return emission{evt: evt} }

func sendTo(sid string, evt protocol.Event) emission { return emission{to: sid, evt: evt} }

// gameStateEvent snapshots the full authoritative state. The same payload
// serves gameState and syncGameState.
func gameStateEvent(st *game.State, evtType string) protocol.Event {
	return protocol.Event{Type: evtType, Data: st}
}

func timeUpdateEvent(st *game.State, p *game.Player, pc clock.PlayerClock) protocol.Event {
	return protocol.Event{Type: protocol.EvtTimeUpdate, Data: protocol.TimeUpdatePayload{
		GameID:      st.ID,
		PlayerID:    p.ID,
		Color:       p.Color,
		PlayerClock: pc,
	}}
}

func byoYomiEvent(evtType string, st *game.State, p *game.Player, pc clock.PlayerClock) protocol.Event {
	return protocol.Event{Type: evtType, Data: protocol.ByoYomiPayload{
		GameID:             st.ID,
		PlayerID:           p.ID,
		Color:              p.Color,
		ByoYomiPeriodsLeft: pc.ByoYomiPeriodsLeft,
		ByoYomiTimeLeft:    pc.ByoYomiTimeLeft,
	}}
}

func moveMadeEvent(st *game.State, mover *game.Player, pos *board.Position, pass bool, captured int) protocol.Event {
	return protocol.Event{Type: protocol.EvtMoveMade, Data: protocol.MoveMadePayload{
		GameID:        st.ID,
		Position:      pos,
		Pass:          pass,
		Color:         mover.Color,
		PlayerID:      mover.ID,
		CapturedCount: captured,
		KoPosition:    st.KoPosition,
		CurrentTurn:   st.CurrentTurn,
	}}
}

func playerEvent(evtType string, st *game.State, p *game.Player) protocol.Event {
	return protocol.Event{Type: evtType, Data: protocol.PlayerEventPayload{
		GameID:      st.ID,
		PlayerID:    p.ID,
		Username:    p.Username,
		Color:       p.Color,
		AsSpectator: p.IsSpectator,
	}}
}

func scoringEvent(evtType string, st *game.State) protocol.Event {
	return protocol.Event{Type: evtType, Data: protocol.ScoringPayload{
		GameID:     st.ID,
		DeadStones: st.DeadStones,
		Territory:  st.Territory,
	}}
}

func gameFinishedEvent(st *game.State) protocol.Event {
	return protocol.Event{Type: protocol.EvtGameFinished, Data: protocol.GameFinishedPayload{
		GameID:    st.ID,
		Winner:    st.Winner,
		Result:    st.Result,
		Score:     st.Score,
		Territory: st.Territory,
	}}
}

func timeoutEvents(st *game.State, loser *game.Player) []emission {
	return []emission{
		broadcast(protocol.Event{Type: protocol.EvtPlayerTimeout, Data: protocol.PlayerTimeoutPayload{
			GameID: st.ID,
			Color:  loser.Color,
			Winner: st.Winner,
			Result: st.Result,
		}}),
		broadcast(gameFinishedEvent(st)),
		broadcast(gameStateEvent(st, protocol.EvtGameState)),
	}
}
