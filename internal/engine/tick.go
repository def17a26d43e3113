package engine

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/weiqigo/server/internal/clock"
	"github.com/weiqigo/server/internal/game"
	"github.com/weiqigo/server/internal/protocol"
)

const maxChatLength = 500

func (ex *executor) applyChat(st *game.State, cmd Chat, now time.Time) (applyResult, error) {
	if cmd.Message == "" {
		return applyResult{}, protocol.NewError(protocol.KindInvalidCommand, "empty chat message")
	}
	msg := cmd.Message
	if len(msg) > maxChatLength {
		cut := maxChatLength
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	username := cmd.Username
	if username == "" {
		if p := st.PlayerByID(cmd.PlayerID); p != nil {
			username = p.Username
		} else if sp := st.SpectatorByID(cmd.PlayerID); sp != nil {
			username = sp.Username
		}
	}

	return applyResult{
		emits: []emission{
			broadcast(protocol.Event{Type: protocol.EvtChatMessage, Data: protocol.ChatEventPayload{
				ID:        uuid.NewString(),
				GameID:    st.ID,
				PlayerID:  cmd.PlayerID,
				Username:  username,
				Message:   msg,
				Timestamp: now.UnixMilli(),
			}}),
		},
	}, nil
}

// applyRequestSync replies with the authoritative snapshot plus projected
// clocks. It never mutates, so clients may call it any time to recover.
func (ex *executor) applyRequestSync(st *game.State, sid string, cmd RequestSync, now time.Time) (applyResult, error) {
	res := applyResult{}
	res.emits = append(res.emits, sendTo(sid, gameStateEvent(st, protocol.EvtSyncGameState)))
	for _, p := range st.Players {
		res.emits = append(res.emits, sendTo(sid, timeUpdateEvent(st, p, ex.projectClock(st, p, now))))
	}
	return res, nil
}

// applyTimerTick projects the running clock for display, detects a player
// running out of time between moves, and piggybacks a periodic full-state
// resync. Display projections never touch the committed clocks.
func (ex *executor) applyTimerTick(st *game.State, cmd TimerTick, now time.Time) (applyResult, error) {
	if st.Status != game.StatusPlaying || st.LastMoveTime == nil {
		return applyResult{}, nil
	}
	cur := st.PlayerByColor(st.CurrentTurn)
	if cur == nil {
		return applyResult{}, nil
	}

	projected, timedOut := clock.Project(cur.PlayerClock, st.TimeControl, string(st.GameType), st.Elapsed(now))
	if timedOut {
		return ex.finishOnTimeout(st, cur), nil
	}

	res := applyResult{}

	// Overtime transitions fire once, on the tick that crosses them.
	key := string(cur.Color)
	mark, seen := ex.tickByoYomi[key]
	if !seen {
		mark = tickClockMark{inByoYomi: cur.IsInByoYomi, periodsLeft: cur.ByoYomiPeriodsLeft}
	}
	if projected.IsInByoYomi && !mark.inByoYomi {
		res.emits = append(res.emits, broadcast(byoYomiEvent(protocol.EvtByoYomiStarted, st, cur, projected)))
	}
	if projected.IsInByoYomi && projected.ByoYomiPeriodsLeft < mark.periodsLeft {
		res.emits = append(res.emits, broadcast(byoYomiEvent(protocol.EvtByoYomiPeriodUsed, st, cur, projected)))
	}
	ex.tickByoYomi[key] = tickClockMark{inByoYomi: projected.IsInByoYomi, periodsLeft: projected.ByoYomiPeriodsLeft}

	res.emits = append(res.emits, broadcast(timeUpdateEvent(st, cur, projected)))

	if now.Sub(ex.lastResync) >= ResyncInterval {
		ex.lastResync = now
		res.emits = append(res.emits, broadcast(gameStateEvent(st, protocol.EvtGameState)))
	}
	return res, nil
}

// projectClock returns the display clock for p: projected forward when it
// is p's turn and the clock is running, committed otherwise.
func (ex *executor) projectClock(st *game.State, p *game.Player, now time.Time) clock.PlayerClock {
	if st.Status == game.StatusPlaying && st.LastMoveTime != nil && p.Color == st.CurrentTurn {
		projected, _ := clock.Project(p.PlayerClock, st.TimeControl, string(st.GameType), st.Elapsed(now))
		return projected
	}
	return p.PlayerClock
}
