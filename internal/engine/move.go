package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/weiqigo/server/internal/board"
	"github.com/weiqigo/server/internal/clock"
	"github.com/weiqigo/server/internal/game"
	"github.com/weiqigo/server/internal/protocol"
	"github.com/weiqigo/server/internal/score"
)

// authorizeMove checks phase, turn, and seat ownership for a move-class
// command. Spectators and the off-turn player are rejected before the
// kernel ever runs.
func authorizeMove(st *game.State, playerID string, color board.Color) (*game.Player, error) {
	if st.Status != game.StatusPlaying {
		return nil, protocol.NewError(protocol.KindWrongPhase, "game is not in play")
	}
	p := st.PlayerByID(playerID)
	if p == nil || p.Color != color {
		return nil, protocol.NewError(protocol.KindUnauthorizedForColor, "player does not hold that color")
	}
	if color != st.CurrentTurn {
		return nil, protocol.NewError(protocol.KindNotYourTurn, "not this color's turn")
	}
	return p, nil
}

func (ex *executor) applyPlaceStone(st *game.State, cmd PlaceStone, now time.Time) (applyResult, error) {
	p, err := authorizeMove(st, cmd.PlayerID, cmd.Color)
	if err != nil {
		return applyResult{}, err
	}

	kres, err := board.Apply(st.Board, cmd.Position, cmd.Color, st.KoPosition)
	if err != nil {
		return applyResult{}, err
	}

	elapsed := st.Elapsed(now)
	clockEvt := clock.ApplyMove(&p.PlayerClock, st.TimeControl, string(st.GameType), elapsed)
	if clockEvt == clock.EventTimeout {
		return ex.finishOnTimeout(st, p), nil
	}

	captured := len(kres.Captured)
	st.Board.Stones = kres.Stones
	st.CapturedStones[cmd.Color] += captured
	st.KoPosition = kres.KoCandidate

	pos := cmd.Position
	st.LastMove = &pos
	st.LastMoveColor = cmd.Color
	st.LastMovePlayerID = p.ID
	st.LastMoveCapturedCount = captured
	st.History = append(st.History, moveRecord(p, &pos, false, captured, elapsed, now))

	st.CurrentTurn = cmd.Color.Opponent()
	st.StartTurn(now)
	resetBlitzBudget(st)
	delete(ex.tickByoYomi, string(p.Color))

	ex.eng.log.Debug("落子",
		zap.String("game", st.ID),
		zap.String("color", string(cmd.Color)),
		zap.Int("x", pos.X),
		zap.Int("y", pos.Y),
		zap.Int("captured", captured),
	)

	res := applyResult{mutated: true}
	res.emits = appendClockEmission(res.emits, clockEvt, st, p)
	res.emits = append(res.emits,
		broadcast(moveMadeEvent(st, p, &pos, false, captured)),
		broadcast(gameStateEvent(st, protocol.EvtGameState)),
		broadcast(timeUpdateEvent(st, p, p.PlayerClock)),
	)
	return res, nil
}

func (ex *executor) applyPassTurn(st *game.State, cmd PassTurn, now time.Time) (applyResult, error) {
	p, err := authorizeMove(st, cmd.PlayerID, cmd.Color)
	if err != nil {
		return applyResult{}, err
	}

	elapsed := st.Elapsed(now)
	clockEvt := clock.ApplyMove(&p.PlayerClock, st.TimeControl, string(st.GameType), elapsed)
	if clockEvt == clock.EventTimeout {
		return ex.finishOnTimeout(st, p), nil
	}

	// A pass is a move: it consumes the ko ban like any other.
	st.KoPosition = nil
	st.LastMove = nil
	st.LastMoveColor = cmd.Color
	st.LastMovePlayerID = p.ID
	st.LastMoveCapturedCount = 0
	st.History = append(st.History, moveRecord(p, nil, true, 0, elapsed, now))
	st.CurrentTurn = cmd.Color.Opponent()
	delete(ex.tickByoYomi, string(p.Color))

	res := applyResult{mutated: true}
	res.emits = appendClockEmission(res.emits, clockEvt, st, p)
	res.emits = append(res.emits, broadcast(moveMadeEvent(st, p, nil, true, 0)))

	// The endGame flag is advisory: scoring is entered only by two
	// consecutive passes regardless of the client's intent.
	if st.TwoConsecutivePasses() {
		st.Status = game.StatusScoring
		st.LastMoveTime = nil
		st.UndoRequest = nil
		st.DeadStones = []board.Position{}
		st.Territory = score.Territory(st.Board)
		ex.eng.log.Info("進入數子階段", zap.String("game", st.ID))
		res.emits = append(res.emits, broadcast(scoringEvent(protocol.EvtScoringPhaseStarted, st)))
	} else {
		st.StartTurn(now)
		resetBlitzBudget(st)
	}

	res.emits = append(res.emits,
		broadcast(gameStateEvent(st, protocol.EvtGameState)),
		broadcast(timeUpdateEvent(st, p, p.PlayerClock)),
	)
	return res, nil
}

func (ex *executor) applyResign(st *game.State, cmd Resign) (applyResult, error) {
	if st.Status != game.StatusPlaying && st.Status != game.StatusScoring {
		return applyResult{}, protocol.NewError(protocol.KindWrongPhase, "game is not in progress")
	}
	p := st.PlayerByID(cmd.PlayerID)
	if p == nil || (cmd.Color != "" && p.Color != cmd.Color) {
		return applyResult{}, protocol.NewError(protocol.KindUnauthorizedForColor, "player does not hold that color")
	}

	winner := p.Color.Opponent()
	st.Finish(winner, game.ResultString(winner, "resign", 0))
	ex.eng.log.Info("玩家認輸",
		zap.String("game", st.ID),
		zap.String("color", string(p.Color)),
	)

	return applyResult{
		mutated: true,
		emits: []emission{
			broadcast(playerEvent(protocol.EvtPlayerResigned, st, p)),
			broadcast(gameFinishedEvent(st)),
			broadcast(gameStateEvent(st, protocol.EvtGameState)),
		},
	}, nil
}

// finishOnTimeout ends the game against loser after a committed clock ran
// out at move time. The attempted move is discarded.
func (ex *executor) finishOnTimeout(st *game.State, loser *game.Player) applyResult {
	winner := loser.Color.Opponent()
	st.Finish(winner, game.ResultString(winner, "timeout", 0))
	ex.eng.log.Info("玩家超時",
		zap.String("game", st.ID),
		zap.String("color", string(loser.Color)),
	)
	return applyResult{mutated: true, emits: timeoutEvents(st, loser)}
}

// resetBlitzBudget renews the per-move budget for the player whose turn is
// starting. No-op outside blitz.
func resetBlitzBudget(st *game.State) {
	if !clock.Blitz(string(st.GameType), st.TimeControl) {
		return
	}
	if next := st.PlayerByColor(st.CurrentTurn); next != nil {
		clock.StartBlitzTurn(&next.PlayerClock, st.TimeControl)
	}
}

func moveRecord(p *game.Player, pos *board.Position, pass bool, captured int, elapsed time.Duration, now time.Time) game.Move {
	m := game.Move{
		Pass:               pass,
		Color:              p.Color,
		PlayerID:           p.ID,
		Timestamp:          now.UnixMilli(),
		TimeSpentOnMove:    elapsed.Seconds(),
		IsInByoYomi:        p.IsInByoYomi,
		ByoYomiTimeLeft:    p.ByoYomiTimeLeft,
		ByoYomiPeriodsLeft: p.ByoYomiPeriodsLeft,
		CapturedCount:      captured,
	}
	if pos != nil {
		m.X, m.Y = pos.X, pos.Y
	}
	return m
}

// appendClockEmission translates the mover's clock event into its wire
// event. It precedes moveMade so clients reset overtime displays before
// rendering the stone.
func appendClockEmission(emits []emission, evt clock.Event, st *game.State, p *game.Player) []emission {
	switch evt {
	case clock.EventEnteredByoYomi:
		return append(emits, broadcast(byoYomiEvent(protocol.EvtByoYomiStarted, st, p, p.PlayerClock)))
	case clock.EventByoYomiReset:
		return append(emits, broadcast(byoYomiEvent(protocol.EvtByoYomiReset, st, p, p.PlayerClock)))
	case clock.EventPeriodUsed:
		return append(emits, broadcast(byoYomiEvent(protocol.EvtByoYomiPeriodUsed, st, p, p.PlayerClock)))
	}
	return emits
}
