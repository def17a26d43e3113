package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/weiqigo/server/internal/board"
	"github.com/weiqigo/server/internal/game"
	"github.com/weiqigo/server/internal/protocol"
)

func (ex *executor) applyRequestUndo(st *game.State, cmd RequestUndo) (applyResult, error) {
	if st.Status != game.StatusPlaying {
		return applyResult{}, protocol.NewError(protocol.KindWrongPhase, "undo is only available during play")
	}
	if st.PlayerByID(cmd.PlayerID) == nil {
		return applyResult{}, protocol.NewError(protocol.KindUnauthorizedForColor, "only seated players request undo")
	}
	if st.UndoRequest != nil {
		return applyResult{}, protocol.NewError(protocol.KindInvalidCommand, "an undo request is already pending")
	}
	if cmd.MoveIndex < 0 || cmd.MoveIndex >= len(st.History) {
		return applyResult{}, protocol.NewError(protocol.KindInvalidCommand, "moveIndex outside history")
	}

	st.UndoRequest = &game.UndoRequest{RequestedBy: cmd.PlayerID, MoveIndex: cmd.MoveIndex}
	return applyResult{
		mutated: true,
		emits: []emission{
			broadcast(gameStateEvent(st, protocol.EvtGameState)),
		},
	}, nil
}

// applyRespondUndo resolves the pending request. On acceptance the history
// is truncated and the board is rebuilt by replaying the kept prefix
// through the rules kernel, so captures and the ko point come out exactly
// as they stood after the last kept move.
func (ex *executor) applyRespondUndo(st *game.State, cmd RespondUndo, now time.Time) (applyResult, error) {
	if st.Status != game.StatusPlaying {
		return applyResult{}, protocol.NewError(protocol.KindWrongPhase, "undo can only be resolved during play")
	}
	req := st.UndoRequest
	if req == nil {
		return applyResult{}, protocol.NewError(protocol.KindInvalidCommand, "no undo request pending")
	}
	responder := st.PlayerByID(cmd.PlayerID)
	if responder == nil {
		return applyResult{}, protocol.NewError(protocol.KindUnauthorizedForColor, "only seated players respond to undo")
	}
	if responder.ID == req.RequestedBy {
		return applyResult{}, protocol.NewError(protocol.KindInvalidCommand, "requester cannot respond to their own undo")
	}

	if !cmd.Accepted {
		st.UndoRequest = nil
		return applyResult{
			mutated: true,
			emits:   []emission{broadcast(gameStateEvent(st, protocol.EvtGameState))},
		}, nil
	}

	nextTurn := st.History[req.MoveIndex].Color
	kept := st.History[:req.MoveIndex]
	if err := ex.replayHistory(st, kept); err != nil {
		// Persisted history should always replay. A failure here means the
		// record is corrupt; refuse rather than guess.
		ex.eng.log.Error("悔棋重放失敗",
			zap.String("game", st.ID),
			zap.Int("moveIndex", req.MoveIndex),
			zap.Error(err),
		)
		st.UndoRequest = nil
		return applyResult{}, protocol.NewError(protocol.KindInvalidCommand, "history cannot be replayed")
	}

	st.History = append([]game.Move{}, kept...)
	st.CurrentTurn = nextTurn
	st.UndoRequest = nil
	st.StartTurn(now)
	resetBlitzBudget(st)
	ex.tickByoYomi = map[string]tickClockMark{}

	ex.eng.log.Info("悔棋已接受",
		zap.String("game", st.ID),
		zap.Int("moveIndex", req.MoveIndex),
	)

	res := applyResult{mutated: true}
	res.emits = append(res.emits, broadcast(gameStateEvent(st, protocol.EvtGameState)))
	for _, seated := range st.Players {
		res.emits = append(res.emits, broadcast(timeUpdateEvent(st, seated, seated.PlayerClock)))
	}
	return res, nil
}

// replayHistory rebuilds board, captures, ko, and last-move fields from the
// initial layout plus the given moves. st is only written on success.
func (ex *executor) replayHistory(st *game.State, moves []game.Move) error {
	b := board.New(st.Board.Size)
	if st.Handicap >= 2 {
		b.Stones = game.HandicapStones(b.Size, st.Handicap)
	}

	captured := map[board.Color]int{board.Black: 0, board.White: 0}
	var ko *board.Position
	var lastMove *board.Position
	var lastColor board.Color
	var lastPlayerID string
	lastCaptured := 0

	for _, m := range moves {
		lastColor = m.Color
		lastPlayerID = m.PlayerID
		if m.Pass {
			ko = nil
			lastMove = nil
			lastCaptured = 0
			continue
		}
		pos := board.Position{X: m.X, Y: m.Y}
		res, err := board.Apply(b, pos, m.Color, ko)
		if err != nil {
			return err
		}
		b.Stones = res.Stones
		captured[m.Color] += len(res.Captured)
		ko = res.KoCandidate
		p := pos
		lastMove = &p
		lastCaptured = len(res.Captured)
	}

	st.Board = b
	st.CapturedStones = captured
	st.KoPosition = ko
	st.LastMove = lastMove
	st.LastMoveColor = lastColor
	st.LastMovePlayerID = lastPlayerID
	st.LastMoveCapturedCount = lastCaptured
	return nil
}
