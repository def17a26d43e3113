package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/weiqigo/server/internal/board"
	"github.com/weiqigo/server/internal/game"
	"github.com/weiqigo/server/internal/protocol"
	"github.com/weiqigo/server/internal/score"
)

// Auto-extend bounds: a same-colored group near a freshly marked dead group
// is swept along when it is this small and this short of liberties.
const (
	autoExtendMaxSize      = 5
	autoExtendMaxLiberties = 2
	autoExtendReach        = 2
)

// applyToggleDeadStone flips the dead marking for the whole group at the
// given point. Marking sweeps in small low-liberty neighbor groups of the
// same color; unmarking takes a majority of the group already marked and
// clears just that group.
func (ex *executor) applyToggleDeadStone(st *game.State, cmd ToggleDeadStone) (applyResult, error) {
	if st.Status != game.StatusScoring {
		return applyResult{}, protocol.NewError(protocol.KindWrongPhase, "dead stones can only be marked while scoring")
	}
	if st.PlayerByID(cmd.PlayerID) == nil {
		return applyResult{}, protocol.NewError(protocol.KindUnauthorizedForColor, "only seated players mark dead stones")
	}
	color := st.Board.StoneAt(cmd.Position)
	if color == "" {
		return applyResult{}, protocol.NewError(protocol.KindInvalidCommand, "no stone at that point")
	}

	group := board.ConnectedGroup(cmd.Position, st.Board.Stones, st.Board.Size)

	marked := 0
	for _, p := range group {
		if st.IsDead(p) {
			marked++
		}
	}

	if marked*2 >= len(group) {
		st.DeadStones = withoutPositions(st.DeadStones, group)
	} else {
		st.DeadStones = withPositions(st.DeadStones, group)
		for _, extra := range autoExtendGroups(st, group, color) {
			st.DeadStones = withPositions(st.DeadStones, extra)
		}
	}

	ex.refreshTerritory(st)
	ex.eng.log.Debug("死子標記更新",
		zap.String("game", st.ID),
		zap.Int("deadStones", len(st.DeadStones)),
	)

	return applyResult{
		mutated: true,
		emits: []emission{
			broadcast(scoringEvent(protocol.EvtDeadStoneToggled, st)),
			broadcast(gameStateEvent(st, protocol.EvtGameState)),
		},
	}, nil
}

// autoExtendGroups finds same-colored groups near the toggled one that look
// dead too: small, starved of liberties, and within reach of the marked
// group. Clients can always untoggle a wrong guess.
func autoExtendGroups(st *game.State, group []board.Position, color board.Color) [][]board.Position {
	inGroup := make(map[board.Position]bool, len(group))
	for _, p := range group {
		inGroup[p] = true
	}

	var out [][]board.Position
	seen := make(map[board.Position]bool)
	for _, s := range st.Board.Stones {
		if s.Color != color || inGroup[s.Position] || seen[s.Position] || st.IsDead(s.Position) {
			continue
		}
		cand := board.ConnectedGroup(s.Position, st.Board.Stones, st.Board.Size)
		for _, p := range cand {
			seen[p] = true
		}
		if len(cand) > autoExtendMaxSize {
			continue
		}
		if board.Liberties(cand, st.Board.Stones, st.Board.Size) > autoExtendMaxLiberties {
			continue
		}
		if !withinReach(group, cand, autoExtendReach) {
			continue
		}
		out = append(out, cand)
	}
	return out
}

func withinReach(a, b []board.Position, reach int) bool {
	for _, p := range a {
		for _, q := range b {
			dx, dy := p.X-q.X, p.Y-q.Y
			if dx < 0 {
				dx = -dx
			}
			if dy < 0 {
				dy = -dy
			}
			if dx <= reach && dy <= reach {
				return true
			}
		}
	}
	return false
}

func (ex *executor) applySyncDeadStones(st *game.State, cmd SyncDeadStones) (applyResult, error) {
	if st.Status != game.StatusScoring {
		return applyResult{}, protocol.NewError(protocol.KindWrongPhase, "dead stones can only be synced while scoring")
	}
	if st.PlayerByID(cmd.PlayerID) == nil {
		return applyResult{}, protocol.NewError(protocol.KindUnauthorizedForColor, "only seated players sync dead stones")
	}

	dead := cmd.DeadStones
	if dead == nil {
		dead = []board.Position{}
	}
	// Drop markings on empty points so a stale client cannot poison the set.
	valid := dead[:0]
	for _, p := range dead {
		if st.Board.StoneAt(p) != "" {
			valid = append(valid, p)
		}
	}
	st.DeadStones = valid
	ex.refreshTerritory(st)

	return applyResult{
		mutated: true,
		emits: []emission{
			broadcast(scoringEvent(protocol.EvtDeadStoneToggled, st)),
			broadcast(gameStateEvent(st, protocol.EvtGameState)),
		},
	}, nil
}

func (ex *executor) applyConfirmScore(st *game.State, cmd ConfirmScore) (applyResult, error) {
	if st.Status != game.StatusScoring {
		return applyResult{}, protocol.NewError(protocol.KindWrongPhase, "no score to confirm outside scoring")
	}
	if st.PlayerByID(cmd.PlayerID) == nil {
		return applyResult{}, protocol.NewError(protocol.KindUnauthorizedForColor, "only seated players confirm the score")
	}

	result, territory := score.Compute(
		st.Board,
		st.DeadStones,
		st.CapturedStones[board.Black],
		st.CapturedStones[board.White],
		st.Komi,
		st.ScoringRule,
	)
	st.Score = &result
	st.Territory = territory

	winner := result.Winner()
	var resultStr string
	if winner == "" {
		resultStr = "Draw"
	} else {
		resultStr = game.ResultString(winner, "score", result.Margin())
	}
	st.Finish(winner, resultStr)

	ex.eng.log.Info("對局結束",
		zap.String("game", st.ID),
		zap.String("result", resultStr),
		zap.Float64("black", result.Black),
		zap.Float64("white", result.White),
	)

	return applyResult{
		mutated: true,
		emits: []emission{
			broadcast(gameFinishedEvent(st)),
			broadcast(gameStateEvent(st, protocol.EvtGameState)),
		},
	}, nil
}

func (ex *executor) applyCancelScoring(st *game.State, cmd CancelScoring, now time.Time) (applyResult, error) {
	if st.Status != game.StatusScoring {
		return applyResult{}, protocol.NewError(protocol.KindWrongPhase, "not in scoring")
	}

	st.Status = game.StatusPlaying
	st.DeadStones = []board.Position{}
	st.Territory = nil
	st.StartTurn(now)
	resetBlitzBudget(st)

	return applyResult{
		mutated: true,
		emits: []emission{
			broadcast(scoringEvent(protocol.EvtScoringCanceled, st)),
			broadcast(gameStateEvent(st, protocol.EvtGameState)),
		},
	}, nil
}

// refreshTerritory recomputes the preliminary territory overlay with the
// currently marked dead stones removed from the board.
func (ex *executor) refreshTerritory(st *game.State) {
	if len(st.DeadStones) == 0 {
		st.Territory = score.Territory(st.Board)
		return
	}
	live := board.Board{Size: st.Board.Size}
	for _, s := range st.Board.Stones {
		if !st.IsDead(s.Position) {
			live.Stones = append(live.Stones, s)
		}
	}
	st.Territory = score.Territory(live)
}

func withPositions(dead []board.Position, group []board.Position) []board.Position {
	have := make(map[board.Position]bool, len(dead))
	for _, p := range dead {
		have[p] = true
	}
	for _, p := range group {
		if !have[p] {
			dead = append(dead, p)
		}
	}
	return dead
}

func withoutPositions(dead []board.Position, group []board.Position) []board.Position {
	drop := make(map[board.Position]bool, len(group))
	for _, p := range group {
		drop[p] = true
	}
	out := dead[:0]
	for _, p := range dead {
		if !drop[p] {
			out = append(out, p)
		}
	}
	return out
}
