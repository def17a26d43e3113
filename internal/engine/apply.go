package engine

import (
	"fmt"
	"time"

	"github.com/weiqigo/server/internal/game"
	"github.com/weiqigo/server/internal/protocol"
)

// apply mutates st according to cmd and returns the events to release on
// successful persist. A returned error means nothing changed.
func (ex *executor) apply(st *game.State, sid string, cmd Command, now time.Time) (applyResult, error) {
	switch c := cmd.(type) {
	case JoinGame:
		return ex.applyJoin(st, sid, c, now)
	case PlaceStone:
		return ex.applyPlaceStone(st, c, now)
	case PassTurn:
		return ex.applyPassTurn(st, c, now)
	case Resign:
		return ex.applyResign(st, c)
	case ToggleDeadStone:
		return ex.applyToggleDeadStone(st, c)
	case SyncDeadStones:
		return ex.applySyncDeadStones(st, c)
	case ConfirmScore:
		return ex.applyConfirmScore(st, c)
	case CancelScoring:
		return ex.applyCancelScoring(st, c, now)
	case RequestUndo:
		return ex.applyRequestUndo(st, c)
	case RespondUndo:
		return ex.applyRespondUndo(st, c, now)
	case Chat:
		return ex.applyChat(st, c, now)
	case RequestSync:
		return ex.applyRequestSync(st, sid, c, now)
	case TimerTick:
		return ex.applyTimerTick(st, c, now)
	case Leave:
		return ex.applyLeave(st, c)
	case Disconnect:
		return ex.applyDisconnect(st, c)
	default:
		return applyResult{}, protocol.NewError(protocol.KindInvalidCommand,
			fmt.Sprintf("unsupported command %T", cmd))
	}
}
