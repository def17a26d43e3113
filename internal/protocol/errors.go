package protocol

import (
	"errors"

	"github.com/weiqigo/server/internal/board"
	"github.com/weiqigo/server/internal/store"
)

// Error kinds surfaced to clients on the error channel.
const (
	KindOccupied             = "Occupied"
	KindOutOfBounds          = "OutOfBounds"
	KindKoViolation          = "KoViolation"
	KindSuicide              = "Suicide"
	KindNotYourTurn          = "NotYourTurn"
	KindWrongPhase           = "WrongPhase"
	KindUnknownGame          = "UnknownGame"
	KindInvalidCommand       = "InvalidCommand"
	KindUnauthorizedForColor = "UnauthorizedForColor"
	KindGameFull             = "GameFull"
	KindMoveDeadlineExceeded = "MoveDeadlineExceeded"
	KindTimeout              = "Timeout"
	KindStoreError           = "StoreError"
)

// CommandError is a command rejection carrying its wire kind. Illegal
// commands never mutate state; the initiator alone receives the error.
type CommandError struct {
	Kind    string
	Message string
	Details any
}

func (e *CommandError) Error() string { return e.Kind + ": " + e.Message }

// NewError builds a CommandError.
func NewError(kind, message string) *CommandError {
	return &CommandError{Kind: kind, Message: message}
}

// ErrorPayload is the error-channel frame.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEvent wraps err into the error event sent to the initiator. Kernel
// rejections and store failures are mapped onto their wire kinds; anything
// unrecognized degrades to InvalidCommand.
func ErrorEvent(err error) Event {
	payload := ErrorPayload{Kind: KindInvalidCommand, Message: err.Error()}

	var cmdErr *CommandError
	switch {
	case errors.As(err, &cmdErr):
		payload.Kind = cmdErr.Kind
		payload.Message = cmdErr.Message
		payload.Details = cmdErr.Details
	case errors.Is(err, board.ErrOccupied):
		payload.Kind = KindOccupied
	case errors.Is(err, board.ErrOutOfBounds):
		payload.Kind = KindOutOfBounds
	case errors.Is(err, board.ErrKoViolation):
		payload.Kind = KindKoViolation
	case errors.Is(err, board.ErrSuicide):
		payload.Kind = KindSuicide
	case errors.Is(err, store.ErrStore):
		payload.Kind = KindStoreError
		// Nudge the client to re-sync: its view may be stale now.
		payload.Details = map[string]string{"recover": CmdRequestSync}
	}
	return Event{Type: EvtError, Data: payload}
}
