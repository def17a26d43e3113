package protocol

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// HandlerFunc is the callback signature for command handlers. The session
// is passed as an opaque interface to avoid an import cycle with the
// connection layer.
type HandlerFunc func(sess any, data json.RawMessage)

// Registry maps command names to handlers. Commands arriving for a session
// not yet bound to a game are rejected unless the handler is registered as
// an entry command (createGame / joinGame).
type Registry struct {
	handlers map[string]*handlerEntry
	log      *zap.Logger
}

type handlerEntry struct {
	fn           HandlerFunc
	allowUnbound bool
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]*handlerEntry),
		log:      log,
	}
}

// Register maps a command name to a handler. allowUnbound permits the
// command before the session has joined a game.
func (reg *Registry) Register(name string, allowUnbound bool, fn HandlerFunc) {
	reg.handlers[name] = &handlerEntry{fn: fn, allowUnbound: allowUnbound}
}

// Dispatch decodes the envelope type, validates the binding requirement,
// and invokes the handler. Unknown or misdirected commands return a
// CommandError the caller forwards on the error channel.
func (reg *Registry) Dispatch(sess any, bound bool, env Envelope) error {
	reg.log.Debug("收到指令",
		zap.String("type", env.Type),
		zap.Int("size", len(env.Data)),
		zap.Bool("bound", bound),
	)

	entry, ok := reg.handlers[env.Type]
	if !ok {
		return NewError(KindInvalidCommand, fmt.Sprintf("unknown command %q", env.Type))
	}
	if !bound && !entry.allowUnbound {
		return NewError(KindInvalidCommand, fmt.Sprintf("command %q requires a joined game", env.Type))
	}
	return reg.safeCall(entry.fn, sess, env)
}

// safeCall executes a handler with panic recovery so one bad command
// cannot take down the connection's read loop.
func (reg *Registry) safeCall(fn HandlerFunc, sess any, env Envelope) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("處理器 panic 已恢復",
				zap.String("type", env.Type),
				zap.Any("panic", rec),
			)
			err = NewError(KindInvalidCommand, fmt.Sprintf("handler panic for %q", env.Type))
		}
	}()
	fn(sess, env.Data)
	return nil
}
