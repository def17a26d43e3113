// Package store abstracts the shared key-value store that holds live game
// state, the join-code index, the socket→game mapping, and the pub/sub
// topics used for cross-instance fan-out.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/weiqigo/server/internal/game"
)

// SessionTTL bounds how long a session survives in the store. It is
// refreshed on every mutation.
const SessionTTL = 24 * time.Hour

// ErrStore wraps any backend failure surfaced to the command layer. The
// engine retries a failed write once before giving up.
var ErrStore = errors.New("store error")

// Store is the contract the session engine consumes. Read misses yield
// (zero, nil); only backend failures return errors.
type Store interface {
	// GetGame returns the state for id, or nil when absent.
	GetGame(ctx context.Context, id string) (*game.State, error)
	// SetGame persists the state and refreshes the TTL, maintaining the
	// code index alongside.
	SetGame(ctx context.Context, s *game.State) error
	// DelGame removes the state and its code index entry.
	DelGame(ctx context.Context, id, code string) error

	// GetSessionByCode resolves a join code to a game id, or "".
	GetSessionByCode(ctx context.Context, code string) (string, error)

	SetSocketGame(ctx context.Context, socketID, gameID string) error
	GetSocketGame(ctx context.Context, socketID string) (string, error)
	DelSocketGame(ctx context.Context, socketID string) error

	// Publish delivers payload to every instance subscribed to topic.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe invokes handler for every payload published to topic,
	// including payloads from this instance. The returned func cancels
	// the subscription.
	Subscribe(ctx context.Context, topic string, handler func(payload []byte)) (func(), error)

	Close() error
}

// Key layout shared by the implementations.
func gameKey(id string) string    { return "game:" + id }
func codeKey(code string) string  { return "code:" + code }
func socketKey(sid string) string { return "socket:" + sid }

// GameTopic is the pub/sub topic carrying fan-out events for one game.
func GameTopic(gameID string) string { return "game:" + gameID }
