package net

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/weiqigo/server/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Session represents a single client connection. Network I/O runs in
// dedicated goroutines; game state is only touched by the engine's
// executors, which sessions reach through the command registry.
type Session struct {
	ID   string
	conn *websocket.Conn

	OutQueue chan protocol.Event // writeLoop drains this

	IP string

	mu       sync.Mutex // guards binding fields
	gameID   string
	playerID string

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	// Per-second command rate limiter (readLoop goroutine only, no lock
	// needed). Sized for gameplay plus the 1/s timer tick.
	cmdPerSec  int   // max commands/sec (0 = unlimited)
	cmdCount   int   // commands received this second
	cmdResetAt int64 // unix second of last counter reset

	registry *protocol.Registry
	onClose  func(*Session)
	log      *zap.Logger
}

// NewSession wraps a websocket connection. conn may be nil for a session
// with no transport; Send still queues and Close still runs the callback.
func NewSession(conn *websocket.Conn, outSize, cmdPerSec int, reg *protocol.Registry, onClose func(*Session), log *zap.Logger) *Session {
	id := uuid.NewString()
	ip := ""
	if conn != nil {
		ip = conn.RemoteAddr().String()
	}
	return &Session{
		ID:        id,
		conn:      conn,
		OutQueue:  make(chan protocol.Event, outSize),
		IP:        ip,
		closeCh:   make(chan struct{}),
		cmdPerSec: cmdPerSec,
		registry:  reg,
		onClose:   onClose,
		log:       log.With(zap.String("session", id)),
	}
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Bind records the game this channel belongs to.
func (s *Session) Bind(gameID, playerID string) {
	s.mu.Lock()
	s.gameID = gameID
	s.playerID = playerID
	s.mu.Unlock()
}

// Binding returns the bound game and player ids ("" while unbound).
func (s *Session) Binding() (gameID, playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameID, s.playerID
}

// Bound reports whether the session has joined a game.
func (s *Session) Bound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameID != ""
}

// Send queues an event for the writeLoop. Non-blocking: a full queue means
// a client that cannot keep up, and the session is disconnected rather than
// allowed to stall the sender.
func (s *Session) Send(evt protocol.Event) {
	if s.closed.Load() {
		return
	}
	select {
	case s.OutQueue <- evt:
	default:
		s.log.Warn("輸出佇列已滿，斷開慢速連線")
		s.Close()
	}
}

// Close gracefully shuts down the session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
		if s.conn != nil {
			s.conn.Close()
		}
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop runs in its own goroutine. It reads JSON envelopes from the
// websocket and dispatches them through the registry. Handler work happens
// inline, so one session's commands are naturally ordered.
func (s *Session) readLoop() {
	defer s.Close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("讀取錯誤", zap.Error(err))
			}
			return
		}

		// Per-second command rate limiter
		if s.cmdPerSec > 0 {
			now := time.Now().Unix()
			if now != s.cmdResetAt {
				s.cmdCount = 0
				s.cmdResetAt = now
			}
			s.cmdCount++
			if s.cmdCount > s.cmdPerSec {
				s.log.Warn("指令速率超限，斷開連線", zap.Int("cps", s.cmdCount))
				return
			}
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.Send(protocol.ErrorEvent(protocol.NewError(protocol.KindInvalidCommand, "malformed envelope")))
			continue
		}
		if err := s.registry.Dispatch(s, s.Bound(), env); err != nil {
			s.Send(protocol.ErrorEvent(err))
		}
	}
}

// writeLoop runs in its own goroutine. It drains OutQueue to the websocket
// and keeps the connection alive with periodic pings.
func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case evt := <-s.OutQueue:
			if !s.writeOneEvent(evt) {
				return
			}
			// 批量排出：把佇列中累積的事件一併送出
			for len(s.OutQueue) > 0 {
				select {
				case more := <-s.OutQueue:
					if !s.writeOneEvent(more) {
						return
					}
				case <-s.closeCh:
					return
				}
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

// writeOneEvent 序列化並寫入單一事件到 websocket。成功回傳 true。
func (s *Session) writeOneEvent(evt protocol.Event) bool {
	s.log.Debug("TX",
		zap.String("event", evt.Type),
	)
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(evt); err != nil {
		if !s.closed.Load() {
			s.log.Debug("寫入錯誤", zap.Error(err))
		}
		return false
	}
	return true
}
