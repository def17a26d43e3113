package net

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/weiqigo/server/internal/protocol"
	"github.com/weiqigo/server/internal/store"
)

const publishTimeout = 3 * time.Second

// Hub tracks which sessions belong to which game and fans events out to
// them. Cross-instance delivery rides the store's pub/sub: every broadcast
// is published to the game's topic, and each instance relays foreign
// publications to its own local group. Envelopes carry the publisher's
// instance id so an instance never double-delivers its own events.
type Hub struct {
	store      store.Store
	instanceID string
	log        *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session  // session id → session
	groups   map[string]*hubGroup // game id → local group
}

type hubGroup struct {
	members     map[string]*Session
	emptySince  time.Time
	unsubscribe func()
}

// pubEnvelope frames a cross-instance broadcast on the game topic.
type pubEnvelope struct {
	Instance string          `json:"instance"`
	Event    json.RawMessage `json:"event"`
}

func NewHub(st store.Store, log *zap.Logger) *Hub {
	return &Hub{
		store:      st,
		instanceID: uuid.NewString(),
		log:        log,
		sessions:   make(map[string]*Session),
		groups:     make(map[string]*hubGroup),
	}
}

// Track registers a connected session with the hub.
func (h *Hub) Track(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
}

// Forget removes a session from the hub and its group, if any.
func (h *Hub) Forget(s *Session) {
	gameID, _ := s.Binding()
	h.mu.Lock()
	delete(h.sessions, s.ID)
	if gameID != "" {
		h.detachLocked(gameID, s.ID)
	}
	h.mu.Unlock()
}

// Bind attaches a session to a game's local group, subscribing to the
// game's topic on the first local attachment.
func (h *Hub) Bind(ctx context.Context, s *Session, gameID, playerID string) error {
	if prev, _ := s.Binding(); prev != "" && prev != gameID {
		h.mu.Lock()
		h.detachLocked(prev, s.ID)
		h.mu.Unlock()
	}
	s.Bind(gameID, playerID)

	h.mu.Lock()
	g, ok := h.groups[gameID]
	if !ok {
		g = &hubGroup{members: make(map[string]*Session)}
		h.groups[gameID] = g
	}
	g.members[s.ID] = s
	g.emptySince = time.Time{}
	needSub := g.unsubscribe == nil
	h.mu.Unlock()

	if !needSub {
		return nil
	}
	cancel, err := h.store.Subscribe(ctx, store.GameTopic(gameID), func(payload []byte) {
		h.relay(gameID, payload)
	})
	if err != nil {
		return err
	}
	h.mu.Lock()
	if g2, ok := h.groups[gameID]; ok && g2.unsubscribe == nil {
		g2.unsubscribe = cancel
	} else {
		cancel()
	}
	h.mu.Unlock()
	return nil
}

// Unbind detaches a session from its game group.
func (h *Hub) Unbind(s *Session) {
	gameID, _ := s.Binding()
	if gameID == "" {
		return
	}
	h.mu.Lock()
	h.detachLocked(gameID, s.ID)
	h.mu.Unlock()
	s.Bind("", "")
}

// detachLocked removes the session from the group and stamps emptySince
// when the last local member leaves. Caller holds h.mu.
func (h *Hub) detachLocked(gameID, sessionID string) {
	g, ok := h.groups[gameID]
	if !ok {
		return
	}
	delete(g.members, sessionID)
	if len(g.members) == 0 {
		g.emptySince = time.Now()
		if g.unsubscribe != nil {
			g.unsubscribe()
			g.unsubscribe = nil
		}
	}
}

// EmptySince reports when the game's local group last went empty. ok is
// false while any session remains attached.
func (h *Hub) EmptySince(gameID string) (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.groups[gameID]
	if !ok {
		// Never attached on this instance; the zero time marks that the
		// group has no local history at all.
		return time.Time{}, true
	}
	if len(g.members) > 0 {
		return time.Time{}, false
	}
	return g.emptySince, true
}

// BroadcastGame delivers evt to every local session in the game's group and
// publishes it for the other instances.
func (h *Hub) BroadcastGame(gameID string, evt protocol.Event) {
	h.deliverLocal(gameID, evt)

	raw, err := json.Marshal(evt)
	if err != nil {
		h.log.Error("事件序列化失敗", zap.String("event", evt.Type), zap.Error(err))
		return
	}
	payload, _ := json.Marshal(pubEnvelope{Instance: h.instanceID, Event: raw})

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := h.store.Publish(ctx, store.GameTopic(gameID), payload); err != nil {
		h.log.Warn("事件發佈失敗", zap.String("game", gameID), zap.Error(err))
	}
}

// SendTo delivers evt to one session, if it is connected to this instance.
func (h *Hub) SendTo(sessionID string, evt protocol.Event) {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	h.mu.Unlock()
	if ok {
		s.Send(evt)
	}
}

// relay handles a payload arriving on a game topic. Own publications are
// dropped; they were already delivered locally.
func (h *Hub) relay(gameID string, payload []byte) {
	var env pubEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		h.log.Warn("跨實例事件解析失敗", zap.String("game", gameID), zap.Error(err))
		return
	}
	if env.Instance == h.instanceID {
		return
	}
	var evt protocol.Event
	if err := json.Unmarshal(env.Event, &evt); err != nil {
		h.log.Warn("跨實例事件解析失敗", zap.String("game", gameID), zap.Error(err))
		return
	}
	h.deliverLocal(gameID, evt)
}

func (h *Hub) deliverLocal(gameID string, evt protocol.Event) {
	h.mu.Lock()
	g, ok := h.groups[gameID]
	var members []*Session
	if ok {
		members = make([]*Session, 0, len(g.members))
		for _, s := range g.members {
			members = append(members, s)
		}
	}
	h.mu.Unlock()
	for _, s := range members {
		s.Send(evt)
	}
}
