package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/weiqigo/server/internal/game"
)

// MemoryStore is a single-instance Store used in tests and in local
// development when no Redis is configured. It keeps the same serialization
// path as the Redis backend so round-trip behaviour matches.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	subs    map[string]map[int]func([]byte)
	nextSub int
	now     func() time.Time
}

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		entries: map[string]memEntry{},
		subs:    map[string]map[int]func([]byte){},
		now:     time.Now,
	}
}

func (m *MemoryStore) get(key string) ([]byte, bool) {
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	return e.data, true
}

func (m *MemoryStore) set(key string, data []byte) {
	m.entries[key] = memEntry{data: data, expiresAt: m.now().Add(SessionTTL)}
}

func (m *MemoryStore) GetGame(ctx context.Context, id string) (*game.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.get(gameKey(id))
	if !ok {
		return nil, nil
	}
	var st game.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (m *MemoryStore) SetGame(ctx context.Context, st *game.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(gameKey(st.ID), data)
	if st.Code != "" {
		m.set(codeKey(strings.ToUpper(st.Code)), []byte(st.ID))
	}
	return nil
}

func (m *MemoryStore) DelGame(ctx context.Context, id, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, gameKey(id))
	if code != "" {
		delete(m.entries, codeKey(strings.ToUpper(code)))
	}
	return nil
}

func (m *MemoryStore) GetSessionByCode(ctx context.Context, code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.get(codeKey(strings.ToUpper(code)))
	if !ok {
		return "", nil
	}
	return string(data), nil
}

func (m *MemoryStore) SetSocketGame(ctx context.Context, socketID, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(socketKey(socketID), []byte(gameID))
	return nil
}

func (m *MemoryStore) GetSocketGame(ctx context.Context, socketID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.get(socketKey(socketID))
	if !ok {
		return "", nil
	}
	return string(data), nil
}

func (m *MemoryStore) DelSocketGame(ctx context.Context, socketID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, socketKey(socketID))
	return nil
}

func (m *MemoryStore) Publish(ctx context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	handlers := make([]func([]byte), 0, len(m.subs[topic]))
	for _, h := range m.subs[topic] {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, topic string, handler func(payload []byte)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[topic] == nil {
		m.subs[topic] = map[int]func([]byte){}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[topic][id] = handler
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[topic], id)
	}, nil
}

func (m *MemoryStore) Close() error { return nil }
