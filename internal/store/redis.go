package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/weiqigo/server/internal/game"
)

// RedisStore implements Store against a shared Redis, which also carries
// the cross-instance pub/sub fan-out.
type RedisStore struct {
	rdb *redis.Client
	log *zap.Logger
}

// NewRedis connects and pings the Redis backend.
func NewRedis(ctx context.Context, opts *redis.Options, log *zap.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb, log: log}, nil
}

func (s *RedisStore) GetGame(ctx context.Context, id string) (*game.State, error) {
	data, err := s.rdb.Get(ctx, gameKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		s.log.Error("讀取對局狀態失敗", zap.String("game", id), zap.Error(err))
		return nil, fmt.Errorf("%w: get game: %v", ErrStore, err)
	}
	var st game.State
	if err := json.Unmarshal(data, &st); err != nil {
		s.log.Error("對局狀態反序列化失敗", zap.String("game", id), zap.Error(err))
		return nil, fmt.Errorf("%w: decode game: %v", ErrStore, err)
	}
	return &st, nil
}

func (s *RedisStore) SetGame(ctx context.Context, st *game.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("%w: encode game: %v", ErrStore, err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, gameKey(st.ID), data, SessionTTL)
	if st.Code != "" {
		pipe.Set(ctx, codeKey(strings.ToUpper(st.Code)), st.ID, SessionTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error("寫入對局狀態失敗", zap.String("game", st.ID), zap.Error(err))
		return fmt.Errorf("%w: set game: %v", ErrStore, err)
	}
	return nil
}

func (s *RedisStore) DelGame(ctx context.Context, id, code string) error {
	keys := []string{gameKey(id)}
	if code != "" {
		keys = append(keys, codeKey(strings.ToUpper(code)))
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: del game: %v", ErrStore, err)
	}
	return nil
}

func (s *RedisStore) GetSessionByCode(ctx context.Context, code string) (string, error) {
	id, err := s.rdb.Get(ctx, codeKey(strings.ToUpper(code))).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: get code: %v", ErrStore, err)
	}
	return id, nil
}

func (s *RedisStore) SetSocketGame(ctx context.Context, socketID, gameID string) error {
	if err := s.rdb.Set(ctx, socketKey(socketID), gameID, SessionTTL).Err(); err != nil {
		return fmt.Errorf("%w: set socket: %v", ErrStore, err)
	}
	return nil
}

func (s *RedisStore) GetSocketGame(ctx context.Context, socketID string) (string, error) {
	id, err := s.rdb.Get(ctx, socketKey(socketID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: get socket: %v", ErrStore, err)
	}
	return id, nil
}

func (s *RedisStore) DelSocketGame(ctx context.Context, socketID string) error {
	if err := s.rdb.Del(ctx, socketKey(socketID)).Err(); err != nil {
		return fmt.Errorf("%w: del socket: %v", ErrStore, err)
	}
	return nil
}

func (s *RedisStore) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := s.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish: %v", ErrStore, err)
	}
	return nil
}

// Subscribe forwards messages for topic to handler on a dedicated
// goroutine until the returned cancel func is called.
func (s *RedisStore) Subscribe(ctx context.Context, topic string, handler func(payload []byte)) (func(), error) {
	sub := s.rdb.Subscribe(ctx, topic)
	// Force the subscription to be established before returning.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("%w: subscribe: %v", ErrStore, err)
	}
	ch := sub.Channel()
	go func() {
		for msg := range ch {
			handler([]byte(msg.Payload))
		}
	}()
	return func() { sub.Close() }, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
