package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yourorg/taskhub/internal/infrastructure/redis"
)

const keyPrefix = "session:"

// RedisStore keeps session records in Redis so any instance can serve any
// request. TTL is enforced by Redis itself.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed session store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, session *Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+session.ID, payload, ttl); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	payload, err := s.client.Get(ctx, keyPrefix+id)
	if err != nil {
		if redis.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	session := &Session{}
	if err := json.Unmarshal([]byte(payload), session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return session, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Delete(ctx, keyPrefix+id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
