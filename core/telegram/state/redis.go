package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultSessionTTL bounds how long an abandoned conversation survives in Redis.
const DefaultSessionTTL = 24 * time.Hour

type redisManager struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
	now       func() time.Time
}

// NewRedisManager stores sessions as JSON under "<namespace>:session:<user id>".
func NewRedisManager(client redis.UniversalClient, namespace string, ttl time.Duration) Manager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if namespace == "" {
		namespace = "bot"
	}
	return &redisManager{client: client, namespace: namespace, ttl: ttl, now: time.Now}
}

func (m *redisManager) key(userID int64) string {
	return m.namespace + ":session:" + strconv.FormatInt(userID, 10)
}

// Get loads the session, returning a fresh idle one when the key is absent.
func (m *redisManager) Get(ctx context.Context, userID int64) (*Session, error) {
	raw, err := m.client.Get(ctx, m.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewSession(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}
	s := NewSession()
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("session decode: %w", err)
	}
	if s.TempData == nil {
		s.TempData = make(map[string]string)
	}
	return s, nil
}

// Save writes the session and refreshes its TTL.
func (m *redisManager) Save(ctx context.Context, userID int64, s *Session) error {
	cp := clone(s)
	cp.UpdatedAt = m.now()
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("session encode: %w", err)
	}
	if err := m.client.Set(ctx, m.key(userID), raw, m.ttl).Err(); err != nil {
		return fmt.Errorf("session set: %w", err)
	}
	return nil
}

// Clear deletes the session key.
func (m *redisManager) Clear(ctx context.Context, userID int64) error {
	if err := m.client.Del(ctx, m.key(userID)).Err(); err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	return nil
}
