package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// SessionStore tracks per-courier liveness as a redis key with a TTL. The
// flag is derived state: it gates acceptance but is never the authoritative
// package-limit count, which is always recomputed from the orders table.
type SessionStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewSessionStore(client *goredis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// Heartbeat marks the courier online and restarts the expiry window. Redis
// owns the countdown, so client clock skew cannot keep a dead session alive.
func (s *SessionStore) Heartbeat(ctx context.Context, courierID string) error {
	return s.client.Set(ctx, onlineKey(courierID), "1", s.ttl).Err()
}

func (s *SessionStore) SetOffline(ctx context.Context, courierID string) error {
	return s.client.Del(ctx, onlineKey(courierID)).Err()
}

func (s *SessionStore) IsOnline(ctx context.Context, courierID string) (bool, error) {
	n, err := s.client.Exists(ctx, onlineKey(courierID)).Result()
	if err != nil {
		return false, fmt.Errorf("check courier online: %w", err)
	}
	return n > 0, nil
}

func onlineKey(courierID string) string {
	return fmt.Sprintf("courier:online:%s", courierID)
}
