package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "sstt:session:"

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// RedisSessions is a SessionStore backed by the auth service's session keys.
// The issuing side writes a key per live session; revocation deletes it.
type RedisSessions struct {
	client *redis.Client
}

// NewRedisSessions connects to the Redis instance at url and verifies the
// connection before returning.
func NewRedisSessions(url string) (*RedisSessions, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisSessions{client: client}, nil
}

// NewRedisSessionsWithClient wraps an existing client (used by tests).
func NewRedisSessionsWithClient(client *redis.Client) *RedisSessions {
	return &RedisSessions{client: client}
}

func (s *RedisSessions) Active(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("session exists check: %w", err)
	}
	return n > 0, nil
}

func (s *RedisSessions) Close() error {
	return s.client.Close()
}

var _ SessionStore = (*RedisSessions)(nil)
