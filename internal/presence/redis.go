// Package presence tracks which collaborators are currently online, backed
// by Redis keys with a TTL. A collaborator is online while their heartbeat
// key exists and offline once it expires.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"wanderboard/api/internal/board"
)

const defaultTTL = 60 * time.Second

type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTracker connects to Redis and verifies the connection.
func NewRedisTracker(redisURL string) (*RedisTracker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisTracker{client: client, ttl: defaultTTL}, nil
}

// NewRedisTrackerWithClient wraps an existing client, mainly for tests.
func NewRedisTrackerWithClient(client *redis.Client) *RedisTracker {
	return &RedisTracker{client: client, ttl: defaultTTL}
}

func (t *RedisTracker) key(boardID, userID string) string {
	return "presence:" + boardID + ":" + userID
}

// Heartbeat marks a collaborator online on a board for one TTL window.
func (t *RedisTracker) Heartbeat(ctx context.Context, boardID, userID string) error {
	if err := t.client.Set(ctx, t.key(boardID, userID), "1", t.ttl).Err(); err != nil {
		return fmt.Errorf("presence heartbeat: %w", err)
	}
	return nil
}

// Leave drops a collaborator's presence immediately instead of waiting for
// the TTL.
func (t *RedisTracker) Leave(ctx context.Context, boardID, userID string) error {
	if err := t.client.Del(ctx, t.key(boardID, userID)).Err(); err != nil {
		return fmt.Errorf("presence leave: %w", err)
	}
	return nil
}

// Statuses resolves online/offline for each given collaborator id.
func (t *RedisTracker) Statuses(ctx context.Context, boardID string, userIDs []string) (map[string]board.PresenceStatus, error) {
	statuses := make(map[string]board.PresenceStatus, len(userIDs))
	if len(userIDs) == 0 {
		return statuses, nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = t.key(boardID, id)
	}
	values, err := t.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("presence lookup: %w", err)
	}
	for i, id := range userIDs {
		if values[i] != nil {
			statuses[id] = board.StatusOnline
		} else {
			statuses[id] = board.StatusOffline
		}
	}
	return statuses, nil
}

func (t *RedisTracker) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

func (t *RedisTracker) Close() error {
	return t.client.Close()
}
