// Package session provides a Redis-backed cache of each user's most recent
// conversation turns. It sits in front of the history store so the memory
// branch does not hit the database on every query; entries expire on a TTL
// and are invalidated when a new turn lands.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mukesh145/pdf-knowledge-assistant/history"
)

// DefaultTTL is the cache entry lifetime when none is configured.
const DefaultTTL = 30 * time.Minute

// Options configures the Redis connection and cache behavior.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "assistant:"
	TTL      time.Duration // Entry expiration, default DefaultTTL
}

// Cache caches recent conversation turns per user.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCache creates a session cache backed by Redis.
func NewCache(opts Options) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "assistant:"
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}

	return &Cache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *Cache) turnsKey(userID int64) string {
	return fmt.Sprintf("%ssession:%d:turns", c.prefix, userID)
}

// RecentTurns returns the cached turns for a user. The second return value
// reports whether the cache held an entry; a miss is not an error.
func (c *Cache) RecentTurns(ctx context.Context, userID int64) ([]history.Turn, bool, error) {
	data, err := c.client.Get(ctx, c.turnsKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load session turns from redis: %w", err)
	}

	var turns []history.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal session turns: %w", err)
	}
	return turns, true, nil
}

// StoreTurns caches the given turns for a user, replacing any previous
// entry and resetting the TTL.
func (c *Cache) StoreTurns(ctx context.Context, userID int64, turns []history.Turn) error {
	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to marshal session turns: %w", err)
	}

	if err := c.client.Set(ctx, c.turnsKey(userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session turns to redis: %w", err)
	}
	return nil
}

// Invalidate drops the cached turns for a user. Called after a new turn is
// appended so the next memory lookup sees it.
func (c *Cache) Invalidate(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, c.turnsKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate session turns: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
