// Package cache provides a Redis cache-aside layer for user display names.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	"community-chat/internal/repositories"
)

const defaultPrefix = "chat:user-name:"

// NameCache decorates a UserRepository with Redis. Redis failures are logged
// and the lookup falls through to the repository.
type NameCache struct {
	client *redis.Client
	next   repositories.UserRepository
	prefix string
	ttl    time.Duration
	log    *slog.Logger
}

var _ repositories.UserRepository = (*NameCache)(nil)

// NewNameCache wraps next with a cache-aside layer.
func NewNameCache(client *redis.Client, next repositories.UserRepository, ttl time.Duration, log *slog.Logger) *NameCache {
	return &NameCache{client: client, next: next, prefix: defaultPrefix, ttl: ttl, log: log}
}

// DisplayNames serves cached names and loads the rest from the repository.
func (c *NameCache) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	ids = lo.Uniq(ids)
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	keys := lo.Map(ids, func(id string, _ int) string { return c.prefix + id })
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn("name cache read failed", "error", err)
		values = make([]interface{}, len(ids))
	}

	var missing []string
	for i, id := range ids {
		if name, ok := values[i].(string); ok {
			names[id] = name
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return names, nil
	}

	loaded, err := c.next.DisplayNames(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(loaded) == 0 {
		return names, nil
	}

	pipe := c.client.Pipeline()
	for id, name := range loaded {
		names[id] = name
		pipe.Set(ctx, c.prefix+id, name, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("name cache write failed", "error", err)
	}
	return names, nil
}

// Ping checks if the Redis connection is healthy.
func (c *NameCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
