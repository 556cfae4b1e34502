// Package cache fronts a project store with a Redis cache of file snapshots.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/opensandbox/canvas/internal/logging"
	"github.com/opensandbox/canvas/internal/project"
	"github.com/opensandbox/canvas/pkg/types"
)

// SnapshotCache is a write-through cache of project files. Redis failures
// never fail an operation; the wrapped store stays the source of truth.
type SnapshotCache struct {
	project.Store
	rdb redis.UniversalClient
	ttl time.Duration
	log *zap.Logger
}

// NewSnapshotCache connects to Redis and wraps inner.
func NewSnapshotCache(redisURL string, inner project.Store, ttl time.Duration) (*SnapshotCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewSnapshotCacheWithClient(rdb, inner, ttl), nil
}

// NewSnapshotCacheWithClient wraps inner using an existing Redis client.
func NewSnapshotCacheWithClient(rdb redis.UniversalClient, inner project.Store, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SnapshotCache{Store: inner, rdb: rdb, ttl: ttl, log: logging.Named("cache")}
}

func filesKey(id string) string {
	return "canvas:files:" + id
}

// SaveFiles writes to the store, then refreshes the cached copy.
func (c *SnapshotCache) SaveFiles(ctx context.Context, id string, files map[string]string) error {
	if err := c.Store.SaveFiles(ctx, id, files); err != nil {
		// The cached copy may now be stale.
		c.invalidate(ctx, id)
		return err
	}
	c.put(ctx, id, files)
	return nil
}

// LoadFiles serves from Redis when possible and fills it on a miss.
func (c *SnapshotCache) LoadFiles(ctx context.Context, id string) (map[string]string, error) {
	data, err := c.rdb.Get(ctx, filesKey(id)).Bytes()
	switch {
	case err == nil:
		var files map[string]string
		if err := json.Unmarshal(data, &files); err == nil {
			return files, nil
		}
		c.log.Warn("discarding corrupt cache entry", logging.ProjectID(id))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("cache read failed", logging.ProjectID(id), logging.Err(err))
	}

	files, err := c.Store.LoadFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	c.put(ctx, id, files)
	return files, nil
}

// DeleteProject deletes from the store and drops the cached files.
func (c *SnapshotCache) DeleteProject(ctx context.Context, id string) error {
	c.invalidate(ctx, id)
	return c.Store.DeleteProject(ctx, id)
}

// ListEvents reads the wrapped store's event log when it has one.
func (c *SnapshotCache) ListEvents(ctx context.Context, id string, limit int) ([]types.ProjectEvent, error) {
	if l, ok := c.Store.(project.EventLister); ok {
		return l.ListEvents(ctx, id, limit)
	}
	return []types.ProjectEvent{}, nil
}

func (c *SnapshotCache) put(ctx context.Context, id string, files map[string]string) {
	data, err := json.Marshal(files)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, filesKey(id), data, c.ttl).Err(); err != nil {
		c.log.Warn("cache write failed", logging.ProjectID(id), logging.Err(err))
	}
}

func (c *SnapshotCache) invalidate(ctx context.Context, id string) {
	if err := c.rdb.Del(ctx, filesKey(id)).Err(); err != nil {
		c.log.Warn("cache invalidate failed", logging.ProjectID(id), logging.Err(err))
	}
}

// Close closes the Redis client.
func (c *SnapshotCache) Close() error {
	return c.rdb.Close()
}
