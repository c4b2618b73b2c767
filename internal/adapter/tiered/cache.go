// Package tiered combines a local and a shared cache for duplicate-event
// suppression across relay replicas.
package tiered

import (
	"context"
	"log/slog"
	"time"

	"github.com/Strob0t/spawnrelay/internal/port/cache"
)

var _ cache.Cache = (*Cache)(nil)

// Cache reads L1 then L2, backfilling L1 on an L2 hit, and writes both.
// L2 failures are logged and the cache keeps serving from L1 alone, so an
// unreachable NATS cluster only narrows dedup to the local replica.
type Cache struct {
	local  cache.Cache
	shared cache.Cache
	ttl    time.Duration
}

// New creates a tiered cache. ttl bounds how long L2 backfills live in L1.
func New(local, shared cache.Cache, ttl time.Duration) *Cache {
	return &Cache{local: local, shared: shared, ttl: ttl}
}

// Get checks L1, then L2.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.shared.Get(ctx, key)
	if err != nil {
		slog.Warn("shared cache get failed", "key", key, "error", err)
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}
	_ = c.local.Set(ctx, key, val, c.ttl)
	return val, true, nil
}

// Set writes L1, then L2.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if err := c.shared.Set(ctx, key, value, ttl); err != nil {
		slog.Warn("shared cache set failed", "key", key, "error", err)
	}
	return nil
}

// Delete removes the key from both levels.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	if err := c.shared.Delete(ctx, key); err != nil {
		slog.Warn("shared cache delete failed", "key", key, "error", err)
	}
	return nil
}
