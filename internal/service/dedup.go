package service

import (
	"context"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/Strob0t/spawnrelay/internal/port/cache"
)

// Dedup suppresses byte-identical frames seen within a TTL. Frames are
// canonical (encoding/json sorts object keys), so equal events hash equally.
type Dedup struct {
	mu    sync.Mutex
	cache cache.Cache
	ttl   time.Duration
}

// NewDedup creates a Dedup backed by c.
func NewDedup(c cache.Cache, ttl time.Duration) *Dedup {
	return &Dedup{cache: c, ttl: ttl}
}

// Seen reports whether frame was recorded within the TTL, recording it
// when it was not. Cache errors count as "not seen".
func (d *Dedup) Seen(ctx context.Context, frame []byte) bool {
	sum := blake3.Sum256(frame)
	key := dedupKey(sum)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, found, err := d.cache.Get(ctx, key); err == nil && found {
		return true
	}
	if err := d.cache.Set(ctx, key, sum[:], d.ttl); err != nil {
		slog.Debug("dedup cache set failed", "error", err)
	}
	return false
}

// Forget removes the record of frame so the next sighting is new again.
func (d *Dedup) Forget(ctx context.Context, frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.cache.Delete(ctx, dedupKey(blake3.Sum256(frame))); err != nil {
		slog.Debug("dedup cache delete failed", "error", err)
	}
}

func dedupKey(sum [32]byte) string {
	return "evt." + hex.EncodeToString(sum[:])
}
