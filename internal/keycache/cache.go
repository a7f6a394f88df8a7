// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package keycache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"gitlab.com/accumulatenetwork/sigreq/internal/logging"
)

// DefaultCacheSize is the number of entities a Cache holds when no size is
// given.
const DefaultCacheSize = 4096

// CacheOptions configures a Cache.
type CacheOptions struct {
	Source    Lookuper
	Freshness Freshness
	Logger    *slog.Logger

	// Size is the number of entities held. The least recently used entity
	// is dropped when the cache is full.
	Size int

	// Now defaults to time.Now.
	Now func() time.Time
}

// Cache is an in-process cache in front of a source. Concurrent lookups of
// an entity share one call to the source. The shared call is not canceled
// when the callers waiting on it give up.
type Cache struct {
	source    Lookuper
	freshness Freshness
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	entries *lru.Cache[EntityKey, *entry]
}

type entry struct {
	started time.Time
	done    chan struct{}
	record  *Record
	err     error
}

var _ Lookuper = (*Cache)(nil)

func NewCache(opts CacheOptions) *Cache {
	c := new(Cache)
	c.source = opts.Source
	c.freshness = opts.Freshness
	c.logger = logging.Module(opts.Logger, "keycache")
	c.now = opts.Now
	if c.now == nil {
		c.now = time.Now
	}
	size := opts.Size
	if size <= 0 {
		size = DefaultCacheSize
	}
	// Only fails if the size is not positive
	c.entries, _ = lru.New[EntityKey, *entry](size)
	return c
}

// Lookup returns the entity's key material, from the cache if it is fresh
// enough, otherwise from the source.
func (c *Cache) Lookup(ctx context.Context, key EntityKey, force bool) (*Record, error) {
	c.mu.Lock()
	e, ok := c.entries.Get(key)
	result := resultMiss
	if ok {
		select {
		case <-e.done:
			if e.err == nil && c.freshness.IsFresh(key.Kind, e.started, c.now(), force) {
				result = resultHit
			}
		default:
			result = resultJoin
		}
	}
	if result == resultMiss {
		e = &entry{started: c.now(), done: make(chan struct{})}
		c.entries.Add(key, e)
		go c.load(context.WithoutCancel(ctx), key, force, e)
	}
	c.mu.Unlock()
	mLookups.WithLabelValues("memory", result).Inc()

	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.record, nil
}

func (c *Cache) load(ctx context.Context, key EntityKey, force bool, e *entry) {
	defer close(e.done)
	e.record, e.err = c.source.Lookup(ctx, key, force)
	if e.err == nil {
		return
	}

	c.logger.DebugContext(ctx, "Lookup failed", "entity", key, "error", e.err)

	// Evict the failure so the next lookup tries again
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.entries.Peek(key); ok && current == e {
		c.entries.Remove(key)
	}
}

// Forget drops the cached entry for the entity.
func (c *Cache) Forget(key EntityKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
}

// Len returns the number of cached entities, including lookups in
// progress.
func (c *Cache) Len() int {
	return c.entries.Len()
}
