// Package cache shares loads of remote resources between concurrent callers.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"raid-stats/internal/constants"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Loader produces the value of one key. It receives a context detached from
// the caller that triggered it, bounded by constants.LoadTimeout.
type Loader[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	value    V
	loadedAt time.Time
}

// Cache runs at most one load per key at a time and keeps successful results.
// Failed loads are not retained, so the next Get for the key loads again.
type Cache[K comparable, V any] struct {
	name   string
	ttl    time.Duration // <= 0 keeps values forever
	logger zerolog.Logger
	now    func() time.Time

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[K]entry[V]
	gens    map[K]uint64 // bumped by Forget; a load started under an older generation is not stored
}

func New[K comparable, V any](name string, ttl time.Duration, logger zerolog.Logger) *Cache[K, V] {
	return &Cache[K, V]{
		name:    name,
		ttl:     ttl,
		logger:  logger.With().Str("cache", name).Logger(),
		now:     time.Now,
		entries: make(map[K]entry[V]),
		gens:    make(map[K]uint64),
	}
}

// Get returns the cached value of key or joins the load in flight, starting
// one with load when there is none. A caller whose ctx ends stops waiting;
// the load itself keeps running for the other callers.
func (c *Cache[K, V]) Get(ctx context.Context, key K, load Loader[V]) (V, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	ch := c.group.DoChan(flightKey(key), func() (any, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		c.mu.RLock()
		gen := c.gens[key]
		c.mu.RUnlock()

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.LoadTimeout)
		defer cancel()

		start := time.Now()
		v, err := load(loadCtx)
		if err != nil {
			c.logger.Warn().Err(err).Str("key", flightKey(key)).Msg("load failed")
			return v, err
		}

		c.mu.Lock()
		stale := c.gens[key] != gen
		if !stale {
			c.entries[key] = entry[V]{value: v, loadedAt: c.now()}
		}
		c.mu.Unlock()
		if stale {
			c.logger.Debug().Str("key", flightKey(key)).Msg("discarded load started before forget")
			return v, nil
		}

		c.logger.Debug().
			Str("key", flightKey(key)).
			Dur("duration", time.Since(start)).
			Msg("loaded")
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			var zero V
			return zero, r.Err
		}
		if r.Shared {
			c.logger.Debug().Str("key", flightKey(key)).Msg("joined in-flight load")
		}
		return r.Val.(V), nil
	}
}

func (c *Cache[K, V]) lookup(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	if c.ttl > 0 && c.now().Sub(e.loadedAt) >= c.ttl {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.loadedAt.Equal(e.loadedAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.value, true
}

// Forget drops the cached value of key. A load already in flight is not
// interrupted and still answers its callers, but its result is not kept;
// later callers start a new one.
func (c *Cache[K, V]) Forget(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	c.mu.Unlock()
	c.group.Forget(flightKey(key))
}

// Len returns the number of cached values, expired ones included.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func flightKey[K comparable](key K) string {
	return fmt.Sprint(key)
}
