package search

import (
	"container/list"
	"context"
	"log/slog"
	"sync"

	"fitspot/placesearch/internal/domain"
	"fitspot/placesearch/internal/metrics"
)

// ResultCache maps a place identifier to its most recently fetched detailed record.
// Put replaces the stored record whole; no field merging happens at this layer.
type ResultCache interface {
	Get(ctx context.Context, placeID string) (domain.Place, bool)
	Put(ctx context.Context, placeID string, place domain.Place)
}

type cacheEntry struct {
	key   string
	place domain.Place
}

// MemoryResultCache is safe for concurrent use. With maxEntries <= 0 it grows
// without bound for the life of the process; otherwise the least recently used
// record is evicted once the limit is exceeded.
type MemoryResultCache struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]*list.Element
	lru        *list.List
}

func NewMemoryResultCache(maxEntries int) *MemoryResultCache {
	return &MemoryResultCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
	}
}

func (c *MemoryResultCache) Get(_ context.Context, placeID string) (domain.Place, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.entries[placeID]
	if !ok {
		metrics.ResultCacheMissesTotal.WithLabelValues("memory").Inc()
		return domain.Place{}, false
	}
	c.lru.MoveToFront(element)
	metrics.ResultCacheHitsTotal.WithLabelValues("memory").Inc()
	return element.Value.(*cacheEntry).place.Clone(), true
}

func (c *MemoryResultCache) Put(_ context.Context, placeID string, place domain.Place) {
	if placeID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.entries[placeID]; ok {
		element.Value.(*cacheEntry).place = place.Clone()
		c.lru.MoveToFront(element)
		return
	}
	c.entries[placeID] = c.lru.PushFront(&cacheEntry{key: placeID, place: place.Clone()})
	c.evictLocked()
}

func (c *MemoryResultCache) evictLocked() {
	if c.maxEntries <= 0 {
		return
	}
	for c.lru.Len() > c.maxEntries {
		oldest := c.lru.Back()
		if oldest == nil {
			return
		}
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (c *MemoryResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// LayeredResultCache reads the local cache first and falls back to the remote
// one, warming the local layer on remote hits. Writes go to both.
type LayeredResultCache struct {
	local  ResultCache
	remote *RedisResultCache
}

func NewLayeredResultCache(local ResultCache, remote *RedisResultCache) *LayeredResultCache {
	return &LayeredResultCache{local: local, remote: remote}
}

func (c *LayeredResultCache) Get(ctx context.Context, placeID string) (domain.Place, bool) {
	if place, ok := c.local.Get(ctx, placeID); ok {
		return place, true
	}
	if c.remote == nil {
		return domain.Place{}, false
	}
	place, ok, err := c.remote.Lookup(ctx, placeID)
	if err != nil {
		slog.Warn("result cache remote lookup failed",
			slog.String("placeId", placeID),
			slog.String("error", err.Error()),
		)
		return domain.Place{}, false
	}
	if !ok {
		return domain.Place{}, false
	}
	c.local.Put(ctx, placeID, place)
	return place, true
}

func (c *LayeredResultCache) Put(ctx context.Context, placeID string, place domain.Place) {
	c.local.Put(ctx, placeID, place)
	if c.remote == nil {
		return
	}
	if err := c.remote.Store(ctx, placeID, place); err != nil {
		slog.Warn("result cache remote store failed",
			slog.String("placeId", placeID),
			slog.String("error", err.Error()),
		)
	}
}
