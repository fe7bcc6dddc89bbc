// Package cache implements the portal-only query result cache: a
// bounded FIFO of CacheEntry with a TTL sweep. Deliberately plain
// rather than an adaptive LRU/LFU policy — eviction order is purely
// insertion order, and a cached entry's key is the raw query-id, so
// two distinct queries that happen to reuse a query-id will alias.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/basecamp/federatedkv/internal/metrics"
	"github.com/basecamp/federatedkv/internal/model"
	"go.uber.org/zap"
)

// QueryCache is a bounded FIFO + TTL cache of query results. A single
// mutex protects the whole structure; operations are short and never
// release the lock mid-way.
type QueryCache struct {
	mu         sync.Mutex
	capacity   int
	ttl        time.Duration
	entries    *list.List // front = oldest, back = newest
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// New creates a QueryCache with the given capacity and TTL.
func New(capacity int, ttlSeconds int, m *metrics.Metrics, logger *zap.Logger) *QueryCache {
	return &QueryCache{
		capacity: capacity,
		ttl:      time.Duration(ttlSeconds) * time.Second,
		entries:  list.New(),
		logger:   logger,
		metrics:  m,
	}
}

// Lookup scans entries in insertion order for the first non-expired
// entry matching queryID. On hit, the returned response has FromCache
// set true.
func (c *QueryCache) Lookup(queryID string) (model.QueryResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked()

	for e := c.entries.Front(); e != nil; e = e.Next() {
		entry := e.Value.(model.CacheEntry)
		if entry.QueryID == queryID {
			resp := entry.Response
			resp.FromCache = true
			c.metrics.RecordCacheHit()
			return resp, true
		}
	}
	c.metrics.RecordCacheMiss()
	return model.QueryResponse{}, false
}

// Insert appends a new entry, evicting the oldest entry first if the
// cache is at capacity. Does not deduplicate on queryID.
func (c *QueryCache) Insert(queryID string, resp model.QueryResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked()

	if c.entries.Len() >= c.capacity {
		oldest := c.entries.Front()
		if oldest != nil {
			c.entries.Remove(oldest)
			c.metrics.RecordCacheEviction()
		}
	}

	c.entries.PushBack(model.CacheEntry{
		QueryID:           queryID,
		Response:          resp,
		InsertionUnixNano: time.Now().UnixNano(),
	})
	c.metrics.UpdateCacheEntries(c.entries.Len())
}

// sweepLocked removes every expired entry. Callers must hold c.mu.
func (c *QueryCache) sweepLocked() {
	now := time.Now().UnixNano()
	for e := c.entries.Front(); e != nil; {
		next := e.Next()
		entry := e.Value.(model.CacheEntry)
		if time.Duration(now-entry.InsertionUnixNano) > c.ttl {
			c.entries.Remove(e)
			c.metrics.RecordCacheEviction()
		}
		e = next
	}
	c.metrics.UpdateCacheEntries(c.entries.Len())
}

// Len reports the current number of entries, including any not yet
// swept past their TTL.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
