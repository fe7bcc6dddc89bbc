package cache_test

import (
	"testing"
	"time"

	"github.com/basecamp/federatedkv/internal/cache"
	"github.com/basecamp/federatedkv/internal/metrics"
	"github.com/basecamp/federatedkv/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T, capacity, ttlSeconds int) *cache.QueryCache {
	t.Helper()
	return cache.New(capacity, ttlSeconds, metrics.NewMetrics(t.Name()), zap.NewNop())
}

func TestLookupMissOnEmptyCache(t *testing.T) {
	c := newTestCache(t, 4, 30)
	_, ok := c.Lookup("q1")
	assert.False(t, ok)
}

func TestInsertThenLookupHits(t *testing.T) {
	c := newTestCache(t, 4, 30)
	c.Insert("q1", model.QueryResponse{QueryID: "q1", Success: true})

	resp, ok := c.Lookup("q1")
	require.True(t, ok)
	assert.True(t, resp.FromCache)
	assert.Equal(t, "q1", resp.QueryID)
}

func TestInsertEvictsOldestAtCapacity(t *testing.T) {
	c := newTestCache(t, 2, 30)
	c.Insert("q1", model.QueryResponse{QueryID: "q1"})
	c.Insert("q2", model.QueryResponse{QueryID: "q2"})
	c.Insert("q3", model.QueryResponse{QueryID: "q3"})

	assert.Equal(t, 2, c.Len())
	_, ok := c.Lookup("q1")
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok = c.Lookup("q3")
	assert.True(t, ok)
}

func TestLookupSkipsExpiredEntries(t *testing.T) {
	c := newTestCache(t, 4, 0) // ttl 0 -> expires immediately on next sweep
	c.Insert("q1", model.QueryResponse{QueryID: "q1"})
	time.Sleep(2 * time.Millisecond)

	_, ok := c.Lookup("q1")
	assert.False(t, ok)
}

func TestInsertDoesNotDeduplicate(t *testing.T) {
	c := newTestCache(t, 4, 30)
	c.Insert("q1", model.QueryResponse{QueryID: "q1", Results: nil})
	c.Insert("q1", model.QueryResponse{QueryID: "q1", Results: []model.DataItem{{Key: 1}}})

	assert.Equal(t, 2, c.Len())

	// lookup returns the first non-expired match in insertion order
	resp, ok := c.Lookup("q1")
	require.True(t, ok)
	assert.Empty(t, resp.Results)
}
