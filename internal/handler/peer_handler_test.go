package handler_test

import (
	"context"
	"testing"
	"time"

	"github.com/basecamp/federatedkv/internal/cache"
	"github.com/basecamp/federatedkv/internal/client"
	"github.com/basecamp/federatedkv/internal/fanout"
	"github.com/basecamp/federatedkv/internal/handler"
	"github.com/basecamp/federatedkv/internal/metrics"
	"github.com/basecamp/federatedkv/internal/model"
	"github.com/basecamp/federatedkv/internal/store"
	"github.com/basecamp/federatedkv/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T, selfID string, isPortal bool, rng model.DataRange) *handler.PeerHandler {
	t.Helper()

	portal := selfID
	if !isPortal {
		portal = "someone-else"
	}
	topo := &model.Topology{
		Portal: portal,
		Nodes: map[string]model.NodeConfig{
			selfID: {ID: selfID, DataRange: rng},
		},
	}

	localStore := store.New("test_shm", selfID, rng, zap.NewNop())
	t.Cleanup(localStore.Close)

	m := metrics.NewMetrics(t.Name())
	queryCache := cache.New(16, 30, m, zap.NewNop())
	peerPool := client.NewStatic(map[string]*client.Peer{})
	coordinator := fanout.New(fanout.Config{
		PeerDeadline: time.Second, OverallDeadline: time.Second, MaxWorkers: 2, QueueSize: 8,
	}, m, zap.NewNop())
	t.Cleanup(func() { coordinator.Stop(time.Second) })

	return handler.New(
		handler.Config{SelfID: selfID, MaxHops: 3},
		topo, localStore, queryCache, peerPool, coordinator, validation.NewValidator(), m, zap.NewNop(),
	)
}

func TestQueryDataRejectsNonPortalNode(t *testing.T) {
	h := newTestHandler(t, "A", false, model.DataRange{Lo: 1, Hi: 10})

	resp, err := h.QueryData(context.Background(), &model.QueryRequest{QueryID: "q1", Type: model.QueryExact, Key: 5})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.ErrorMessage, "not the portal")
}

func TestQueryDataRejectsInvalidRequest(t *testing.T) {
	h := newTestHandler(t, "A", true, model.DataRange{Lo: 1, Hi: 10})

	resp, err := h.QueryData(context.Background(), &model.QueryRequest{QueryID: "", Type: model.QueryExact, Key: 5})
	require.NoError(t, err)
	assert.False(t, resp.Success)
}

func TestQueryDataReturnsLocalMatchForExactKey(t *testing.T) {
	h := newTestHandler(t, "A", true, model.DataRange{Lo: 1, Hi: 10})

	resp, err := h.QueryData(context.Background(), &model.QueryRequest{QueryID: "q1", Type: model.QueryExact, Key: 5})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, int32(5), resp.Results[0].Key)
}

func TestQueryDataCachesSuccessfulResponse(t *testing.T) {
	h := newTestHandler(t, "A", true, model.DataRange{Lo: 1, Hi: 10})

	first, err := h.QueryData(context.Background(), &model.QueryRequest{QueryID: "q1", Type: model.QueryExact, Key: 5})
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := h.QueryData(context.Background(), &model.QueryRequest{QueryID: "q1", Type: model.QueryExact, Key: 5})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
}

func TestGatherDataReturnsLocalItemsAndResponderID(t *testing.T) {
	h := newTestHandler(t, "B", true, model.DataRange{Lo: 101, Hi: 110})

	resp, err := h.GatherData(context.Background(), &model.DataRequest{
		QueryRequest: model.QueryRequest{QueryID: "q1", Type: model.QueryRange, RangeStart: 101, RangeEnd: 105},
		RequesterID:  "A",
		VisitedNodes: []string{"A"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "B", resp.ResponderID)
	assert.Len(t, resp.DataItems, 5)
}

func TestGatherDataRejectsInvalidHopCount(t *testing.T) {
	h := newTestHandler(t, "B", true, model.DataRange{Lo: 101, Hi: 110})

	resp, err := h.GatherData(context.Background(), &model.DataRequest{
		QueryRequest: model.QueryRequest{QueryID: "q1", Type: model.QueryAll},
		RequesterID:  "A",
		HopCount:     5,
		MaxHops:      3,
	})
	require.NoError(t, err)
	assert.False(t, resp.Success)
}

func TestQueryDataWriteAppliesLocallyWhenKeyOwned(t *testing.T) {
	h := newTestHandler(t, "A", true, model.DataRange{Lo: 1, Hi: 10})

	resp, err := h.QueryData(context.Background(), &model.QueryRequest{
		QueryID: "w1", Type: model.QueryWrite, Key: 5, StringParam: "updated",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)

	follow, err := h.QueryData(context.Background(), &model.QueryRequest{QueryID: "w2", Type: model.QueryExact, Key: 5})
	require.NoError(t, err)
	require.Len(t, follow.Results, 1)
	assert.Equal(t, "updated", follow.Results[0].Value.Str)
}
