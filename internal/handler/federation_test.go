package handler_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/basecamp/federatedkv/internal/cache"
	"github.com/basecamp/federatedkv/internal/client"
	"github.com/basecamp/federatedkv/internal/fanout"
	"github.com/basecamp/federatedkv/internal/handler"
	"github.com/basecamp/federatedkv/internal/metrics"
	"github.com/basecamp/federatedkv/internal/model"
	"github.com/basecamp/federatedkv/internal/rpc"
	"github.com/basecamp/federatedkv/internal/store"
	"github.com/basecamp/federatedkv/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// federation bundles the client stubs an end-to-end test drives the
// portal through, plus a way to take a node down mid-test.
type federation struct {
	clients map[string]rpc.PeerServiceClient
	stop    func(nodeID string)
}

// setupFederation wires three real, independently listening nodes —
// A=[1,100] (portal), B=[101,200], C=[201,300] — each reachable over
// real gRPC.
func setupFederation(t *testing.T) federation {
	t.Helper()

	ranges := map[string]model.DataRange{
		"A": {Lo: 1, Hi: 100},
		"B": {Lo: 101, Hi: 200},
		"C": {Lo: 201, Hi: 300},
	}
	connectsTo := map[string][]string{
		"A": {"B", "C"},
		"B": {"A", "C"},
		"C": {"A", "B"},
	}

	listeners := make(map[string]net.Listener)
	for id := range ranges {
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		listeners[id] = lis
	}

	nodes := make(map[string]model.NodeConfig, len(ranges))
	for id, rng := range ranges {
		nodes[id] = model.NodeConfig{ID: id, DataRange: rng, ConnectsTo: connectsTo[id]}
	}
	topo := &model.Topology{Portal: "A", CacheSize: 4, CacheTTLSeconds: 30, Nodes: nodes}

	var conns []*grpc.ClientConn
	dial := func(addr string) *grpc.ClientConn {
		conn, err := grpc.NewClient(addr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(grpc.ForceCodec(rpc.Codec())),
		)
		require.NoError(t, err)
		conns = append(conns, conn)
		return conn
	}

	peerPools := make(map[string]*client.PeerPool)
	for id, peerIDs := range connectsTo {
		peers := make(map[string]*client.Peer)
		for _, peerID := range peerIDs {
			conn := dial(listeners[peerID].Addr().String())
			p := &client.Peer{ID: peerID, Conn: conn, Client: rpc.NewPeerServiceClient(conn)}
			p.SetAlive(true)
			peers[peerID] = p
		}
		peerPools[id] = client.NewStatic(peers)
	}

	m := metrics.NewMetrics(t.Name())
	servers := make(map[string]*grpc.Server, len(ranges))
	clients := make(map[string]rpc.PeerServiceClient, len(ranges))

	for id, rng := range ranges {
		localStore := store.New("e2e_shm", id, rng, zap.NewNop())
		t.Cleanup(localStore.Close)

		var queryCache *cache.QueryCache
		if id == topo.Portal {
			queryCache = cache.New(topo.CacheSize, topo.CacheTTLSeconds, m, zap.NewNop())
		}

		coordinator := fanout.New(fanout.Config{
			PeerDeadline: 2 * time.Second, OverallDeadline: 2 * time.Second, MaxWorkers: 4, QueueSize: 16,
		}, m, zap.NewNop())
		t.Cleanup(func() { coordinator.Stop(time.Second) })

		h := handler.New(handler.Config{SelfID: id, MaxHops: 3}, topo, localStore, queryCache,
			peerPools[id], coordinator, validation.NewValidator(), m, zap.NewNop())

		grpcServer := grpc.NewServer(grpc.ForceServerCodec(rpc.Codec()))
		rpc.RegisterPeerServiceServer(grpcServer, h)
		servers[id] = grpcServer

		lis := listeners[id]
		go grpcServer.Serve(lis)

		clients[id] = rpc.NewPeerServiceClient(dial(lis.Addr().String()))
	}

	t.Cleanup(func() {
		for _, s := range servers {
			s.Stop()
		}
		for _, c := range conns {
			c.Close()
		}
	})

	return federation{
		clients: clients,
		stop: func(nodeID string) {
			servers[nodeID].Stop()
			listeners[nodeID].Close()
		},
	}
}

// exact query for a key the portal owns, then a cached re-issue.
func TestFederationExactQueryOnPortalRange(t *testing.T) {
	fed := setupFederation(t)
	portal := fed.clients["A"]

	resp, err := portal.QueryData(context.Background(), &model.QueryRequest{
		QueryID: "q1", Type: model.QueryExact, Key: 42,
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, int32(42), resp.Results[0].Key)
	assert.Equal(t, "A", resp.Results[0].SourceNode)
	assert.False(t, resp.FromCache)

	again, err := portal.QueryData(context.Background(), &model.QueryRequest{
		QueryID: "q1", Type: model.QueryExact, Key: 42,
	})
	require.NoError(t, err)
	assert.True(t, again.FromCache)
	assert.Equal(t, resp.Results, again.Results)
}

// exact query for a key owned by a peer, reached via one hop.
func TestFederationExactQueryRoutesToOwningPeer(t *testing.T) {
	fed := setupFederation(t)
	portal := fed.clients["A"]

	resp, err := portal.QueryData(context.Background(), &model.QueryRequest{
		QueryID: "q2", Type: model.QueryExact, Key: 175,
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, int32(175), resp.Results[0].Key)
	assert.Equal(t, "B", resp.Results[0].SourceNode)
}

// range query spanning all three nodes' ranges.
func TestFederationRangeQuerySpansMultipleNodes(t *testing.T) {
	fed := setupFederation(t)
	portal := fed.clients["A"]

	resp, err := portal.QueryData(context.Background(), &model.QueryRequest{
		QueryID: "q3", Type: model.QueryRange, RangeStart: 95, RangeEnd: 205,
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Len(t, resp.Results, 111)

	seen := make(map[int32]bool)
	for _, item := range resp.Results {
		assert.True(t, item.Key >= 95 && item.Key <= 205)
		seen[item.Key] = true
	}
	assert.Len(t, seen, 111)
}

// an all query returns every key in the federation.
func TestFederationAllQueryReturnsEveryKey(t *testing.T) {
	fed := setupFederation(t)
	portal := fed.clients["A"]

	resp, err := portal.QueryData(context.Background(), &model.QueryRequest{
		QueryID: "q4", Type: model.QueryAll,
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Len(t, resp.Results, 300)
}

// a write lands on the owning node and is visible to a later read.
func TestFederationWriteThenReadObservesTheWrite(t *testing.T) {
	fed := setupFederation(t)
	portal := fed.clients["A"]

	writeResp, err := portal.QueryData(context.Background(), &model.QueryRequest{
		QueryID: "q5", Type: model.QueryWrite, Key: 42, StringParam: "hello",
	})
	require.NoError(t, err)
	require.True(t, writeResp.Success)

	readResp, err := portal.QueryData(context.Background(), &model.QueryRequest{
		QueryID: "q5b", Type: model.QueryExact, Key: 42,
	})
	require.NoError(t, err)
	require.Len(t, readResp.Results, 1)
	assert.Equal(t, "hello", readResp.Results[0].Value.Str)
	assert.Equal(t, "A", readResp.Results[0].SourceNode)
}

// killing a peer's server still returns partial success, never an error.
func TestFederationSurvivesADownPeer(t *testing.T) {
	fed := setupFederation(t)
	portal := fed.clients["A"]
	fed.stop("C")

	resp, err := portal.QueryData(context.Background(), &model.QueryRequest{
		QueryID: "q6", Type: model.QueryAll,
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Len(t, resp.Results, 200)

	for _, item := range resp.Results {
		assert.True(t, item.Key <= 200, "no items from the now-unreachable node C should appear")
	}
}
