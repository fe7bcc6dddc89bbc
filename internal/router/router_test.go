package router_test

import (
	"testing"

	"github.com/basecamp/federatedkv/internal/model"
	"github.com/basecamp/federatedkv/internal/router"
	"github.com/stretchr/testify/assert"
)

func sampleTopology() *model.Topology {
	return &model.Topology{
		Portal: "A",
		Nodes: map[string]model.NodeConfig{
			"A": {ID: "A", DataRange: model.DataRange{Lo: 1, Hi: 100}, ConnectsTo: []string{"B", "C"}},
			"B": {ID: "B", DataRange: model.DataRange{Lo: 101, Hi: 200}, ConnectsTo: []string{"A", "C"}},
			"C": {ID: "C", DataRange: model.DataRange{Lo: 201, Hi: 300}, ConnectsTo: []string{"A", "B"}},
		},
	}
}

func TestSelectPeersExactRoutesToOwningRange(t *testing.T) {
	topo := sampleTopology()
	req := model.QueryRequest{Type: model.QueryExact, Key: 150}

	peers := router.SelectPeers(topo, "A", req, nil)
	assert.Len(t, peers, 1)
	assert.Equal(t, "B", peers[0].ID)
}

func TestSelectPeersRangeRoutesToOverlappingRanges(t *testing.T) {
	topo := sampleTopology()
	req := model.QueryRequest{Type: model.QueryRange, RangeStart: 150, RangeEnd: 250}

	peers := router.SelectPeers(topo, "A", req, nil)
	ids := []string{peers[0].ID, peers[1].ID}
	assert.ElementsMatch(t, []string{"B", "C"}, ids)
}

func TestSelectPeersAllRoutesToEveryPeer(t *testing.T) {
	topo := sampleTopology()
	req := model.QueryRequest{Type: model.QueryAll}

	peers := router.SelectPeers(topo, "A", req, nil)
	assert.Len(t, peers, 2)
}

func TestSelectPeersExcludesVisitedNodes(t *testing.T) {
	topo := sampleTopology()
	req := model.QueryRequest{Type: model.QueryAll}

	peers := router.SelectPeers(topo, "A", req, []string{"B"})
	assert.Len(t, peers, 1)
	assert.Equal(t, "C", peers[0].ID)
}

func TestLocalRangeAppliesExact(t *testing.T) {
	localRange := model.DataRange{Lo: 1, Hi: 100}
	assert.True(t, router.LocalRangeApplies(localRange, model.QueryRequest{Type: model.QueryExact, Key: 50}))
	assert.False(t, router.LocalRangeApplies(localRange, model.QueryRequest{Type: model.QueryExact, Key: 500}))
}

func TestLocalRangeAppliesWriteAlwaysTrue(t *testing.T) {
	localRange := model.DataRange{Lo: 1, Hi: 100}
	assert.True(t, router.LocalRangeApplies(localRange, model.QueryRequest{Type: model.QueryWrite, Key: 9999}))
}
