// Package router holds pure functions over model.Topology deciding
// which peers (and whether the local store) should serve a given
// query.
package router

import "github.com/basecamp/federatedkv/internal/model"

// SelectPeers returns the peers that should be contacted for req,
// filtered by its query type and excluding every node id already in
// visited.
func SelectPeers(topo *model.Topology, selfID string, req model.QueryRequest, visited []string) []model.NodeConfig {
	candidates := topo.Peers(selfID)
	selected := make([]model.NodeConfig, 0, len(candidates))

	for _, peer := range candidates {
		if contains(visited, peer.ID) {
			continue
		}
		if matchesQuery(peer.DataRange, req) {
			selected = append(selected, peer)
		}
	}
	return selected
}

// LocalRangeApplies reports whether the local store (owning localRange)
// should be consulted for req, using the same matching rules as peer
// selection.
func LocalRangeApplies(localRange model.DataRange, req model.QueryRequest) bool {
	return matchesQuery(localRange, req)
}

func matchesQuery(r model.DataRange, req model.QueryRequest) bool {
	switch req.Type {
	case model.QueryExact:
		return r.Contains(req.Key)
	case model.QueryRange:
		return r.Overlaps(req.RangeStart, req.RangeEnd)
	case model.QueryAll, model.QueryWrite:
		return true
	default:
		return false
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
