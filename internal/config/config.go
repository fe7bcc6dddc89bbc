// Package config loads the JSON topology document and produces the
// immutable model.Topology every other component reads from.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/basecamp/federatedkv/internal/model"
)

// DefaultMaxHops is the hard-coded hop limit on fan-out forwarding.
// There is no configuration surface for it; every node shares it.
const DefaultMaxHops = 3

// DefaultFanOutDeadlineSeconds and DefaultPeerDeadlineSeconds are the
// wall-clock budgets for, respectively, a node's overall fan-out round
// and a single peer RPC within it.
const (
	DefaultFanOutDeadlineSeconds = 4
	DefaultPeerDeadlineSeconds   = 5
)

// DefaultMaxConcurrentStreams bounds the gRPC server's transport-level
// concurrency, sized generously above the per-peer worker pool so the
// transport is never the bottleneck ahead of the pool's own queue.
const DefaultMaxConcurrentStreams = 256

// rawNode mirrors one entry of the "nodes" object in the config file.
type rawNode struct {
	DataRange  [2]int32 `json:"data_range"`
	Port       int      `json:"port"`
	Computer   int      `json:"computer"`
	ConnectsTo []string `json:"connects_to"`
}

// rawConfig mirrors the top-level JSON document's shape on disk.
type rawConfig struct {
	Portal          string             `json:"portal"`
	SharedMemoryKey string             `json:"shared_memory_key"`
	CacheSize       int                `json:"cache_size"`
	CacheTTLSeconds int                `json:"cache_ttl_seconds"`
	Nodes           map[string]rawNode `json:"nodes"`
}

// Load reads and validates the topology file at path for nodeID,
// returning the immutable model.Topology. Every failure here is fatal
// at start-up; there is no partial or degraded load.
func Load(path string, nodeID string) (*model.Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := validateRaw(&raw, nodeID); err != nil {
		return nil, fmt.Errorf("config: invalid %s: %w", path, err)
	}

	topo := &model.Topology{
		Portal:          raw.Portal,
		SharedMemoryKey: raw.SharedMemoryKey,
		CacheSize:       raw.CacheSize,
		CacheTTLSeconds: raw.CacheTTLSeconds,
		Nodes:           make(map[string]model.NodeConfig, len(raw.Nodes)),
	}
	for id, n := range raw.Nodes {
		topo.Nodes[id] = model.NodeConfig{
			ID:            id,
			DataRange:     model.DataRange{Lo: n.DataRange[0], Hi: n.DataRange[1]},
			Host:          "0.0.0.0",
			Port:          n.Port,
			ComputerGroup: n.Computer,
			ConnectsTo:    n.ConnectsTo,
		}
	}
	return topo, nil
}

// validateRaw enforces every fatal condition on the raw document: node
// id absent from nodes, malformed range (lo > hi), missing required
// scalars.
func validateRaw(raw *rawConfig, nodeID string) error {
	if raw.Portal == "" {
		return fmt.Errorf("missing required field: portal")
	}
	if raw.SharedMemoryKey == "" {
		return fmt.Errorf("missing required field: shared_memory_key")
	}
	if raw.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be a positive integer, got %d", raw.CacheSize)
	}
	if raw.CacheTTLSeconds <= 0 {
		return fmt.Errorf("cache_ttl_seconds must be a positive integer, got %d", raw.CacheTTLSeconds)
	}
	if len(raw.Nodes) == 0 {
		return fmt.Errorf("missing required field: nodes")
	}
	if _, ok := raw.Nodes[nodeID]; !ok {
		return fmt.Errorf("node id %q not found in nodes", nodeID)
	}
	if _, ok := raw.Nodes[raw.Portal]; !ok {
		return fmt.Errorf("portal node id %q not found in nodes", raw.Portal)
	}

	seen := make(map[string]model.DataRange, len(raw.Nodes))
	for id, n := range raw.Nodes {
		if n.DataRange[0] > n.DataRange[1] {
			return fmt.Errorf("node %q has malformed range [%d, %d]", id, n.DataRange[0], n.DataRange[1])
		}
		if n.Port < 1 || n.Port > 65535 {
			return fmt.Errorf("node %q has invalid port %d", id, n.Port)
		}
		r := model.DataRange{Lo: n.DataRange[0], Hi: n.DataRange[1]}
		for otherID, otherRange := range seen {
			if r.Overlaps(otherRange.Lo, otherRange.Hi) {
				return fmt.Errorf("node %q range [%d,%d] overlaps node %q range [%d,%d]",
					id, r.Lo, r.Hi, otherID, otherRange.Lo, otherRange.Hi)
			}
		}
		seen[id] = r

		for _, peer := range n.ConnectsTo {
			if _, ok := raw.Nodes[peer]; !ok {
				return fmt.Errorf("node %q connects_to unknown node %q", id, peer)
			}
		}
	}

	return nil
}
