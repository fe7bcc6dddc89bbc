// Package membership provides the peer-liveness gossip layer: a
// hashicorp/memberlist ring used purely as a fast-path skip for the
// fan-out coordinator (internal/fanout). It never changes a node's
// data range, its connects-to list, or any other piece of the
// immutable topology — those come only from the config file
// (internal/config) and are fixed for the process lifetime. Gossip can
// only make the fan-out coordinator skip a peer early; it can never
// add a peer that isn't already in the topology.
package membership

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/basecamp/federatedkv/internal/client"
	"github.com/basecamp/federatedkv/internal/metrics"
	"github.com/basecamp/federatedkv/internal/model"
	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"
)

// Config holds gossip protocol configuration.
type Config struct {
	NodeID        string
	BindPort      int
	SeedAddresses []string
}

// Gossip maintains memberlist membership and updates the peer pool's
// liveness flags as nodes join and leave.
type Gossip struct {
	nodeID     string
	memberlist *memberlist.Memberlist
	peerPool   *client.PeerPool
	metrics    *metrics.Metrics
	logger     *zap.Logger
	health     model.HealthStatus
}

// New creates and starts a Gossip instance, joining any configured
// seed addresses. Failure to join a seed is logged, never fatal: a
// node with no reachable peers still serves local queries correctly.
func New(cfg Config, peerPool *client.PeerPool, m *metrics.Metrics, logger *zap.Logger) (*Gossip, error) {
	g := &Gossip{
		nodeID:   cfg.NodeID,
		peerPool: peerPool,
		metrics:  m,
		logger:   logger,
		health:   model.HealthStatus{NodeID: cfg.NodeID, Status: model.NodeStatusHealthy, Timestamp: time.Now().Unix()},
	}

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = cfg.NodeID
	mlConfig.BindPort = cfg.BindPort
	mlConfig.Delegate = g
	mlConfig.Events = &eventDelegate{gossip: g}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("membership: create memberlist: %w", err)
	}
	g.memberlist = ml

	if len(cfg.SeedAddresses) > 0 {
		if _, err := ml.Join(cfg.SeedAddresses); err != nil {
			logger.Warn("failed to join some gossip seeds", zap.Error(err))
		}
	}

	return g, nil
}

// NodeMeta implements memberlist.Delegate.
func (g *Gossip) NodeMeta(limit int) []byte {
	data, _ := json.Marshal(g.health)
	if len(data) > limit {
		return data[:limit]
	}
	return data
}

// NotifyMsg implements memberlist.Delegate. Unused: liveness is
// derived from join/leave events, not application messages.
func (g *Gossip) NotifyMsg([]byte) {}

// GetBroadcasts implements memberlist.Delegate.
func (g *Gossip) GetBroadcasts(overhead, limit int) [][]byte { return nil }

// LocalState implements memberlist.Delegate.
func (g *Gossip) LocalState(join bool) []byte {
	data, _ := json.Marshal(g.health)
	return data
}

// MergeRemoteState implements memberlist.Delegate.
func (g *Gossip) MergeRemoteState([]byte, bool) {}

// Members returns the count of nodes memberlist currently considers alive.
func (g *Gossip) Members() int {
	return g.memberlist.NumMembers()
}

// Shutdown leaves the memberlist ring.
func (g *Gossip) Shutdown() error {
	return g.memberlist.Shutdown()
}

type eventDelegate struct {
	gossip *Gossip
}

func (d *eventDelegate) NotifyJoin(node *memberlist.Node) {
	d.gossip.logger.Info("peer joined gossip ring", zap.String("node_id", node.Name))
	if peer := d.gossip.peerPool.Get(node.Name); peer != nil {
		peer.SetAlive(true)
	}
	d.gossip.metrics.UpdatePeerMembersAlive(d.gossip.memberlist.NumMembers())
}

func (d *eventDelegate) NotifyLeave(node *memberlist.Node) {
	d.gossip.logger.Info("peer left gossip ring", zap.String("node_id", node.Name))
	if peer := d.gossip.peerPool.Get(node.Name); peer != nil {
		peer.SetAlive(false)
	}
	d.gossip.metrics.UpdatePeerMembersAlive(d.gossip.memberlist.NumMembers())
}

func (d *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	d.gossip.logger.Debug("peer updated in gossip ring", zap.String("node_id", node.Name))
}
