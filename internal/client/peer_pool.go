// Package client builds the peer client pool: one long-lived gRPC stub
// per peer named in this node's connects-to list, address resolution
// via computer-group-tag, and the REMOTE_IP fallback.
package client

import (
	"fmt"
	"os"

	"github.com/basecamp/federatedkv/internal/model"
	"github.com/basecamp/federatedkv/internal/rpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// RemoteIPEnvVar is the environment variable consulted when a peer
// sits in a different computer-group.
const RemoteIPEnvVar = "REMOTE_IP"

// Peer is one entry in the pool: a reusable stub plus the liveness
// flag the gossip layer maintains as a fast-path skip. While the flag
// is false the fan-out coordinator skips the peer without an RPC;
// while it is true every RPC is attempted normally.
type Peer struct {
	ID     string
	Conn   *grpc.ClientConn
	Client rpc.PeerServiceClient

	alive atomicBool
}

// SetAlive records the gossip-reported liveness of this peer.
func (p *Peer) SetAlive(alive bool) { p.alive.Set(alive) }

// Alive reports the last recorded liveness. A zero-value Peer reports
// false; New sets it true for every peer it dials.
func (p *Peer) Alive() bool { return p.alive.Get() }

// PeerPool holds one Peer per resolvable entry in connects-to.
type PeerPool struct {
	peers map[string]*Peer
}

// New dials every peer in topo.Peers(selfID), skipping connects-to
// entries that don't resolve to a known node (logged, not fatal).
func New(topo *model.Topology, selfID string, logger *zap.Logger) (*PeerPool, error) {
	self, ok := topo.Node(selfID)
	if !ok {
		return nil, fmt.Errorf("client: node %q not found in topology", selfID)
	}

	for _, id := range self.ConnectsTo {
		if _, ok := topo.Node(id); !ok {
			logger.Warn("connects-to peer not found in topology, skipping", zap.String("peer_id", id))
		}
	}

	pool := &PeerPool{peers: make(map[string]*Peer)}
	for _, peerCfg := range topo.Peers(selfID) {
		addr := resolveAddress(self, peerCfg)

		conn, err := grpc.NewClient(addr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(grpc.ForceCodec(rpc.Codec())),
		)
		if err != nil {
			logger.Warn("failed to dial peer, skipping",
				zap.String("peer_id", peerCfg.ID), zap.String("addr", addr), zap.Error(err))
			continue
		}

		p := &Peer{ID: peerCfg.ID, Conn: conn, Client: rpc.NewPeerServiceClient(conn)}
		p.SetAlive(true)
		pool.peers[peerCfg.ID] = p

		logger.Info("peer stub created", zap.String("peer_id", peerCfg.ID), zap.String("addr", addr))
	}

	return pool, nil
}

// resolveAddress picks loopback within the same computer-group,
// otherwise REMOTE_IP (falling back to loopback if unset).
func resolveAddress(self model.NodeConfig, peer model.NodeConfig) string {
	if peer.ComputerGroup == self.ComputerGroup {
		return fmt.Sprintf("127.0.0.1:%d", peer.Port)
	}
	host := os.Getenv(RemoteIPEnvVar)
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, peer.Port)
}

// NewStatic builds a PeerPool directly from a caller-supplied peer map,
// bypassing dialing. Used by fan-out tests that need to point at an
// in-process test server.
func NewStatic(peers map[string]*Peer) *PeerPool {
	return &PeerPool{peers: peers}
}

// Get returns the Peer for peerID, or nil if it was never dialed
// (missing or unresolvable in topology).
func (pp *PeerPool) Get(peerID string) *Peer {
	return pp.peers[peerID]
}

// All returns every dialed peer.
func (pp *PeerPool) All() []*Peer {
	peers := make([]*Peer, 0, len(pp.peers))
	for _, p := range pp.peers {
		peers = append(peers, p)
	}
	return peers
}

// Close closes every peer connection.
func (pp *PeerPool) Close() {
	for _, p := range pp.peers {
		p.Conn.Close()
	}
}
