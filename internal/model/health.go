package model

// NodeStatus is the operational status surfaced by the health checker.
type NodeStatus string

const (
	NodeStatusHealthy   NodeStatus = "healthy"
	NodeStatusDegraded  NodeStatus = "degraded"
	NodeStatusUnhealthy NodeStatus = "unhealthy"
)

// HealthStatus is the payload a node advertises as its gossip node
// metadata and local state. Receiving nodes do not read it: peer
// liveness comes from memberlist join/leave events. It never carries
// topology information.
type HealthStatus struct {
	NodeID    string
	Status    NodeStatus
	Timestamp int64
}
