// Package metrics exposes the node's Prometheus metrics, grouped by
// concern: the query path, the query cache, the fan-out coordinator,
// and peer health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric exported by a node.
type Metrics struct {
	QueryRequestsTotal    prometheus.CounterVec
	QueryRequestsDuration prometheus.HistogramVec
	QueryResultsTotal     prometheus.Histogram

	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CacheEvictionsTotal prometheus.Counter
	CacheEntriesTotal   prometheus.Gauge

	FanOutPeersQueried    prometheus.Histogram
	FanOutPeersSkipped    prometheus.Counter
	FanOutDuration        prometheus.Histogram
	FanOutTimeoutsTotal   prometheus.Counter
	FanOutForwardsTotal   prometheus.Counter

	PeerRPCsTotal    prometheus.CounterVec
	PeerRPCDuration  prometheus.HistogramVec
	PeerMembersAlive prometheus.Gauge

	GoroutinesTotal prometheus.Gauge
}

// NewMetrics creates and registers every metric under the "basecamp"
// namespace, labeled with the node's id.
func NewMetrics(nodeID string) *Metrics {
	labels := prometheus.Labels{"node_id": nodeID}

	return &Metrics{
		QueryRequestsTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "basecamp",
			Subsystem:   "query",
			Name:        "requests_total",
			Help:        "Total number of QueryData requests by query type and outcome",
			ConstLabels: labels,
		}, []string{"type", "outcome"}),
		QueryRequestsDuration: *promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "basecamp",
			Subsystem:   "query",
			Name:        "request_duration_seconds",
			Help:        "Histogram of QueryData end-to-end durations by query type",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"type"}),
		QueryResultsTotal: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "basecamp",
			Subsystem:   "query",
			Name:        "results_total",
			Help:        "Histogram of result-item counts returned per query",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 10),
		}),

		CacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "basecamp",
			Subsystem:   "cache",
			Name:        "hits_total",
			Help:        "Total number of query cache hits at the portal",
			ConstLabels: labels,
		}),
		CacheMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "basecamp",
			Subsystem:   "cache",
			Name:        "misses_total",
			Help:        "Total number of query cache misses at the portal",
			ConstLabels: labels,
		}),
		CacheEvictionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "basecamp",
			Subsystem:   "cache",
			Name:        "evictions_total",
			Help:        "Total number of query cache evictions (FIFO capacity or TTL sweep)",
			ConstLabels: labels,
		}),
		CacheEntriesTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "basecamp",
			Subsystem:   "cache",
			Name:        "entries_total",
			Help:        "Current number of entries in the query cache",
			ConstLabels: labels,
		}),

		FanOutPeersQueried: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "basecamp",
			Subsystem:   "fanout",
			Name:        "peers_queried",
			Help:        "Histogram of peers queried per fan-out round",
			ConstLabels: labels,
			Buckets:     prometheus.LinearBuckets(0, 1, 10),
		}),
		FanOutPeersSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "basecamp",
			Subsystem:   "fanout",
			Name:        "peers_skipped_total",
			Help:        "Total peers skipped by the fan-out coordinator due to gossip-reported liveness or a full worker-pool queue",
			ConstLabels: labels,
		}),
		FanOutDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "basecamp",
			Subsystem:   "fanout",
			Name:        "duration_seconds",
			Help:        "Histogram of fan-out round durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		FanOutTimeoutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "basecamp",
			Subsystem:   "fanout",
			Name:        "timeouts_total",
			Help:        "Total number of fan-out rounds that hit the overall deadline",
			ConstLabels: labels,
		}),
		FanOutForwardsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "basecamp",
			Subsystem:   "fanout",
			Name:        "forwards_total",
			Help:        "Total number of GatherData requests forwarded onward by this node",
			ConstLabels: labels,
		}),

		PeerRPCsTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "basecamp",
			Subsystem:   "peer",
			Name:        "rpcs_total",
			Help:        "Total outbound GatherData RPCs by peer and outcome",
			ConstLabels: labels,
		}, []string{"peer_id", "outcome"}),
		PeerRPCDuration: *promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "basecamp",
			Subsystem:   "peer",
			Name:        "rpc_duration_seconds",
			Help:        "Histogram of outbound GatherData RPC durations by peer",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"peer_id"}),
		PeerMembersAlive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "basecamp",
			Subsystem:   "peer",
			Name:        "members_alive",
			Help:        "Current number of gossip ring members, this node included, that memberlist reports as alive",
			ConstLabels: labels,
		}),

		GoroutinesTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "basecamp",
			Subsystem:   "system",
			Name:        "goroutines_total",
			Help:        "Current number of goroutines",
			ConstLabels: labels,
		}),
	}
}

// RecordQuery records the outcome and duration of one QueryData call.
func (m *Metrics) RecordQuery(queryType, outcome string, durationSeconds float64, resultCount int) {
	m.QueryRequestsTotal.WithLabelValues(queryType, outcome).Inc()
	m.QueryRequestsDuration.WithLabelValues(queryType).Observe(durationSeconds)
	m.QueryResultsTotal.Observe(float64(resultCount))
}

// RecordCacheHit records a query cache hit.
func (m *Metrics) RecordCacheHit() { m.CacheHitsTotal.Inc() }

// RecordCacheMiss records a query cache miss.
func (m *Metrics) RecordCacheMiss() { m.CacheMissesTotal.Inc() }

// RecordCacheEviction records one query cache eviction.
func (m *Metrics) RecordCacheEviction() { m.CacheEvictionsTotal.Inc() }

// UpdateCacheEntries sets the current query cache size.
func (m *Metrics) UpdateCacheEntries(entries int) {
	m.CacheEntriesTotal.Set(float64(entries))
}

// RecordFanOut records one completed fan-out round.
func (m *Metrics) RecordFanOut(peersQueried, peersSkipped int, durationSeconds float64, timedOut bool) {
	m.FanOutPeersQueried.Observe(float64(peersQueried))
	m.FanOutPeersSkipped.Add(float64(peersSkipped))
	m.FanOutDuration.Observe(durationSeconds)
	if timedOut {
		m.FanOutTimeoutsTotal.Inc()
	}
}

// RecordForward records one GatherData request forwarded onward.
func (m *Metrics) RecordForward() { m.FanOutForwardsTotal.Inc() }

// RecordPeerRPC records one outbound GatherData RPC to peerID.
func (m *Metrics) RecordPeerRPC(peerID, outcome string, durationSeconds float64) {
	m.PeerRPCsTotal.WithLabelValues(peerID, outcome).Inc()
	m.PeerRPCDuration.WithLabelValues(peerID).Observe(durationSeconds)
}

// UpdatePeerMembersAlive sets the current gossip-reported alive member count.
func (m *Metrics) UpdatePeerMembersAlive(count int) {
	m.PeerMembersAlive.Set(float64(count))
}

// UpdateGoroutines sets the current goroutine count.
func (m *Metrics) UpdateGoroutines(n int) {
	m.GoroutinesTotal.Set(float64(n))
}
