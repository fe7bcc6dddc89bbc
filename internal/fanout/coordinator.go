// Package fanout implements the coordinator invoked by both
// QueryData's first hop and GatherData's further hops. Concurrent
// per-peer RPCs are scheduled one task per peer onto a bounded worker
// pool (internal/util/workerpool), each with its own per-peer
// deadline, bounded by an overall fan-out deadline after which
// unfinished tasks are left running but their results are discarded.
// A peer the pool's queue can't accept is counted as skipped rather
// than silently dropped from the round's totals.
package fanout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/basecamp/federatedkv/internal/client"
	"github.com/basecamp/federatedkv/internal/metrics"
	"github.com/basecamp/federatedkv/internal/model"
	"github.com/basecamp/federatedkv/internal/util/workerpool"
	"go.uber.org/zap"
)

// Config holds the coordinator's deadlines and worker pool sizing.
type Config struct {
	PeerDeadline   time.Duration
	OverallDeadline time.Duration
	MaxWorkers     int
	QueueSize      int
}

// Coordinator runs fan-out rounds against a fixed peer pool.
type Coordinator struct {
	pool            *workerpool.WorkerPool
	peerDeadline    time.Duration
	overallDeadline time.Duration
	metrics         *metrics.Metrics
	logger          *zap.Logger
}

// New creates a Coordinator backed by a dedicated worker pool.
func New(cfg Config, m *metrics.Metrics, logger *zap.Logger) *Coordinator {
	pool := workerpool.NewWorkerPool(&workerpool.Config{
		Name:       "fanout",
		MaxWorkers: cfg.MaxWorkers,
		QueueSize:  cfg.QueueSize,
		Logger:     logger,
	})
	return &Coordinator{
		pool:            pool,
		peerDeadline:    cfg.PeerDeadline,
		overallDeadline: cfg.OverallDeadline,
		metrics:         m,
		logger:          logger,
	}
}

// aggregate collects results from concurrent peer tasks under a single
// shared lock.
type aggregate struct {
	mu           sync.Mutex
	items        []model.DataItem
	contributing []string
}

func (a *aggregate) merge(resp *model.DataResponse) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = append(a.items, resp.DataItems...)
	a.contributing = append(a.contributing, resp.ContributingNodes...)
}

func (a *aggregate) snapshot() ([]model.DataItem, []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.items, a.contributing
}

// Result is the outcome of one fan-out round.
type Result struct {
	DataItems         []model.DataItem
	ContributingNodes []string
	PeersQueried      int
	PeersSkipped      int
	TimedOut          bool
}

// Run issues req to every peer in peers concurrently (skipping any peer
// the gossip layer has reported down) and aggregates successful
// responses.
func (c *Coordinator) Run(ctx context.Context, pool *client.PeerPool, req model.DataRequest, peers []model.NodeConfig) Result {
	start := time.Now()
	agg := &aggregate{}
	var wg sync.WaitGroup

	queried := 0
	skipped := 0

	for _, peerCfg := range peers {
		peer := pool.Get(peerCfg.ID)
		if peer == nil {
			c.logger.Warn("peer not dialed, skipping fan-out target", zap.String("peer_id", peerCfg.ID))
			continue
		}
		if !peer.Alive() {
			skipped++
			c.logger.Debug("skipping peer per gossip-reported liveness", zap.String("peer_id", peerCfg.ID))
			continue
		}

		wg.Add(1)

		task := workerpool.Task{
			ID: fmt.Sprintf("gather:%s:%s", req.QueryID, peer.ID),
			Fn: func(taskCtx context.Context) error {
				defer wg.Done()
				return c.callPeer(taskCtx, peer, req, agg)
			},
		}
		if err := c.pool.Submit(task); err != nil {
			wg.Done()
			skipped++
			c.logger.Warn("fan-out queue full, dropping peer", zap.String("peer_id", peer.ID), zap.Error(err))
			continue
		}
		queried++
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	overallCtx, cancel := context.WithTimeout(ctx, c.overallDeadline)
	defer cancel()

	timedOut := false
	select {
	case <-done:
	case <-overallCtx.Done():
		timedOut = true
	}

	items, contributing := agg.snapshot()
	c.metrics.RecordFanOut(queried, skipped, time.Since(start).Seconds(), timedOut)

	return Result{
		DataItems:         items,
		ContributingNodes: contributing,
		PeersQueried:      queried,
		PeersSkipped:      skipped,
		TimedOut:          timedOut,
	}
}

func (c *Coordinator) callPeer(ctx context.Context, peer *client.Peer, req model.DataRequest, agg *aggregate) error {
	peerCtx, cancel := context.WithTimeout(ctx, c.peerDeadline)
	defer cancel()

	start := time.Now()
	resp, err := peer.Client.GatherData(peerCtx, &req)
	duration := time.Since(start).Seconds()

	if err != nil {
		c.metrics.RecordPeerRPC(peer.ID, "unreachable", duration)
		c.logger.Warn("peer RPC failed", zap.String("peer_id", peer.ID), zap.Error(err))
		return err
	}
	if !resp.Success {
		c.metrics.RecordPeerRPC(peer.ID, "application_error", duration)
		c.logger.Debug("peer reported failure",
			zap.String("peer_id", peer.ID), zap.String("error", resp.ErrorMessage))
		return nil
	}

	c.metrics.RecordPeerRPC(peer.ID, "ok", duration)
	agg.merge(resp)
	return nil
}

// Stop drains the fan-out worker pool.
func (c *Coordinator) Stop(timeout time.Duration) error {
	return c.pool.Stop(timeout)
}
