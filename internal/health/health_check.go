// Package health runs periodic liveness/readiness checks for a node,
// independent of the query path: a node can be live and ready even if
// every peer in its topology happens to be down, since each query is
// answered with whatever peers respond.
package health

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/basecamp/federatedkv/internal/model"
	"go.uber.org/zap"
)

// CheckResult is the outcome of one named check.
type CheckResult struct {
	Name      string
	Status    string // "healthy", "warning", "critical"
	Message   string
	Timestamp time.Time
}

// StoreProbe reports whether the local store can still serve reads.
type StoreProbe func() error

// Config configures a HealthChecker.
type Config struct {
	NodeID string
	// MaxGoroutines is the soft ceiling above which this node reports
	// degraded, a proxy for a fan-out coordinator that is leaking
	// goroutines instead of draining its per-peer workers.
	MaxGoroutines int
	Interval      time.Duration
}

// HealthChecker periodically probes the local store and resource usage.
type HealthChecker struct {
	nodeID        string
	store         StoreProbe
	maxGoroutines int
	interval      time.Duration
	logger        *zap.Logger

	mu          sync.RWMutex
	lastCheck   time.Time
	status      model.NodeStatus
	checks      map[string]CheckResult
	livenessOK  bool
	readinessOK bool
}

// New creates a HealthChecker. store may be nil if no local probe is available.
func New(cfg Config, store StoreProbe, logger *zap.Logger) *HealthChecker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	maxGoroutines := cfg.MaxGoroutines
	if maxGoroutines <= 0 {
		maxGoroutines = 10000
	}
	return &HealthChecker{
		nodeID:        cfg.NodeID,
		store:         store,
		maxGoroutines: maxGoroutines,
		interval:      interval,
		logger:        logger,
		checks:        make(map[string]CheckResult),
		livenessOK:    true,
		readinessOK:   true,
		status:        model.NodeStatusHealthy,
	}
}

// Start runs checks on a ticker until ctx is cancelled.
func (h *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.runChecks()

	for {
		select {
		case <-ticker.C:
			h.runChecks()
		case <-ctx.Done():
			h.logger.Info("health checker stopped")
			return
		}
	}
}

func (h *HealthChecker) runChecks() {
	results := []CheckResult{h.checkStore(), h.checkGoroutines()}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastCheck = time.Now()

	allHealthy := true
	allReady := true
	for _, result := range results {
		h.checks[result.Name] = result
		if result.Status != "healthy" {
			allHealthy = false
			if result.Status == "critical" {
				allReady = false
			}
		}
	}

	switch {
	case !allReady:
		h.status = model.NodeStatusUnhealthy
	case !allHealthy:
		h.status = model.NodeStatusDegraded
	default:
		h.status = model.NodeStatusHealthy
	}

	h.livenessOK = true
	h.readinessOK = allReady

	h.logger.Debug("health check completed",
		zap.String("status", string(h.status)),
		zap.Bool("readiness", h.readinessOK))
}

func (h *HealthChecker) checkStore() CheckResult {
	if h.store == nil {
		return CheckResult{Name: "local_store", Status: "healthy", Message: "no probe configured", Timestamp: time.Now()}
	}
	if err := h.store(); err != nil {
		return CheckResult{
			Name:      "local_store",
			Status:    "critical",
			Message:   fmt.Sprintf("local store probe failed: %v", err),
			Timestamp: time.Now(),
		}
	}
	return CheckResult{Name: "local_store", Status: "healthy", Message: "local store reachable", Timestamp: time.Now()}
}

func (h *HealthChecker) checkGoroutines() CheckResult {
	n := runtime.NumGoroutine()
	if n > h.maxGoroutines {
		return CheckResult{
			Name:      "goroutines",
			Status:    "warning",
			Message:   fmt.Sprintf("goroutine count %d exceeds threshold %d", n, h.maxGoroutines),
			Timestamp: time.Now(),
		}
	}
	return CheckResult{
		Name:      "goroutines",
		Status:    "healthy",
		Message:   fmt.Sprintf("goroutine count %d", n),
		Timestamp: time.Now(),
	}
}

// IsLive reports whether this process is live.
func (h *HealthChecker) IsLive() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.livenessOK
}

// IsReady reports whether this node is ready to serve queries.
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.readinessOK
}

// GetStatus returns the current aggregate health status.
func (h *HealthChecker) GetStatus() model.HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return model.HealthStatus{
		NodeID:    h.nodeID,
		Status:    h.status,
		Timestamp: h.lastCheck.Unix(),
	}
}

// GetChecks returns a copy of the most recent per-check results.
func (h *HealthChecker) GetChecks() map[string]CheckResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	checks := make(map[string]CheckResult, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	return checks
}

// SetReadiness overrides readiness, used during graceful shutdown to
// fail the readiness probe before the gRPC server stops accepting.
func (h *HealthChecker) SetReadiness(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessOK = ready
}
