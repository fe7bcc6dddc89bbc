// Package server hosts the node's HTTP surface: Prometheus scraping
// and the liveness/readiness probes backed by internal/health.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/basecamp/federatedkv/internal/health"
	"github.com/basecamp/federatedkv/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsServer serves /metrics, /health and /ready over HTTP.
type MetricsServer struct {
	httpServer *http.Server
	metrics    *metrics.Metrics
	checker    *health.HealthChecker
	logger     *zap.Logger
	stopChan   chan struct{}
}

// Config configures the metrics server.
type Config struct {
	Port int
}

// New creates a MetricsServer bound to cfg.Port.
func New(cfg Config, m *metrics.Metrics, checker *health.HealthChecker, logger *zap.Logger) *MetricsServer {
	mux := http.NewServeMux()

	s := &MetricsServer{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		metrics:  m,
		checker:  checker,
		logger:   logger,
		stopChan: make(chan struct{}),
	}

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)

	return s
}

// Start begins serving and launches the goroutine-count collector.
func (s *MetricsServer) Start() error {
	s.logger.Info("starting metrics server", zap.String("addr", s.httpServer.Addr))

	go s.collectGoroutineCount()

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *MetricsServer) Stop() error {
	s.logger.Info("stopping metrics server")
	close(s.stopChan)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	return nil
}

func (s *MetricsServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	live := s.checker.IsLive()
	status := s.checker.GetStatus()

	w.Header().Set("Content-Type", "application/json")
	if !live {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"healthy": live,
		"status":  status.Status,
		"node_id": status.NodeID,
	})
}

func (s *MetricsServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	ready := s.checker.IsReady()

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"ready":  ready,
		"checks": s.checker.GetChecks(),
	})
}

func (s *MetricsServer) collectGoroutineCount() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.metrics.UpdateGoroutines(runtime.NumGoroutine())
		case <-s.stopChan:
			return
		}
	}
}
