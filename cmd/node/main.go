package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/basecamp/federatedkv/internal/cache"
	"github.com/basecamp/federatedkv/internal/client"
	"github.com/basecamp/federatedkv/internal/config"
	"github.com/basecamp/federatedkv/internal/fanout"
	"github.com/basecamp/federatedkv/internal/handler"
	"github.com/basecamp/federatedkv/internal/health"
	"github.com/basecamp/federatedkv/internal/membership"
	"github.com/basecamp/federatedkv/internal/metrics"
	"github.com/basecamp/federatedkv/internal/rpc"
	"github.com/basecamp/federatedkv/internal/server"
	"github.com/basecamp/federatedkv/internal/store"
	"github.com/basecamp/federatedkv/internal/validation"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"net"
)

func main() {
	address := flag.String("address", "0.0.0.0:50051", "listen address")
	nodeID := flag.String("node-id", "A", "this node's id in the topology")
	configPath := flag.String("config", "../configs/topology.json", "path to the topology config file")
	metricsPort := flag.Int("metrics-port", 9090, "port for /metrics, /health, /ready")
	gossipPort := flag.Int("gossip-port", 7946, "memberlist bind port")
	flag.Parse()

	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	topo, err := config.Load(*configPath, *nodeID)
	if err != nil {
		logger.Fatal("failed to load topology", zap.Error(err))
	}

	self, _ := topo.Node(*nodeID)
	logger.Info("topology loaded",
		zap.String("node_id", *nodeID),
		zap.Bool("is_portal", topo.IsPortal(*nodeID)),
		zap.Int32("range_lo", self.DataRange.Lo),
		zap.Int32("range_hi", self.DataRange.Hi))

	localStore := store.New(topo.SharedMemoryKey, *nodeID, self.DataRange, logger)
	defer localStore.Close()

	m := metrics.NewMetrics(*nodeID)

	var queryCache *cache.QueryCache
	if topo.IsPortal(*nodeID) {
		queryCache = cache.New(topo.CacheSize, topo.CacheTTLSeconds, m, logger)
	}

	peerPool, err := client.New(topo, *nodeID, logger)
	if err != nil {
		logger.Fatal("failed to build peer pool", zap.Error(err))
	}
	defer peerPool.Close()

	coordinator := fanout.New(fanout.Config{
		PeerDeadline:    config.DefaultPeerDeadlineSeconds * time.Second,
		OverallDeadline: config.DefaultFanOutDeadlineSeconds * time.Second,
		MaxWorkers:      32,
		QueueSize:       256,
	}, m, logger)
	defer coordinator.Stop(5 * time.Second)

	validator := validation.NewValidator()

	peerHandler := handler.New(
		handler.Config{SelfID: *nodeID, MaxHops: config.DefaultMaxHops},
		topo, localStore, queryCache, peerPool, coordinator, validator, m, logger,
	)

	gossip, err := membership.New(membership.Config{
		NodeID:   *nodeID,
		BindPort: *gossipPort,
	}, peerPool, m, logger)
	if err != nil {
		logger.Warn("gossip layer unavailable, fan-out will always attempt every configured peer", zap.Error(err))
	} else {
		defer gossip.Shutdown()
	}

	healthChecker := health.New(health.Config{NodeID: *nodeID}, func() error {
		_, _, err := localStore.Get(self.DataRange.Lo)
		return err
	}, logger)
	healthCtx, cancelHealth := context.WithCancel(context.Background())
	go healthChecker.Start(healthCtx)
	defer cancelHealth()

	metricsServer := server.New(server.Config{Port: *metricsPort}, m, healthChecker, logger)
	if err := metricsServer.Start(); err != nil {
		logger.Fatal("failed to start metrics server", zap.Error(err))
	}
	defer metricsServer.Stop()

	grpcServer := grpc.NewServer(
		grpc.ForceServerCodec(rpc.Codec()),
		grpc.MaxConcurrentStreams(config.DefaultMaxConcurrentStreams),
	)
	rpc.RegisterPeerServiceServer(grpcServer, peerHandler)

	listener, err := net.Listen("tcp", *address)
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}

	logger.Info("node starting", zap.String("node_id", *nodeID), zap.String("address", *address))

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down gracefully")
		healthChecker.SetReadiness(false)
		grpcServer.GracefulStop()
	}()

	if err := grpcServer.Serve(listener); err != nil {
		logger.Fatal("failed to serve", zap.Error(err))
	}
}

func initLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	return cfg.Build()
}
