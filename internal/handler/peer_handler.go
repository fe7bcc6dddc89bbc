// Package handler implements the two-RPC peer surface: QueryData
// (portal-only, client-facing) and GatherData (any node, inter-node).
// Every handler method recovers from panics and folds them, like
// request validation failures, into an in-band success=false reply
// rather than a transport error. Local-store read failures and failed
// peers are logged and left out of the results; the reply still
// reports success=true.
package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/basecamp/federatedkv/internal/cache"
	"github.com/basecamp/federatedkv/internal/client"
	"github.com/basecamp/federatedkv/internal/fanout"
	"github.com/basecamp/federatedkv/internal/metrics"
	"github.com/basecamp/federatedkv/internal/model"
	"github.com/basecamp/federatedkv/internal/router"
	"github.com/basecamp/federatedkv/internal/store"
	"github.com/basecamp/federatedkv/internal/validation"
	"go.uber.org/zap"
)

// Config carries the fixed node parameters every emitted request
// needs.
type Config struct {
	SelfID  string
	MaxHops int32
}

// PeerHandler implements rpc.PeerServiceServer.
type PeerHandler struct {
	cfg         Config
	topo        *model.Topology
	store       *store.LocalStore
	cache       *cache.QueryCache // nil on non-portal nodes
	peerPool    *client.PeerPool
	coordinator *fanout.Coordinator
	validator   *validation.Validator
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// New creates a PeerHandler. cache may be nil for non-portal nodes.
func New(
	cfg Config,
	topo *model.Topology,
	localStore *store.LocalStore,
	queryCache *cache.QueryCache,
	peerPool *client.PeerPool,
	coordinator *fanout.Coordinator,
	validator *validation.Validator,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PeerHandler {
	return &PeerHandler{
		cfg:         cfg,
		topo:        topo,
		store:       localStore,
		cache:       queryCache,
		peerPool:    peerPool,
		coordinator: coordinator,
		validator:   validator,
		metrics:     m,
		logger:      logger,
	}
}

// QueryData is the client-facing entry point. Only the portal accepts
// it.
func (h *PeerHandler) QueryData(ctx context.Context, req *model.QueryRequest) (resp *model.QueryResponse, _ error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic in QueryData", zap.Any("panic", r))
			resp = &model.QueryResponse{QueryID: req.QueryID, Success: false, ErrorMessage: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	if !h.topo.IsPortal(h.cfg.SelfID) {
		h.metrics.RecordQuery(string(req.Type), "not_portal", time.Since(start).Seconds(), 0)
		return &model.QueryResponse{QueryID: req.QueryID, Success: false, ErrorMessage: "This node is not the portal"}, nil
	}

	if err := h.validator.ValidateQueryRequest(*req); err != nil {
		h.metrics.RecordQuery(string(req.Type), "invalid_argument", time.Since(start).Seconds(), 0)
		return &model.QueryResponse{QueryID: req.QueryID, Success: false, ErrorMessage: err.Error()}, nil
	}

	if cached, ok := h.cache.Lookup(req.QueryID); ok {
		cached.ProcessingTimeMs = time.Since(start).Milliseconds()
		h.metrics.RecordQuery(string(req.Type), "cache_hit", time.Since(start).Seconds(), len(cached.Results))
		return &cached, nil
	}

	results := h.localRead(*req)

	if req.Type == model.QueryWrite {
		h.applyLocalWrite(*req)
	}

	if time.Since(start) < 4*time.Second {
		peers := router.SelectPeers(h.topo, h.cfg.SelfID, *req, []string{h.cfg.SelfID})
		visited := make([]string, 0, len(peers)+1)
		visited = append(visited, h.cfg.SelfID)
		for _, p := range peers {
			visited = append(visited, p.ID)
		}
		outReq := model.DataRequest{
			QueryRequest:   *req,
			RequesterID:    h.cfg.SelfID,
			HopCount:       0,
			MaxHops:        h.cfg.MaxHops,
			RoutePath:      h.cfg.SelfID,
			VisitedNodes:   visited,
			ForwardToPeers: true,
			QueryContext:   map[string]string{"origin": "portal", "client_id": req.ClientID},
		}
		fanOutResult := h.coordinator.Run(ctx, h.peerPool, outReq, peers)
		results = append(results, fanOutResult.DataItems...)
	}

	response := model.QueryResponse{
		QueryID:          req.QueryID,
		Results:          results,
		Success:          true,
		Timestamp:        time.Now().UnixMilli(),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
	h.cache.Insert(req.QueryID, response)
	h.metrics.RecordQuery(string(req.Type), "ok", time.Since(start).Seconds(), len(results))
	return &response, nil
}

// GatherData is the inter-node entry point: a peer forwarding a query
// one more hop, or reporting back what it (and its own peers) found.
func (h *PeerHandler) GatherData(ctx context.Context, req *model.DataRequest) (resp *model.DataResponse, _ error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic in GatherData", zap.Any("panic", r))
			resp = &model.DataResponse{
				RequestID: req.QueryID, ResponderID: h.cfg.SelfID,
				Success: false, ErrorMessage: fmt.Sprintf("internal error: %v", r),
			}
		}
	}()

	if err := h.validator.ValidateDataRequest(*req); err != nil {
		return &model.DataResponse{
			RequestID: req.QueryID, ResponderID: h.cfg.SelfID,
			Success: false, ErrorMessage: err.Error(),
		}, nil
	}

	routePath := req.RoutePath
	if routePath == "" {
		routePath = h.cfg.SelfID
	} else {
		routePath = routePath + "->" + h.cfg.SelfID
	}

	items := h.localRead(req.QueryRequest)
	if req.Type == model.QueryWrite {
		h.applyLocalWrite(req.QueryRequest)
	}
	contributing := []string{h.cfg.SelfID}

	if req.ForwardToPeers && req.HopCount+1 < req.MaxHops {
		forwardReq := req.WithHop(h.cfg.SelfID)
		peers := router.SelectPeers(h.topo, h.cfg.SelfID, req.QueryRequest, forwardReq.VisitedNodes)
		if len(peers) > 0 {
			for _, p := range peers {
				forwardReq.VisitedNodes = append(forwardReq.VisitedNodes, p.ID)
			}
			h.metrics.RecordForward()
			fanOutResult := h.coordinator.Run(ctx, h.peerPool, forwardReq, peers)
			items = append(items, fanOutResult.DataItems...)
			contributing = append(contributing, fanOutResult.ContributingNodes...)
		}
	}

	return &model.DataResponse{
		RequestID:         req.QueryID,
		DataItems:         items,
		ResponderID:       h.cfg.SelfID,
		RoutePath:         routePath,
		ContributingNodes: contributing,
		Success:           true,
		ProcessingTimeMs:  time.Since(start).Milliseconds(),
	}, nil
}

// localRead applies the router's range logic for every read query
// type, returning whatever the local store holds. Local store
// failures are logged and the affected key omitted, never surfaced
// as an error.
func (h *PeerHandler) localRead(req model.QueryRequest) []model.DataItem {
	localRange := h.store.Range()
	if !router.LocalRangeApplies(localRange, req) {
		return nil
	}

	switch req.Type {
	case model.QueryExact:
		item, found, err := h.store.Get(req.Key)
		if err != nil {
			h.logger.Warn("local store read failed", zap.Int32("key", req.Key), zap.Error(err))
			return nil
		}
		if !found {
			return nil
		}
		return []model.DataItem{item}

	case model.QueryRange:
		return h.readKeys(h.store.KeysInRange(req.RangeStart, req.RangeEnd))

	case model.QueryAll:
		return h.readKeys(h.store.KeysInRange(localRange.Lo, localRange.Hi))

	default:
		return nil
	}
}

func (h *PeerHandler) readKeys(keys []int32) []model.DataItem {
	items := make([]model.DataItem, 0, len(keys))
	for _, key := range keys {
		item, found, err := h.store.Get(key)
		if err != nil {
			h.logger.Warn("local store read failed", zap.Int32("key", key), zap.Error(err))
			continue
		}
		if found {
			items = append(items, item)
		}
	}
	return items
}

// applyLocalWrite performs the write iff this node owns the key;
// non-owners treat the request as a no-op.
func (h *PeerHandler) applyLocalWrite(req model.QueryRequest) {
	localRange := h.store.Range()
	if !localRange.Contains(req.Key) {
		return
	}
	item := model.DataItem{
		Key:        req.Key,
		SourceNode: h.cfg.SelfID,
		Timestamp:  time.Now().UnixMilli(),
		DataType:   "write",
		Value:      model.StringValue(req.StringParam),
	}
	if err := h.store.Put(item); err != nil {
		h.logger.Warn("local store write failed", zap.Int32("key", req.Key), zap.Error(err))
	}
}
