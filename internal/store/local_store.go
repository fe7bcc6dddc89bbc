package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/basecamp/federatedkv/internal/codec"
	"github.com/basecamp/federatedkv/internal/model"
	"go.uber.org/zap"
)

// dataTypesByMod5 cycles through a fixed set of synthetic data types
// by key modulo 5, so seeded data is deterministic and reproducible
// across runs.
var dataTypesByMod5 = [5]string{"user", "product", "transaction", "event", "log"}

// LocalStore is the per-node store over the named segment identified by
// shared_memory_key. It is exclusively owned by its node process.
type LocalStore struct {
	nodeID string
	seg    *segment
	name   string
	rng    model.DataRange
	logger *zap.Logger
}

// New opens (resetting) the segment for nodeID and seeds it with one
// synthetic item per key in rng.
func New(sharedMemoryKey, nodeID string, rng model.DataRange, logger *zap.Logger) *LocalStore {
	name := fmt.Sprintf("%s:%s", sharedMemoryKey, nodeID)
	s := &LocalStore{
		nodeID: nodeID,
		seg:    resetSegment(name),
		name:   name,
		rng:    rng,
		logger: logger,
	}
	s.seed()
	return s
}

func (s *LocalStore) seed() {
	now := time.Now().UnixMilli()
	seeded := 0
	for key := rng32(s.rng); key.more(); key.next() {
		k := key.cur
		item := model.DataItem{
			Key:        k,
			SourceNode: s.nodeID,
			Timestamp:  now,
			DataType:   dataTypesByMod5[mod5(k)],
			Metadata: map[string]string{
				"created_by": s.nodeID,
				"version":    "1.0",
			},
			Value: seedValue(k, s.nodeID, now),
		}
		if err := s.putLocked(item); err != nil {
			s.logger.Error("failed to seed key",
				zap.String("node_id", s.nodeID),
				zap.Int32("key", k),
				zap.Error(err))
			continue
		}
		seeded++
	}
	s.logger.Info("local store seeded",
		zap.String("node_id", s.nodeID),
		zap.String("segment", s.name),
		zap.Int32("lo", s.rng.Lo),
		zap.Int32("hi", s.rng.Hi),
		zap.Int("seeded", seeded))
}

func seedValue(key int32, nodeID string, now int64) model.Value {
	switch mod5(key) {
	case 0:
		return model.StringValue(fmt.Sprintf("String value for key %d from %s", key, nodeID))
	case 1:
		return model.DoubleValue(float64(key) * 1.5)
	case 2:
		return model.BoolValue(key%2 == 0)
	case 3:
		return model.ObjectValue(model.NestedObject{
			Name:       fmt.Sprintf("Object_%d", key),
			Tags:       []string{"tag1", "tag2"},
			Properties: map[string]string{"property1": "value1", "property2": "value2"},
			CreatedAt:  now - 3600000,
			UpdatedAt:  now,
		})
	default:
		return model.BinaryValue([]byte(fmt.Sprintf("Binary data for key %d", key)))
	}
}

func mod5(key int32) int32 {
	m := key % 5
	if m < 0 {
		m += 5
	}
	return m
}

// Put is insert-or-overwrite: last writer wins for that key.
func (s *LocalStore) Put(item model.DataItem) error {
	s.seg.mu.Lock()
	defer s.seg.mu.Unlock()
	return s.putLocked(item)
}

func (s *LocalStore) putLocked(item model.DataItem) error {
	encoded, err := codec.Encode(item)
	if err != nil {
		return fmt.Errorf("store: encode key %d: %w", item.Key, err)
	}
	s.seg.data[item.Key] = encoded
	return nil
}

// Get fails silently (returns found=false) when key is absent.
func (s *LocalStore) Get(key int32) (model.DataItem, bool, error) {
	s.seg.mu.Lock()
	raw, ok := s.seg.data[key]
	s.seg.mu.Unlock()

	if !ok {
		return model.DataItem{}, false, nil
	}
	item, err := codec.Decode(raw)
	if err != nil {
		return model.DataItem{}, false, fmt.Errorf("store: decode key %d: %w", key, err)
	}
	return item, true, nil
}

// KeysInRange returns every stored key in [lo, hi], sorted ascending.
func (s *LocalStore) KeysInRange(lo, hi int32) []int32 {
	s.seg.mu.Lock()
	defer s.seg.mu.Unlock()

	keys := make([]int32, 0, len(s.seg.data))
	for k := range s.seg.data {
		if k >= lo && k <= hi {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Range reports the data range owned by this node.
func (s *LocalStore) Range() model.DataRange {
	return s.rng
}

// Close destroys the segment, per the local store's shutdown lifecycle.
func (s *LocalStore) Close() {
	destroySegment(s.name)
}

// rng32Cursor is a minimal inclusive int32 range cursor used only by
// seed(), to keep the seeding loop's intent ("for each key in [lo,
// hi]") readable without allocating a slice of the whole range.
type rng32Cursor struct {
	cur, hi int32
}

func rng32(r model.DataRange) *rng32Cursor {
	return &rng32Cursor{cur: r.Lo, hi: r.Hi}
}

func (c *rng32Cursor) more() bool { return c.cur <= c.hi }
func (c *rng32Cursor) next()      { c.cur++ }
