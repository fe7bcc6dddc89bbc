package client

import "sync/atomic"

// atomicBool is a minimal atomic boolean, used for the gossip-updated
// liveness flag that the fan-out coordinator reads concurrently with
// the gossip layer's writes.
type atomicBool struct {
	v atomic.Bool
}

func (b *atomicBool) Set(value bool) { b.v.Store(value) }
func (b *atomicBool) Get() bool      { return b.v.Load() }
