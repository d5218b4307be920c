// Package loadbalance selects one session when several instances of the same
// host application are registered (two Maya sessions on one workstation, a
// render-farm pool, ...).
//
// Two strategies are implemented:
//   - RoundRobin:      spread independent tools evenly across sessions
//   - ConsistentHash:  tool-id affinity, so a reconnecting tool reaches the
//     same session it talked to before
package loadbalance

import (
	"fmt"
	"sync/atomic"

	"dcclink/registry"
)

// Balancer picks one instance from the available list. Pick is called before
// each connect and must be goroutine-safe.
type Balancer interface {
	Pick(instances []registry.Instance) (*registry.Instance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// RoundRobin distributes connects evenly across all instances in order.
// Uses an atomic counter for lock-free, goroutine-safe operation.
type RoundRobin struct {
	counter int64
}

// Pick selects the next instance in round-robin order.
func (b *RoundRobin) Pick(instances []registry.Instance) (*registry.Instance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("no instances available")
	}
	index := atomic.AddInt64(&b.counter, 1) % int64(len(instances))
	return &instances[index], nil
}

func (b *RoundRobin) Name() string {
	return "RoundRobin"
}
