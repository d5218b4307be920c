package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"

	"dcclink/registry"
)

// ConsistentHash maps keys to instances on a hash ring. The same key always
// lands on the same instance until the ring changes, so a tool keyed by its
// tool id keeps talking to the session that holds its state.
//
// Virtual nodes: each real instance is mapped to N points on the ring.
// Without them a handful of instances can cluster together and skew the
// distribution; 100 virtual nodes per instance gives statistical uniformity.
type ConsistentHash struct {
	replicas int
	ring     []uint32 // sorted hash values on the ring
	nodes    map[uint32]*registry.Instance
	added    map[string]bool
}

// NewConsistentHash creates a ring with 100 virtual nodes per instance.
func NewConsistentHash() *ConsistentHash {
	return &ConsistentHash{
		replicas: 100,
		nodes:    make(map[uint32]*registry.Instance),
		added:    make(map[string]bool),
	}
}

// Add places an instance onto the ring. Each virtual node hashes "{addr}#{i}"
// to spread the instance across the ring. Re-adding an address is a no-op.
func (b *ConsistentHash) Add(instance *registry.Instance) {
	if b.added[instance.Addr] {
		return
	}
	b.added[instance.Addr] = true
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
	// Keep the ring sorted for binary search in PickKey.
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// PickKey returns the instance responsible for key: hash the key, then find
// the first ring node at or after that hash, wrapping to the first node past
// the end.
//
// Consistent hashing is key-based, so this does not implement the Balancer
// interface directly; callers with a stable key (the tool id) use PickKey.
func (b *ConsistentHash) PickKey(key string) (*registry.Instance, error) {
	if len(b.ring) == 0 {
		return nil, fmt.Errorf("no instances available")
	}
	hash := crc32.ChecksumIEEE([]byte(key))

	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

// Pick satisfies Balancer for callers without a stable key. The instances
// are added to the ring and the empty key decides: arbitrary, but the same
// instance every time for the same ring.
func (b *ConsistentHash) Pick(instances []registry.Instance) (*registry.Instance, error) {
	for i := range instances {
		b.Add(&instances[i])
	}
	return b.PickKey("")
}

func (b *ConsistentHash) Name() string {
	return "ConsistentHash"
}
