// File: pool/bufferpool.go
// Author: momentics <momentics@gmail.com>
//
// Cross-platform NUMA-aware BufferPool manager with transparent backend selection.
// All public API is OS/NUMA-agnostic; platform-specific allocators in separate files.

package pool

import (
	"sync"

	"github.com/momentics/shmipc/api"
)

// poolKey identifies a size-class pool segmented by NUMA node.
type poolKey struct {
	size     int
	numaNode int
}

// BufferPoolManager provides NUMA-segmented, size-classed pools.
type BufferPoolManager struct {
	mu    sync.RWMutex
	nodes int
	pools map[poolKey]api.BufferPool
}

// NewBufferPoolManager creates and initializes a new manager. nodeCount is
// stored but not read by the manager; pools themselves are
// created lazily per (size, numaNode) pair on first GetPool call.
func NewBufferPoolManager(nodeCount int) *BufferPoolManager {
	return &BufferPoolManager{
		nodes: nodeCount,
		pools: make(map[poolKey]api.BufferPool),
	}
}

// GetPool obtains or creates the BufferPool serving size-byte buffers
// preferentially allocated on numaPreferred (-1 means "system default").
func (m *BufferPoolManager) GetPool(size int, numaPreferred int) api.BufferPool {
	key := poolKey{size: size, numaNode: numaPreferred}
	m.mu.RLock()
	pool, ok := m.pools[key]
	m.mu.RUnlock()
	if ok {
		return pool
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if pool, ok := m.pools[key]; ok {
		return pool
	}
	pool = newBufferPool(size, numaPreferred)
	m.pools[key] = pool
	return pool
}

// Platform-specific implementations of newBufferPool reside in bufferpool_linux.go and bufferpool_windows.go.
