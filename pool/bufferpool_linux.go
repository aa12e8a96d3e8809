// +build linux

// Package pool
// Author: momentics <momentics@gmail.com>
//
// Linux-specific NUMA-aware, zero-copy buffer pool implementation.

package pool

import "github.com/momentics/shmipc/api"

// newBufferPool (Linux) creates a size-classed slab pool for numaNode,
// backed by libnuma allocation through NUMAPool when the node is pinned.
func newBufferPool(size int, numaNode int) api.BufferPool {
	np := NewNUMAPool(numaNode, size, numaNode >= 0)
	return newSlabPool(size,
		func(sz, _ int) []byte {
			buf := np.Get()
			if cap(buf) < sz {
				return make([]byte, sz)
			}
			return buf[:sz]
		},
		func(buf []byte) { np.Put(buf) })
}
