// +build windows

// Package pool
// Author: momentics <momentics@gmail.com>
//
// Windows-specific NUMA-aware, zero-copy buffer pool implementation.

package pool

import "github.com/momentics/shmipc/api"

// newBufferPool (Windows) creates a size-classed slab pool for numaNode,
// backed by VirtualAllocExNuma allocation through NUMAPool when pinned.
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
