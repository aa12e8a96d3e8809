package pool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/shmipc/pool"
)

func TestBufferPoolManagerReusesReleasedBuffers(t *testing.T) {
	mgr := pool.NewBufferPoolManager(1)
	bp := mgr.GetPool(128, -1)

	b1 := bp.Get(128, -1)
	require.Len(t, b1.Data, 128)
	b1.Release()

	b2 := bp.Get(128, -1)
	assert.GreaterOrEqual(t, cap(b2.Data), 128)
	b2.Release()

	stats := bp.Stats()
	assert.GreaterOrEqual(t, stats.TotalAlloc, int64(1))
}

func TestBufferPoolManagerSegmentsBySizeAndNode(t *testing.T) {
	mgr := pool.NewBufferPoolManager(1)

	small := mgr.GetPool(64, -1)
	large := mgr.GetPool(4096, -1)
	assert.NotSame(t, small, large)

	nodeA := mgr.GetPool(64, 0)
	nodeB := mgr.GetPool(64, 1)
	assert.NotSame(t, nodeA, nodeB)

	again := mgr.GetPool(64, -1)
	assert.Same(t, small, again)
}

func TestDefaultPoolGetPutRoundTrip(t *testing.T) {
	bp := pool.DefaultPool(256, -1)
	buf := bp.Get(256, -1)
	require.Len(t, buf.Data, 256)
	copy(buf.Data, []byte("round trip"))
	buf.Release()
}
