package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/shmipc/control"
)

func TestCountersRecordAndDisable(t *testing.T) {
	c := &Counters{}
	c.RecordWrite(100)
	c.RecordRead(50)
	c.RecordBackpressure()
	c.RecordWriteError()
	c.RecordReadError()

	assert.EqualValues(t, 1, c.WriteCount.Load())
	assert.EqualValues(t, 100, c.WriteBytes.Load())
	assert.EqualValues(t, 1, c.ReadCount.Load())
	assert.EqualValues(t, 50, c.ReadBytes.Load())
	assert.EqualValues(t, 1, c.BackpressureHits.Load())
	assert.EqualValues(t, 1, c.WriteErrors.Load())
	assert.EqualValues(t, 1, c.ReadErrors.Load())

	c.Disable()
	c.RecordWrite(100)
	assert.EqualValues(t, 1, c.WriteCount.Load(), "disabled counters must not update")

	c.Enable()
	c.RecordWrite(1)
	assert.EqualValues(t, 2, c.WriteCount.Load())
}

func TestExporterPublishesToRegistry(t *testing.T) {
	c := &Counters{}
	c.RecordWrite(10)
	h := NewHistogram(1, 16)
	h.Observe(500)

	reg := control.NewMetricsRegistry()
	exp := NewExporter(c, h, reg, 5*time.Millisecond)
	go exp.Run()

	require.Eventually(t, func() bool {
		snap := reg.GetSnapshot()
		v, ok := snap["write_count"].(uint64)
		return ok && v == 1
	}, time.Second, 5*time.Millisecond)

	exp.Stop()

	snap := reg.GetSnapshot()
	assert.Contains(t, snap, "latency_p50_ns")
	assert.Contains(t, snap, "latency_samples")
}
