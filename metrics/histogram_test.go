package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistogramSamplesEveryNth(t *testing.T) {
	h := NewHistogram(10, 100)
	for i := 0; i < 95; i++ {
		h.Observe(int64(i))
	}
	assert.EqualValues(t, 95, h.Count())
	p50, p99, p999 := h.Quantiles()
	assert.Greater(t, p99, int64(-1))
	assert.GreaterOrEqual(t, p999, p99)
	assert.GreaterOrEqual(t, p99, p50)
}

func TestHistogramEmptyQuantilesAreZero(t *testing.T) {
	h := NewHistogram(1000, 1024)
	p50, p99, p999 := h.Quantiles()
	assert.Zero(t, p50)
	assert.Zero(t, p99)
	assert.Zero(t, p999)
}

func TestHistogramConcurrentObserveDoesNotRace(t *testing.T) {
	h := NewHistogram(1, 256)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.Observe(int64(v))
			}
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, 2500, h.Count())
}
