// File: metrics/histogram.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed-size reservoir sampler for operation latency. No third-party
// histogram library appears anywhere in the retrieved corpus, so this
// stays a small hand-rolled reservoir rather than reaching for an
// unsanctioned dependency: Quantiles() sorts the live reservoir on
// read, which is fine at the default reservoir size and the read
// frequency (once per export interval, not per operation).

package metrics

import (
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
)

const defaultReservoirSize = 1024

// Histogram samples 1-in-N observations into a fixed-size reservoir
// using Vitter's algorithm R, then reports quantiles over whatever is
// currently held. Safe for concurrent Observe from many goroutines.
type Histogram struct {
	mu        sync.Mutex
	reservoir []int64
	count     atomic.Uint64 // total observations offered, including unsampled ones
	every     uint64
}

// NewHistogram builds a Histogram that samples one in every sampleEvery
// observations (sampleEvery <= 0 defaults to 1000) into a reservoir of
// reservoirSize slots (<= 0 defaults to 1024).
func NewHistogram(sampleEvery, reservoirSize int) *Histogram {
	if sampleEvery <= 0 {
		sampleEvery = 1000
	}
	if reservoirSize <= 0 {
		reservoirSize = defaultReservoirSize
	}
	return &Histogram{
		reservoir: make([]int64, 0, reservoirSize),
		every:     uint64(sampleEvery),
	}
}

// Observe records a latency sample in nanoseconds. Only every Nth call
// (per the configured sampling rate) actually touches the reservoir;
// Count still reflects every call.
func (h *Histogram) Observe(latencyNanos int64) {
	n := h.count.Add(1)
	if n%h.every != 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.reservoir) < cap(h.reservoir) {
		h.reservoir = append(h.reservoir, latencyNanos)
		return
	}
	// Reservoir full: algorithm R keeps the k-th sample with probability
	// cap/k by replacing a uniformly random existing slot.
	k := int64(n / h.every)
	if j := rand.Int63n(k); j < int64(cap(h.reservoir)) {
		h.reservoir[j] = latencyNanos
	}
}

// Count returns the total number of Observe calls, sampled or not.
func (h *Histogram) Count() uint64 {
	return h.count.Load()
}

// Quantiles returns the p50, p99, and p999 latency in nanoseconds over
// the current reservoir contents. Returns zeros if nothing has been
// sampled yet.
func (h *Histogram) Quantiles() (p50, p99, p999 int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.reservoir)
	if n == 0 {
		return 0, 0, 0
	}
	sorted := make([]int64, n)
	copy(sorted, h.reservoir)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	at := func(q float64) int64 {
		idx := int(q * float64(n-1))
		return sorted[idx]
	}
	return at(0.50), at(0.99), at(0.999)
}
