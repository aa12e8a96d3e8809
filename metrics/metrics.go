// File: metrics/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Hot-path counters use plain atomic.Uint64: no locks, no allocation,
// safe for concurrent increment from every connection goroutine. The
// periodic exporter snapshots them into a control.MetricsRegistry,
// which is the right tool for the low-frequency, map-shaped side of
// this but far too coarse (RWMutex per update) to sit on the
// read/write path itself.

package metrics

import (
	"sync/atomic"
	"time"

	"github.com/momentics/shmipc/control"
)

// Counters holds the hot-path, lock-free counters the server updates on
// every frame read, response write and error. Zero value is ready to use.
type Counters struct {
	WriteCount       atomic.Uint64
	ReadCount        atomic.Uint64
	WriteBytes       atomic.Uint64
	ReadBytes        atomic.Uint64
	BackpressureHits atomic.Uint64
	WriteErrors      atomic.Uint64
	ReadErrors       atomic.Uint64

	disabled atomic.Bool
}

// Disable forces every inline recording method to early-return. Used as
// a process-wide kill switch when metrics overhead itself becomes the
// bottleneck under investigation.
func (c *Counters) Disable() { c.disabled.Store(true) }

// Enable reverses Disable.
func (c *Counters) Enable() { c.disabled.Store(false) }

func (c *Counters) RecordWrite(n int) {
	if c.disabled.Load() {
		return
	}
	c.WriteCount.Add(1)
	c.WriteBytes.Add(uint64(n))
}

func (c *Counters) RecordRead(n int) {
	if c.disabled.Load() {
		return
	}
	c.ReadCount.Add(1)
	c.ReadBytes.Add(uint64(n))
}

func (c *Counters) RecordBackpressure() {
	if c.disabled.Load() {
		return
	}
	c.BackpressureHits.Add(1)
}

func (c *Counters) RecordWriteError() {
	if c.disabled.Load() {
		return
	}
	c.WriteErrors.Add(1)
}

func (c *Counters) RecordReadError() {
	if c.disabled.Load() {
		return
	}
	c.ReadErrors.Add(1)
}

// snapshot captures all counters as a plain map, safe to hand off to a
// control.MetricsRegistry or to print.
func (c *Counters) snapshot() map[string]any {
	return map[string]any{
		"write_count":        c.WriteCount.Load(),
		"read_count":         c.ReadCount.Load(),
		"write_bytes":        c.WriteBytes.Load(),
		"read_bytes":         c.ReadBytes.Load(),
		"backpressure_count": c.BackpressureHits.Load(),
		"write_errors":       c.WriteErrors.Load(),
		"read_errors":        c.ReadErrors.Load(),
	}
}

// Exporter periodically copies Counters and a latency Histogram into a
// control.MetricsRegistry, where GetConfig/Stats-style consumers
// (CLI probes, the control adapter) can read them without touching the
// hot path.
type Exporter struct {
	counters *Counters
	hist     *Histogram
	registry *control.MetricsRegistry
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewExporter builds an Exporter. interval <= 0 defaults to one second.
func NewExporter(counters *Counters, hist *Histogram, registry *control.MetricsRegistry, interval time.Duration) *Exporter {
	if interval <= 0 {
		interval = time.Second
	}
	return &Exporter{
		counters: counters,
		hist:     hist,
		registry: registry,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run exports snapshots on the configured interval until Stop is
// called. Intended to run on its own goroutine.
func (e *Exporter) Run() {
	defer close(e.done)
	t := time.NewTicker(e.interval)
	defer t.Stop()
	for {
		select {
		case <-e.stop:
			e.export()
			return
		case <-t.C:
			e.export()
		}
	}
}

func (e *Exporter) export() {
	for k, v := range e.counters.snapshot() {
		e.registry.Set(k, v)
	}
	p50, p99, p999 := e.hist.Quantiles()
	e.registry.Set("latency_p50_ns", p50)
	e.registry.Set("latency_p99_ns", p99)
	e.registry.Set("latency_p999_ns", p999)
	e.registry.Set("latency_samples", e.hist.Count())
}

// Stop halts the background export goroutine and blocks until its
// final export completes.
func (e *Exporter) Stop() {
	close(e.stop)
	<-e.done
}
