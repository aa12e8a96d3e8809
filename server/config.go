// File: server/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import "time"

// Config holds everything a Service needs to bind, accept, and serve
// connections.
type Config struct {
	// SocketPath is the Unix-domain control socket clients dial to
	// perform the handshake.
	SocketPath string
	// MaxSlots bounds concurrent connections (spec.md §5: MAX_CONNECTIONS).
	MaxSlots uint32
	// TXCapacity/RXCapacity size each direction's ring, in bytes.
	TXCapacity uint64
	RXCapacity uint64
	// NumWorkers sizes the dispatch executor. <= 0 defaults to
	// runtime.NumCPU()/4, floored at 1 (spec.md §5).
	NumWorkers int
	// NUMANode preferentially pins dispatch workers; -1 disables pinning.
	NUMANode int
	// IdleTimeout closes a connection that has read nothing for this
	// long. <= 0 disables idle eviction.
	IdleTimeout time.Duration
	// WriteTimeout bounds how long a handler's response write retries
	// under ring backpressure; on expiry that response is dropped and
	// counted as a write error, and the connection stays open.
	WriteTimeout time.Duration
	// ShutdownTimeout bounds how long Shutdown waits for in-flight
	// handlers to finish before returning anyway.
	ShutdownTimeout time.Duration
	// MetricsInterval controls how often counters are exported into the
	// control registry. <= 0 defaults to one second.
	MetricsInterval time.Duration
	// HistogramSampleEvery and HistogramReservoir configure the latency
	// sampler; both <= 0 take their package defaults.
	HistogramSampleEvery int
	HistogramReservoir   int
	// ZeroCopyReads, when true, hands handlers a payload slice aliasing
	// the RX ring directly instead of a pool-backed owned copy
	// (stream.ReadFrameBorrowed). Read position only advances once the
	// handler's buffer is released, so a connection in this mode
	// processes one frame at a time; leave false for the default
	// owned-copy path, which lets the next frame be read while the
	// previous one is still dispatching.
	ZeroCopyReads bool
}

// DefaultConfig returns the baseline configuration from spec.md §5.
func DefaultConfig() *Config {
	return &Config{
		SocketPath:      "/tmp/shmipc.sock",
		MaxSlots:        1024,
		TXCapacity:      2 << 20,
		RXCapacity:      2 << 20,
		NumWorkers:      4,
		NUMANode:        -1,
		IdleTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MetricsInterval: time.Second,
	}
}
