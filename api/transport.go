// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines transport socket abstraction (NetConn) for compatibility
// with custom event loops, memory pools, and zero-copy pipelines.

package api

// TransportFeatures describes the optional capabilities a Transport
// implementation supports, so callers can pick batching/zero-copy paths
// without type assertions.
type TransportFeatures struct {
	ZeroCopy bool
	Batch    bool
}

// Transport abstracts a bidirectional, message-oriented channel: a framed
// batch of byte slices in, a framed batch of byte slices out. No type in
// this module implements it outside tests: stream.Stream exposes
// Write/Read and the frame helpers instead of Send/Recv/Features.
type Transport interface {
	// Send writes one or more framed messages; partial success is not
	// reported, callers retry the whole batch on error.
	Send(frames [][]byte) error

	// Recv returns the next available batch of framed messages.
	Recv() ([][]byte, error)

	// Close releases the underlying resources.
	Close() error

	// Features reports the capabilities of this Transport instance.
	Features() TransportFeatures
}

// NetConn abstracts a full-duplex network connection object
// that may or may not be backed by Go's net.Conn
type NetConn interface {
	// Read reads into a preallocated buffer
	Read(p []byte) (n int, err error)

	// Write writes buffer contents into the connection
	Write(p []byte) (n int, err error)

	// Close shuts down the connection and notifies upstream layers
	Close() error

	// RawFD returns the underlying OS-level file descriptor
	RawFD() uintptr
}
