// File: stream/stream.go
// Package stream combines a tx/rx pair of rings, each with its own waiter
// bound to the ring's write sequence, into the durable per-connection
// transport object handed to both sides after a handshake completes.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package stream

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/shmipc/ring"
	"github.com/momentics/shmipc/shm"
	"github.com/momentics/shmipc/waiter"
)

// ErrClosed is returned by Write/Read after Close has been called.
var ErrClosed = errors.New("stream: closed")

// Endpoint identifies which side of a stream this process's view is:
// the server's tx is the client's rx and vice versa.
type Endpoint int

const (
	Server Endpoint = iota
	Client
)

// Stream owns the two shared-memory rings and their waiters that make up
// one connection. A Stream's Write ring is the other side's Read ring.
type Stream struct {
	write    *ring.Ring
	read     *ring.Ring
	writeW   *waiter.Waiter
	readW    *waiter.Waiter
	writeObj *shm.Object
	readObj  *shm.Object

	slotID   uint32
	closed   atomic.Bool
	closeOnce sync.Once
	done     chan struct{}
}

// Rings bundles the raw material a Stream is built from: two mapped shm
// objects already sized and zeroed, opened as rings by whichever side is
// responsible for initializing headers (the server during handshake).
type Rings struct {
	TX     *shm.Object
	RX     *shm.Object
	TXRing *ring.Ring
	RXRing *ring.Ring
}

// New builds a Stream from already-mapped, already-initialized rings,
// orienting write/read according to which endpoint this process is: the
// server writes to TX and reads from RX, the client's view is reversed.
func New(slotID uint32, r Rings, end Endpoint) *Stream {
	s := &Stream{slotID: slotID, done: make(chan struct{})}
	if end == Server {
		s.write, s.read = r.TXRing, r.RXRing
		s.writeObj, s.readObj = r.TX, r.RX
	} else {
		s.write, s.read = r.RXRing, r.TXRing
		s.writeObj, s.readObj = r.RX, r.TX
	}
	s.writeW = waiter.New(s.write.WriteSeqLow32Addr())
	s.readW = waiter.New(s.read.WriteSeqLow32Addr())
	return s
}

// SlotID returns the listener-assigned connection identifier this stream
// belongs to, used in shared-memory naming and server-side bookkeeping.
func (s *Stream) SlotID() uint32 { return s.slotID }

// Write publishes frame on this stream's outbound ring and wakes the peer
// if it may be sleeping on the ring's write sequence.
func (s *Stream) Write(frame []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.write.TryWrite(frame); err != nil {
		return err
	}
	s.writeW.WakeOne()
	return nil
}

// WriteBatch publishes multiple frames atomically (all-or-nothing) and
// wakes the peer once.
func (s *Stream) WriteBatch(frames [][]byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.write.TryWriteBatch(frames); err != nil {
		return err
	}
	s.writeW.WakeOne()
	return nil
}

// Read copies up to len(dst) available bytes from the inbound ring,
// blocking on the peer's write sequence if the ring is currently empty.
// timeout <= 0 blocks indefinitely.
func (s *Stream) Read(dst []byte, timeout time.Duration) (int, error) {
	deadline, hasDeadline := deadlineFor(timeout)
	for {
		if s.closed.Load() {
			return 0, ErrClosed
		}
		// Capture the sequence before the read attempt: if a write races in
		// between, either TryRead below observes it directly, or the seq
		// bump happens after this snapshot and Wait's own fast-path check
		// catches the mismatch and returns immediately. Capturing after the
		// failed TryRead instead would risk observing a seq already bumped
		// by a write TryRead missed, and then waiting on a value that will
		// never change again — a lost wakeup.
		seq := *s.read.WriteSeqLow32Addr()

		n, err := s.read.TryRead(dst)
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, ring.ErrEmpty) {
			return 0, err
		}

		// A nil Wait may be a spurious wake: loop and re-check the ring.
		left, expired := remaining(deadline, hasDeadline)
		if expired {
			return 0, waiter.ErrTimeout
		}
		if werr := s.readW.Wait(seq, left); werr != nil {
			return 0, werr
		}
	}
}

// Close releases the underlying mapped memory. The caller (typically the
// server's slot table) is responsible for deciding whether this process
// is the last holder and should also unlink the shared-memory objects.
func (s *Stream) Close() error {
	var err1, err2 error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.readW.WakeAll()
		s.writeW.WakeAll()
		err1 = s.writeObj.Close()
		err2 = s.readObj.Close()
		close(s.done)
	})
	if err1 != nil {
		return err1
	}
	return err2
}

// Done returns a channel closed once Close has run, so a watcher
// goroutine (e.g. the handshake listener's cleanup, or a liveness-pipe
// reader) can react to stream teardown.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}
