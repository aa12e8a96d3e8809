// File: stream/frame.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Message-framing convenience built on top of the raw byte-stream
// Read/Write: the ring itself only guarantees atomic message
// boundaries on the write side, so a reader must still reassemble a
// codec.Header and its payload out of however many Read calls it
// takes.

package stream

import (
	"errors"
	"time"

	"github.com/momentics/shmipc/api"
	"github.com/momentics/shmipc/codec"
	"github.com/momentics/shmipc/ring"
	"github.com/momentics/shmipc/waiter"
)

// ErrBackpressure is returned by WriteFrame when the ring stays full
// for the entire timeout window.
var ErrBackpressure = errors.New("stream: write backpressure timeout")

// ReadExact blocks until buf is completely filled or timeout elapses
// (0 means block indefinitely). Exposed for compatibility call sites
// that want raw byte-stream semantics instead of framed messages.
func (s *Stream) ReadExact(buf []byte, timeout time.Duration) error {
	deadline, hasDeadline := deadlineFor(timeout)
	for total := 0; total < len(buf); {
		left, expired := remaining(deadline, hasDeadline)
		if expired {
			return waiter.ErrTimeout
		}
		n, err := s.Read(buf[total:], left)
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}

// WriteAll retries Write until frame has been fully accepted by the
// ring or timeout elapses, backing off between ErrFull attempts.
func (s *Stream) WriteAll(frame []byte, timeout time.Duration) error {
	deadline, hasDeadline := deadlineFor(timeout)
	backoff := time.Millisecond
	for {
		err := s.Write(frame)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ring.ErrFull) {
			return err
		}
		if _, expired := remaining(deadline, hasDeadline); expired {
			return ErrBackpressure
		}
		time.Sleep(backoff)
		if backoff < 50*time.Millisecond {
			backoff *= 2
		}
	}
}

// ReadFrame reads one complete codec frame (header + payload),
// validating magic, version, and checksum.
func (s *Stream) ReadFrame(timeout time.Duration) (codec.Header, []byte, error) {
	deadline, hasDeadline := deadlineFor(timeout)

	left, expired := remaining(deadline, hasDeadline)
	if expired {
		return codec.Header{}, nil, waiter.ErrTimeout
	}
	var hdrBuf [codec.HeaderSize]byte
	if err := s.ReadExact(hdrBuf[:], left); err != nil {
		return codec.Header{}, nil, err
	}
	h, err := codec.DecodeHeader(hdrBuf[:])
	if err != nil {
		return codec.Header{}, nil, err
	}
	left, expired = remaining(deadline, hasDeadline)
	if expired {
		return codec.Header{}, nil, waiter.ErrTimeout
	}
	payload := make([]byte, h.Length)
	if err := s.ReadExact(payload, left); err != nil {
		return codec.Header{}, nil, err
	}
	if err := codec.VerifyChecksum(h, payload); err != nil {
		return codec.Header{}, nil, err
	}
	return h, payload, nil
}

// ReadFrameBorrowed behaves like ReadFrameInto but, when the frame's
// payload does not straddle the ring's buffer boundary, returns a slice
// that aliases the ring's backing memory directly instead of copying it
// out (spec: "expose the payload either as borrowed bytes within the
// ring, or as an owned copy, at the caller's option"). The returned
// release func must be called exactly once, after the caller is done
// with payload, to advance read_pos and let the producer reclaim the
// space; until then the ring cannot make progress past this frame, so
// a connection in borrowed mode processes one frame at a time. A
// wrapping payload falls back to an owned copy transparently.
func (s *Stream) ReadFrameBorrowed(timeout time.Duration) (h codec.Header, payload []byte, release func(), err error) {
	if s.closed.Load() {
		return codec.Header{}, nil, nil, ErrClosed
	}
	deadline, hasDeadline := deadlineFor(timeout)

	var hdrBuf [codec.HeaderSize]byte
	for {
		seq := *s.read.WriteSeqLow32Addr()
		perr := s.read.PeekCopy(hdrBuf[:], 0)
		if perr == nil {
			break
		}
		if !errors.Is(perr, ring.ErrEmpty) {
			return codec.Header{}, nil, nil, perr
		}
		left, expired := remaining(deadline, hasDeadline)
		if expired {
			return codec.Header{}, nil, nil, waiter.ErrTimeout
		}
		if werr := s.readW.Wait(seq, left); werr != nil {
			return codec.Header{}, nil, nil, werr
		}
	}

	h, err = codec.DecodeHeader(hdrBuf[:])
	if err != nil {
		return codec.Header{}, nil, nil, err
	}

	advance := func() { s.read.Advance(uint64(codec.HeaderSize) + uint64(h.Length)) }

	if b, ok := s.read.BorrowContiguous(int(h.Length), uint64(codec.HeaderSize)); ok {
		if verr := codec.VerifyChecksum(h, b); verr != nil {
			advance()
			return codec.Header{}, nil, nil, verr
		}
		return h, b, advance, nil
	}

	owned := make([]byte, h.Length)
	if perr := s.read.PeekCopy(owned, uint64(codec.HeaderSize)); perr != nil {
		return codec.Header{}, nil, nil, perr
	}
	if verr := codec.VerifyChecksum(h, owned); verr != nil {
		advance()
		return codec.Header{}, nil, nil, verr
	}
	return h, owned, advance, nil
}

// BufferPoolProvider resolves a size-classed api.BufferPool on demand,
// once a frame's payload length is known. github.com/momentics/shmipc/pool's
// BufferPoolManager satisfies this directly.
type BufferPoolProvider interface {
	GetPool(size int, numaPreferred int) api.BufferPool
}

// ReadFrameInto behaves like ReadFrame but draws the payload out of a
// pool resolved through provider instead of the garbage collector. The
// returned Buffer is only valid until the caller releases it with
// Buffer.Release; a handler that needs the bytes past its own return
// must copy them first.
func (s *Stream) ReadFrameInto(provider BufferPoolProvider, numaPreferred int, timeout time.Duration) (codec.Header, api.Buffer, error) {
	deadline, hasDeadline := deadlineFor(timeout)

	left, expired := remaining(deadline, hasDeadline)
	if expired {
		return codec.Header{}, api.Buffer{}, waiter.ErrTimeout
	}
	var hdrBuf [codec.HeaderSize]byte
	if err := s.ReadExact(hdrBuf[:], left); err != nil {
		return codec.Header{}, api.Buffer{}, err
	}
	h, err := codec.DecodeHeader(hdrBuf[:])
	if err != nil {
		return codec.Header{}, api.Buffer{}, err
	}
	left, expired = remaining(deadline, hasDeadline)
	if expired {
		return codec.Header{}, api.Buffer{}, waiter.ErrTimeout
	}
	pool := provider.GetPool(int(h.Length), numaPreferred)
	buf := pool.Get(int(h.Length), numaPreferred)
	payload := buf.Data[:h.Length]
	if err := s.ReadExact(payload, left); err != nil {
		pool.Put(buf)
		return codec.Header{}, api.Buffer{}, err
	}
	if err := codec.VerifyChecksum(h, payload); err != nil {
		pool.Put(buf)
		return codec.Header{}, api.Buffer{}, err
	}
	return h, buf, nil
}

// WriteFrame encodes and writes one complete frame, retrying under
// backpressure until timeout.
func (s *Stream) WriteFrame(msgType uint16, correlationID uint64, payload []byte, timeout time.Duration) error {
	return s.WriteAll(codec.Encode(msgType, correlationID, payload), timeout)
}

// OutgoingFrame is one message queued for WriteFrameBatch.
type OutgoingFrame struct {
	MsgType       uint16
	CorrelationID uint64
	Payload       []byte
}

// WriteFrameBatch encodes every frame and publishes them as a single
// atomic ring reservation (WriteBatch), retrying the whole batch under
// backpressure until timeout. Either every frame lands or none do.
func (s *Stream) WriteFrameBatch(frames []OutgoingFrame, timeout time.Duration) error {
	encoded := make([][]byte, len(frames))
	for i, f := range frames {
		encoded[i] = codec.Encode(f.MsgType, f.CorrelationID, f.Payload)
	}
	deadline, hasDeadline := deadlineFor(timeout)
	backoff := time.Millisecond
	for {
		err := s.WriteBatch(encoded)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ring.ErrFull) {
			return err
		}
		if _, expired := remaining(deadline, hasDeadline); expired {
			return ErrBackpressure
		}
		time.Sleep(backoff)
		if backoff < 50*time.Millisecond {
			backoff *= 2
		}
	}
}

func deadlineFor(timeout time.Duration) (time.Time, bool) {
	if timeout <= 0 {
		return time.Time{}, false
	}
	return time.Now().Add(timeout), true
}

// remaining reports the duration left before deadline (only meaningful
// when has is true) and whether it has already expired.
func remaining(deadline time.Time, has bool) (left time.Duration, expired bool) {
	if !has {
		return 0, false
	}
	left = time.Until(deadline)
	return left, left <= 0
}
