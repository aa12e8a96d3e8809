// File: ring/ring.go
// Package ring implements the single-producer/single-consumer, byte-addressed
// circular queue that backs every Stream direction. The header and the data
// region both live inside a caller-supplied byte slice so the exact same
// layout works for an in-process heap buffer (tests, loopback use) and for a
// POSIX shared-memory mapping or Windows file mapping shared across
// processes.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ring

import (
	"encoding/binary"
	"errors"
	"sync/atomic"
	"unsafe"
)

// Magic and Version guard against mapping a stale or foreign region.
const (
	Magic   uint32 = 0x52494e47 // "RING" little-endian
	Version uint16 = 1
)

// HeaderSize is the fixed, cache-line-aligned header every ring reserves at
// the front of its backing region. Three 64-byte lines: immutable metadata,
// write_pos+write_seq (producer-owned), read_pos (consumer-owned). Keeping
// write_pos/write_seq and read_pos on separate lines means the producer and
// consumer never dirty a cache line the other side reads.
const HeaderSize = 3 * 64

const (
	metaOff     = 0
	writePosOff = 64
	writeSeqOff = 72
	readPosOff  = 128
)

var (
	// ErrFull is returned by TryWrite/TryWriteBatch when there is not
	// enough free space for the whole payload. Never a partial write.
	ErrFull = errors.New("ring: full")
	// ErrEmpty is returned by TryRead/TryReadBatch when nothing is
	// available to consume.
	ErrEmpty = errors.New("ring: empty")
)

// Ring is a fixed-capacity (power-of-two) circular byte queue with one
// producer and one consumer. All positions are byte offsets that are never
// wrapped in place — modulo is applied only at access time via a bitmask.
type Ring struct {
	region   []byte
	data     []byte
	capacity uint64
	mask     uint64
}

// New constructs a Ring over region, which must be at least
// HeaderSize+capacity bytes; capacity must be a power of two. When init is
// true the header is (re)written fresh (the creating side of a handshake);
// otherwise the existing header is validated to match capacity (the
// attaching side).
func New(region []byte, capacity uint64, init bool) (*Ring, error) {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return nil, errors.New("ring: capacity must be a power of two >= 2")
	}
	if uint64(len(region)) < uint64(HeaderSize)+capacity {
		return nil, errors.New("ring: region too small for requested capacity")
	}
	r := &Ring{
		region:   region,
		data:     region[HeaderSize : uint64(HeaderSize)+capacity],
		capacity: capacity,
		mask:     capacity - 1,
	}
	if init {
		binary.LittleEndian.PutUint32(region[metaOff:metaOff+4], Magic)
		binary.LittleEndian.PutUint16(region[metaOff+4:metaOff+6], Version)
		binary.LittleEndian.PutUint64(region[metaOff+8:metaOff+16], capacity)
		atomic.StoreUint64(r.writePosPtr(), 0)
		atomic.StoreUint64(r.writeSeqPtr(), 0)
		atomic.StoreUint64(r.readPosPtr(), 0)
		return r, nil
	}
	if binary.LittleEndian.Uint32(region[metaOff:metaOff+4]) != Magic {
		return nil, errors.New("ring: bad magic")
	}
	if binary.LittleEndian.Uint16(region[metaOff+4:metaOff+6]) != Version {
		return nil, errors.New("ring: unsupported version")
	}
	if binary.LittleEndian.Uint64(region[metaOff+8:metaOff+16]) != capacity {
		return nil, errors.New("ring: capacity mismatch")
	}
	return r, nil
}

// NewLocal allocates a heap-backed ring, for in-process or test use where no
// cross-process sharing is required.
func NewLocal(capacity uint64) (*Ring, error) {
	region := make([]byte, uint64(HeaderSize)+capacity)
	return New(region, capacity, true)
}

func bytePtr64(region []byte, off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&region[off]))
}

func (r *Ring) writePosPtr() *uint64 { return bytePtr64(r.region, writePosOff) }
func (r *Ring) writeSeqPtr() *uint64 { return bytePtr64(r.region, writeSeqOff) }
func (r *Ring) readPosPtr() *uint64  { return bytePtr64(r.region, readPosOff) }

// WriteSeqAddr exposes the producer's publish-sequence counter as a raw
// pointer, the address a Waiter blocks on as the producer→consumer
// doorbell. It only ever increases.
func (r *Ring) WriteSeqAddr() *uint64 { return r.writeSeqPtr() }

// WriteSeqLow32Addr exposes the low 32 bits of the publish sequence. Futex
// and WaitOnAddress operate on 32-bit words; the low half of a
// little-endian, monotonically increasing uint64 is sufficient as the
// kernel-visible doorbell value (see DESIGN.md).
func (r *Ring) WriteSeqLow32Addr() *uint32 {
	return (*uint32)(unsafe.Pointer(&r.region[writeSeqOff]))
}

// Capacity returns the fixed ring capacity in bytes.
func (r *Ring) Capacity() uint64 { return r.capacity }

// Available returns the number of unread bytes currently queued.
func (r *Ring) Available() uint64 {
	writePos := atomic.LoadUint64(r.writePosPtr())
	readPos := atomic.LoadUint64(r.readPosPtr())
	return writePos - readPos
}

// Free returns the number of bytes that may still be written without
// blocking.
func (r *Ring) Free() uint64 {
	return r.capacity - r.Available()
}

// TryWrite copies p into the ring as a single, indivisible message. Returns
// ErrFull if free space is less than len(p); writes are never partial. An
// empty p is a no-op.
func (r *Ring) TryWrite(p []byte) error {
	n := uint64(len(p))
	if n == 0 {
		return nil
	}
	if n > r.capacity {
		panic("ring: write exceeds capacity")
	}
	writePos := atomic.LoadUint64(r.writePosPtr())
	readPos := atomic.LoadUint64(r.readPosPtr()) // acquire: pairs with reader's release
	if writePos-readPos+n > r.capacity {
		return ErrFull
	}
	r.copyIn(writePos, p)
	atomic.StoreUint64(r.writePosPtr(), writePos+n) // release: payload bytes visible first
	atomic.AddUint64(r.writeSeqPtr(), 1)             // release: doorbell
	return nil
}

// TryWriteBatch writes every buffer in bufs as one atomic reservation:
// either all of them fit and are written in order, or none are and ErrFull
// is returned. Amortizes the position CAS/atomics across many messages.
func (r *Ring) TryWriteBatch(bufs [][]byte) error {
	var total uint64
	for _, b := range bufs {
		total += uint64(len(b))
	}
	if total == 0 {
		return nil
	}
	if total > r.capacity {
		panic("ring: batch exceeds capacity")
	}
	writePos := atomic.LoadUint64(r.writePosPtr())
	readPos := atomic.LoadUint64(r.readPosPtr())
	if writePos-readPos+total > r.capacity {
		return ErrFull
	}
	pos := writePos
	for _, b := range bufs {
		if len(b) == 0 {
			continue
		}
		r.copyIn(pos, b)
		pos += uint64(len(b))
	}
	atomic.StoreUint64(r.writePosPtr(), pos)
	atomic.AddUint64(r.writeSeqPtr(), 1)
	return nil
}

func (r *Ring) copyIn(writePos uint64, p []byte) {
	n := uint64(len(p))
	start := writePos & r.mask
	if start+n <= r.capacity {
		copy(r.data[start:start+n], p)
		return
	}
	head := r.capacity - start
	copy(r.data[start:], p[:head])
	copy(r.data[:n-head], p[head:])
}

// TryRead copies up to len(dst) available bytes into dst and advances
// read_pos by the number of bytes copied. Returns ErrEmpty if nothing is
// available (never a partial read signalled as an error: any n > 0 is a
// success, however small).
func (r *Ring) TryRead(dst []byte) (int, error) {
	writePos := atomic.LoadUint64(r.writePosPtr()) // acquire
	readPos := atomic.LoadUint64(r.readPosPtr())
	avail := writePos - readPos
	if avail == 0 {
		return 0, ErrEmpty
	}
	n := uint64(len(dst))
	if n > avail {
		n = avail
	}
	r.copyOut(dst[:n], readPos)
	atomic.StoreUint64(r.readPosPtr(), readPos+n) // release
	return int(n), nil
}

// TryReadBatch fills each slice in dsts in turn, stopping at the first one
// that cannot be fully satisfied from what remains queued. Returns the
// number of slices fully filled.
func (r *Ring) TryReadBatch(dsts [][]byte) (int, error) {
	filled := 0
	for i := range dsts {
		n, err := r.TryRead(dsts[i])
		if err != nil {
			if filled == 0 {
				return 0, err
			}
			return filled, nil
		}
		dsts[i] = dsts[i][:n]
		filled++
	}
	return filled, nil
}

// PeekCopy copies exactly len(dst) bytes starting offset bytes past the
// current read position, WITHOUT advancing read_pos. Used by the codec to
// reassemble a header that may straddle the buffer boundary before
// committing to consume it. Returns ErrEmpty if fewer than offset+len(dst)
// bytes are queued.
func (r *Ring) PeekCopy(dst []byte, offset uint64) error {
	n := uint64(len(dst))
	writePos := atomic.LoadUint64(r.writePosPtr())
	readPos := atomic.LoadUint64(r.readPosPtr())
	avail := writePos - readPos
	if offset+n > avail {
		return ErrEmpty
	}
	r.copyOut(dst, readPos+offset)
	return nil
}

func (r *Ring) copyOut(dst []byte, fromPos uint64) {
	n := uint64(len(dst))
	start := fromPos & r.mask
	if start+n <= r.capacity {
		copy(dst, r.data[start:start+n])
		return
	}
	head := r.capacity - start
	copy(dst[:head], r.data[start:])
	copy(dst[head:], r.data[:n-head])
}

// BorrowContiguous returns a zero-copy view of n bytes starting offset bytes
// past the current read position, provided that span does not wrap the
// buffer boundary. ok is false when the span wraps; callers fall back to
// PeekCopy/TryRead in that case. The returned slice aliases the ring's
// backing memory and is only valid until the next write past read_pos+n+offset
// wraps over it — callers must finish using it before calling Advance far
// enough to let the producer reclaim that space.
func (r *Ring) BorrowContiguous(n int, offset uint64) (b []byte, ok bool) {
	readPos := atomic.LoadUint64(r.readPosPtr())
	start := (readPos + offset) & r.mask
	if start+uint64(n) > r.capacity {
		return nil, false
	}
	return r.data[start : start+uint64(n)], true
}

// Advance releases n consumed bytes back to the producer by moving
// read_pos forward. Used after PeekCopy/BorrowContiguous-based consumption
// once the application has fully extracted what it needs from a frame.
func (r *Ring) Advance(n uint64) {
	readPos := atomic.LoadUint64(r.readPosPtr())
	atomic.StoreUint64(r.readPosPtr(), readPos+n) // release
}
