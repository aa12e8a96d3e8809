// File: waiter/waiter.go
// Package waiter provides the platform-abstracted wait/wake primitive used
// both as the producer→consumer doorbell on a ring and for general
// cross-process synchronization on a shared atomic sequence.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package waiter

import (
	"errors"
	"runtime"
	"sync/atomic"
	"time"
)

// ErrTimeout is returned by Wait when the deadline elapses before the
// sequence changes. Callers should re-check the underlying ring; it may
// have data regardless (a benign race, not a bug).
var ErrTimeout = errors.New("waiter: timed out")

// DefaultSpinBudget bounds the number of busy-wait iterations attempted before
// falling back to a kernel block. Tunable per Waiter via WithSpinBudget.
const DefaultSpinBudget = 512

// Waiter blocks a consumer while *addr == expected and wakes it when a
// producer changes *addr. addr is expected to be the low 32 bits of a
// ring's write_seq counter (see ring.Ring.WriteSeqLow32Addr), so wake-ups
// are sequence-precise: the kernel primitive only actually blocks if the
// value still matches what the caller last observed, so no wake is ever
// lost.
type Waiter struct {
	addr       *uint32
	spinBudget int
}

// New creates a Waiter bound to addr, the shared sequence word both
// sides agree on (producer increments, consumer waits).
func New(addr *uint32) *Waiter {
	return &Waiter{addr: addr, spinBudget: DefaultSpinBudget}
}

// WithSpinBudget overrides the number of spin iterations attempted before
// blocking in the kernel.
func (w *Waiter) WithSpinBudget(n int) *Waiter {
	w.spinBudget = n
	return w
}

// Wait blocks while *addr == expected, returning as soon as the value
// changes, the deadline elapses (ErrTimeout), or a spurious wake occurs
// (nil, caller should re-check and call Wait again if still stale).
// timeout <= 0 means wait indefinitely.
func (w *Waiter) Wait(expected uint32, timeout time.Duration) error {
	if atomic.LoadUint32(w.addr) != expected {
		return nil
	}

	// Hot path: bounded busy spin before touching the kernel at all,
	// mirroring the adaptive-backoff spin used by the connection event
	// loop: a tight no-op burst, doubling in length, with an occasional
	// scheduler yield so a spinning waiter never starves other goroutines
	// on a loaded GOMAXPROCS.
	backoff := int64(1)
	for i := 0; i < w.spinBudget; i++ {
		if atomic.LoadUint32(w.addr) != expected {
			return nil
		}
		for j := int64(0); j < backoff; j++ {
			// no-op: burn a cycle without allocating or syscalling
		}
		if backoff < 1024 {
			backoff *= 2
		}
		if i%64 == 63 {
			runtime.Gosched()
		}
	}

	return w.waitKernel(expected, timeout)
}

// WakeOne requests the kernel wake at least one waiter blocked on this
// address. It does not change the sequence; the ring's own publish does
// that before the wake. Safe to call even if nobody is waiting.
func (w *Waiter) WakeOne() {
	w.wakeKernel(1)
}

// WakeAll requests the kernel wake every waiter blocked on this address.
func (w *Waiter) WakeAll() {
	w.wakeKernel(^uint32(0))
}
