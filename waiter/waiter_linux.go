//go:build linux
// +build linux

// File: waiter/waiter_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux kernel blocking via the futex(2) syscall, the same primitive used
// throughout the pack for low-latency thread parking. FUTEX_WAIT_PRIVATE
// only completes if the kernel's own read of *addr still matches val, so a
// producer that increments the sequence between our last user-space load
// and the syscall never causes a lost wake: the syscall returns EAGAIN
// immediately instead of blocking.

package waiter

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

func (w *Waiter) waitKernel(expected uint32, timeout time.Duration) error {
	var ts *unix.Timespec
	if timeout > 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(w.addr)),
		uintptr(linuxFutexWaitPrivate),
		uintptr(expected),
		uintptr(unsafe.Pointer(ts)),
		0, 0,
	)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	case unix.ETIMEDOUT:
		return ErrTimeout
	default:
		return nil // benign: caller re-checks the ring regardless
	}
}

func (w *Waiter) wakeKernel(count uint32) {
	unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(w.addr)),
		uintptr(linuxFutexWakePrivate),
		uintptr(count),
		0, 0, 0,
	)
}

const (
	linuxFutexWaitPrivate = 0 | 128 // FUTEX_WAIT | FUTEX_PRIVATE_FLAG
	linuxFutexWakePrivate = 1 | 128 // FUTEX_WAKE | FUTEX_PRIVATE_FLAG
)
