//go:build windows
// +build windows

// File: waiter/waiter_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Windows kernel blocking via WaitOnAddress/WakeByAddressSingle/
// WakeByAddressAll. These are not exposed by golang.org/x/sys/windows, so
// they are resolved lazily from kernel32.dll, mirroring the
// VirtualAllocExNuma LazyDLL pattern used for NUMA-aware huge-page
// allocation elsewhere in this module.

package waiter

import (
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modkernel32             = windows.NewLazySystemDLL("kernel32.dll")
	procWaitOnAddress       = modkernel32.NewProc("WaitOnAddress")
	procWakeByAddressSingle = modkernel32.NewProc("WakeByAddressSingle")
	procWakeByAddressAll    = modkernel32.NewProc("WakeByAddressAll")
)

const infiniteMs = 0xFFFFFFFF

func (w *Waiter) waitKernel(expected uint32, timeout time.Duration) error {
	ms := uint32(infiniteMs)
	if timeout > 0 {
		ms = uint32(timeout.Milliseconds())
	}
	expect := expected
	ret, _, _ := procWaitOnAddress.Call(
		uintptr(unsafe.Pointer(w.addr)),
		uintptr(unsafe.Pointer(&expect)),
		uintptr(unsafe.Sizeof(expect)),
		uintptr(ms),
	)
	if ret == 0 {
		// GetLastError ERROR_TIMEOUT is the only expected failure mode.
		return ErrTimeout
	}
	return nil
}

func (w *Waiter) wakeKernel(count uint32) {
	if count == 1 {
		procWakeByAddressSingle.Call(uintptr(unsafe.Pointer(w.addr)))
		return
	}
	procWakeByAddressAll.Call(uintptr(unsafe.Pointer(w.addr)))
}
