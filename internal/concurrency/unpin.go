// File: internal/concurrency/unpin.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// UnpinCurrentThread releases the OS-thread lock taken implicitly by
// PinCurrentThread. Carries no build tag: every PinCurrentThread variant
// (Linux/Windows, cgo or not) pins by calling runtime.LockOSThread, so a
// single platform-neutral unlock serves all of them.

package concurrency

import "runtime"

// UnpinCurrentThread releases the current goroutine's OS thread lock,
// allowing the Go runtime to schedule it onto any thread again.
func UnpinCurrentThread() error {
	runtime.UnlockOSThread()
	return nil
}
