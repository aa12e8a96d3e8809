//go:build linux
// +build linux

// File: shm/shm_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// POSIX shared memory on Linux, grounded on the /dev/shm + mmap(MAP_SHARED)
// pattern used by the pack's own shared-memory feeder (a tmpfs-backed file
// stands in for shm_open/shm_unlink, which golang.org/x/sys/unix does not
// wrap directly on this platform).

package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const shmDir = "/dev/shm"

func shmPath(name string) string {
	return shmDir + "/" + name
}

// Create opens (creating if needed) and maps a shared-memory object of the
// given size, zeroing and pre-touching every 4 KiB page so the first real
// write from either side never faults. init controls whether the caller is
// the side responsible for sizing the object (the server, during
// handshake); a non-init Open expects the object to already exist.
func Create(name string, size int, init bool) (*Object, error) {
	path := shmPath(name)
	flags := os.O_RDWR
	if init {
		flags |= os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0600)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	defer f.Close()

	if init {
		if err := f.Truncate(int64(size)); err != nil {
			return nil, fmt.Errorf("shm: truncate %s: %w", path, err)
		}
	}

	region, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}

	preTouch(region)

	// MADV_HUGEPAGE is a hint; failure is non-fatal, the mapping still works
	// with regular pages.
	_ = unix.Madvise(region, unix.MADV_HUGEPAGE)

	return &Object{
		Name:   name,
		Region: region,
		closer: func() error {
			return unix.Munmap(region)
		},
	}, nil
}

// preTouch forces a page fault on every page of region so the kernel
// backs it with real memory before the hot path ever runs.
func preTouch(region []byte) {
	const pageSize = 4096
	for i := 0; i < len(region); i += pageSize {
		region[i] = 0
	}
}

// Unlink removes the shared-memory object from the filesystem namespace.
// Called by the last holder on orderly teardown, and best-effort at
// listener startup to clear objects a previous crash left behind.
func Unlink(name string) error {
	err := os.Remove(shmPath(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
