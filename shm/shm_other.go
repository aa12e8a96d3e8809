//go:build !linux && !windows
// +build !linux,!windows

// File: shm/shm_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Generic POSIX fallback for platforms without /dev/shm (darwin, bsd):
// a regular file under os.TempDir mmap'd MAP_SHARED serves the same role.
// No huge-page hint is attempted here.

package shm

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

func shmPath(name string) string {
	return filepath.Join(os.TempDir(), name)
}

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

	return &Object{
		Name:   name,
		Region: region,
		closer: func() error {
			return unix.Munmap(region)
		},
	}, nil
}

func preTouch(region []byte) {
	const pageSize = 4096
	for i := 0; i < len(region); i += pageSize {
		region[i] = 0
	}
}

func Unlink(name string) error {
	err := os.Remove(shmPath(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
