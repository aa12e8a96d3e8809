//go:build windows
// +build windows

// File: shm/shm_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Windows has no shm_open equivalent; a named file mapping backed by the
// system paging file is the closest analogue and is what CreateFileMapping
// with INVALID_HANDLE_VALUE gives us.

package shm

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

func unsafeSlice(addr uintptr, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}

const invalidHandleValue = ^windows.Handle(0)

// Create opens or creates a named file mapping of the given size and maps
// it into this process's address space.
func Create(name string, size int, init bool) (*Object, error) {
	mappingName, err := windows.UTF16PtrFromString(`Local\` + name)
	if err != nil {
		return nil, fmt.Errorf("shm: invalid name %q: %w", name, err)
	}

	var handle windows.Handle
	if init {
		handle, err = windows.CreateFileMapping(
			invalidHandleValue,
			nil,
			windows.PAGE_READWRITE,
			0,
			uint32(size),
			mappingName,
		)
	} else {
		handle, err = windows.OpenFileMapping(windows.FILE_MAP_ALL_ACCESS, false, mappingName)
	}
	if err != nil {
		return nil, fmt.Errorf("shm: create/open mapping %s: %w", name, err)
	}

	addr, err := windows.MapViewOfFile(handle, windows.FILE_MAP_ALL_ACCESS, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(handle)
		return nil, fmt.Errorf("shm: map view %s: %w", name, err)
	}

	region := unsafeSlice(addr, size)
	preTouch(region)

	return &Object{
		Name:   name,
		Region: region,
		closer: func() error {
			err1 := windows.UnmapViewOfFile(addr)
			err2 := windows.CloseHandle(handle)
			if err1 != nil {
				return err1
			}
			return err2
		},
	}, nil
}

func preTouch(region []byte) {
	const pageSize = 4096
	for i := 0; i < len(region); i += pageSize {
		region[i] = 0
	}
}

// Unlink is a no-op on Windows: a named mapping disappears with its last
// handle, there is nothing to unlink from a namespace.
func Unlink(name string) error {
	return nil
}
