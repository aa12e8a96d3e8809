//go:build windows
// +build windows

// File: handshake/fds_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Windows has no SCM_RIGHTS; the equivalent is DuplicateHandle targeted
// at the peer process (named pipes carry the client's PID in the
// handshake request, so the server can open it directly). The duplicated
// handle's numeric value is then sent as ordinary pipe data, since it is
// already valid in the target process once duplicated.

package handshake

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sys/windows"
)

// sendFDs duplicates each local handle into the peer process (identified
// by peerPID) and writes the resulting handle values as plain data.
func sendFDs(conn net.Conn, fds []int, peerPID uint32) error {
	targetProcess, err := windows.OpenProcess(windows.PROCESS_DUP_HANDLE, false, peerPID)
	if err != nil {
		return fmt.Errorf("handshake: open peer process %d: %w", peerPID, err)
	}
	defer windows.CloseHandle(targetProcess)

	currentProcess := windows.CurrentProcess()
	buf := make([]byte, 8*len(fds))
	for i, fd := range fds {
		var dup windows.Handle
		err := windows.DuplicateHandle(
			currentProcess, windows.Handle(fd),
			targetProcess, &dup,
			0, false, windows.DUPLICATE_SAME_ACCESS,
		)
		if err != nil {
			return fmt.Errorf("handshake: duplicate handle into peer: %w", err)
		}
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(dup))
	}
	_, err = conn.Write(buf)
	return err
}

// recvFDs reads count duplicated handle values; they are already valid
// handles in this process courtesy of the server's DuplicateHandle call.
func recvFDs(conn net.Conn, count int) ([]int, error) {
	buf := make([]byte, 8*count)
	if _, err := readFull(conn, buf); err != nil {
		return nil, err
	}
	out := make([]int, count)
	for i := range out {
		out[i] = int(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
