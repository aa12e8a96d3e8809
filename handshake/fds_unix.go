//go:build !windows
// +build !windows

// File: handshake/fds_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Out-of-band file-descriptor transfer via SCM_RIGHTS. The main
// HandshakeResponse payload travels as an ordinary length-prefixed
// message; the two liveness-pipe descriptors follow as a second,
// one-byte message carrying only ancillary data, so the reader never has
// to pre-size a buffer for a payload whose length depends on the
// variable-length shm base name.

package handshake

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

func sendFDs(conn net.Conn, fds []int, _ uint32) error {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return fmt.Errorf("handshake: fd transfer requires a unix socket, got %T", conn)
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return err
	}
	oob := unix.UnixRights(fds...)
	var sendErr error
	ctrlErr := raw.Write(func(sysfd uintptr) bool {
		sendErr = unix.Sendmsg(int(sysfd), []byte{0}, oob, nil, 0) //nolint:staticcheck
		return sendErr != unix.EAGAIN
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sendErr
}

func recvFDs(conn net.Conn, count int) ([]int, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("handshake: fd transfer requires a unix socket, got %T", conn)
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return nil, err
	}

	p := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(count*4))
	var n, oobn int
	var recvErr error
	ctrlErr := raw.Read(func(sysfd uintptr) bool {
		n, oobn, _, _, recvErr = unix.Recvmsg(int(sysfd), p, oob, 0)
		return recvErr != unix.EAGAIN
	})
	if ctrlErr != nil {
		return nil, ctrlErr
	}
	if recvErr != nil {
		return nil, recvErr
	}
	if n == 0 {
		return nil, fmt.Errorf("handshake: peer closed before sending descriptors")
	}

	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, fmt.Errorf("handshake: parse control message: %w", err)
	}
	if len(scms) == 0 {
		return nil, fmt.Errorf("handshake: no ancillary data received")
	}
	fds, err := unix.ParseUnixRights(&scms[0])
	if err != nil {
		return nil, fmt.Errorf("handshake: parse unix rights: %w", err)
	}
	return fds, nil
}
