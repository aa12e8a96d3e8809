// File: handshake/wire.go
// Package handshake implements the one-shot control-channel protocol: a
// client connects, sends a HandshakeRequest, and receives a
// HandshakeResponse naming the shared-memory objects for its new stream
// plus a pair of liveness-pipe descriptors via ancillary data, then
// disconnects.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handshake

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Version is the handshake wire-format version, independent of the ring
// frame's codec.Version.
const Version uint16 = 1

// Mode is the client's requested waiting discipline for its stream.
type Mode uint8

const (
	ModeBlocking Mode = iota
	ModeAsync
)

// StatusCode reports the outcome of a handshake attempt.
type StatusCode uint8

const (
	StatusOK StatusCode = iota
	StatusMalformedRequest
	StatusUnsupportedVersion
	StatusSlotExhausted
	StatusShmCreateFailed
	StatusFDPassFailed
)

func (s StatusCode) Error() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusMalformedRequest:
		return "malformed handshake request"
	case StatusUnsupportedVersion:
		return "unsupported handshake version"
	case StatusSlotExhausted:
		return "no free connection slots"
	case StatusShmCreateFailed:
		return "failed to create shared-memory objects"
	case StatusFDPassFailed:
		return "failed to transfer waiter descriptors"
	default:
		return fmt.Sprintf("unknown status %d", uint8(s))
	}
}

// Request is sent by the client as the first and only message on a new
// control connection.
type Request struct {
	Version        uint16
	ClientPID      uint32
	PreferredMode  Mode
	RequestedBytes uint64 // capacity hint per direction, 0 means server default
}

// Response is sent by the server in reply. ShmBase, Slot and Nonce are
// combined by both sides via shm.Name to derive the tx/rx object names;
// the response itself does not repeat the derived names.
type Response struct {
	Status  StatusCode
	Slot    uint32
	Nonce   uint64
	ShmBase string
	TXBytes uint64
	RXBytes uint64
	Mode    Mode
}

var errShortWrite = errors.New("handshake: short write")

// writeMessage writes a length-prefixed payload: a 4-byte little-endian
// length followed by the payload bytes.
func writeMessage(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	n, err := w.Write(payload)
	if err != nil {
		return err
	}
	if n != len(payload) {
		return errShortWrite
	}
	return nil
}

// readMessage reads one length-prefixed payload, rejecting sizes beyond
// maxLen to bound a malformed peer's ability to make the server allocate
// unbounded memory.
func readMessage(r io.Reader, maxLen uint32) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxLen {
		return nil, fmt.Errorf("handshake: message length %d exceeds limit %d", n, maxLen)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

const maxWireMessage = 4096

func encodeRequest(req Request) []byte {
	buf := make([]byte, 2+4+1+8)
	binary.LittleEndian.PutUint16(buf[0:2], req.Version)
	binary.LittleEndian.PutUint32(buf[2:6], req.ClientPID)
	buf[6] = byte(req.PreferredMode)
	binary.LittleEndian.PutUint64(buf[7:15], req.RequestedBytes)
	return buf
}

func decodeRequest(buf []byte) (Request, error) {
	if len(buf) < 15 {
		return Request{}, errors.New("handshake: request too short")
	}
	return Request{
		Version:        binary.LittleEndian.Uint16(buf[0:2]),
		ClientPID:      binary.LittleEndian.Uint32(buf[2:6]),
		PreferredMode:  Mode(buf[6]),
		RequestedBytes: binary.LittleEndian.Uint64(buf[7:15]),
	}, nil
}

func encodeResponse(resp Response) []byte {
	base := []byte(resp.ShmBase)
	buf := make([]byte, 1+4+8+8+8+1+2+len(base))
	off := 0
	buf[off] = byte(resp.Status)
	off++
	binary.LittleEndian.PutUint32(buf[off:], resp.Slot)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], resp.Nonce)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], resp.TXBytes)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], resp.RXBytes)
	off += 8
	buf[off] = byte(resp.Mode)
	off++
	binary.LittleEndian.PutUint16(buf[off:], uint16(len(base)))
	off += 2
	copy(buf[off:], base)
	return buf
}

func decodeResponse(buf []byte) (Response, error) {
	const fixed = 1 + 4 + 8 + 8 + 8 + 1 + 2
	if len(buf) < fixed {
		return Response{}, errors.New("handshake: response too short")
	}
	off := 0
	resp := Response{Status: StatusCode(buf[off])}
	off++
	resp.Slot = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	resp.Nonce = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	resp.TXBytes = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	resp.RXBytes = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	resp.Mode = Mode(buf[off])
	off++
	baseLen := int(binary.LittleEndian.Uint16(buf[off:]))
	off += 2
	if len(buf) < off+baseLen {
		return Response{}, errors.New("handshake: truncated shm base name")
	}
	resp.ShmBase = string(buf[off : off+baseLen])
	return resp, nil
}
