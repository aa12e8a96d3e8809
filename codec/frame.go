// File: codec/frame.go
// Package codec implements the fixed 24-byte message frame header used on
// every ring: magic, version, type, length, correlation_id, crc32.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package codec

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// HeaderSize is the fixed on-wire size of a Frame header, before payload.
const HeaderSize = 24

// Magic guards against reading a frame from a misaligned or corrupted
// ring position.
const Magic uint32 = 0x53484d49 // "SHMI"

// Version is the current protocol version. An unknown version is fatal
// for the connection that sent it; an unknown Type is merely a
// recoverable per-message error.
const Version uint16 = 1

// ErrorFrameType is the reserved Type value marking a frame's payload as
// an api.Error (see api.EncodeError/DecodeError) rather than application
// data. RegisterHandler rejects registration under this type.
const ErrorFrameType uint16 = 0xFFFF

var (
	// ErrBadMagic means the bytes at the claimed header offset are not a
	// frame header at all, usually a sign the ring's read position has
	// desynchronized from its writer.
	ErrBadMagic = errors.New("codec: bad frame magic")
	// ErrUnsupportedVersion is fatal for the connection; the two sides
	// cannot agree on wire format.
	ErrUnsupportedVersion = errors.New("codec: unsupported frame version")
	// ErrChecksum means the payload was corrupted in transit.
	ErrChecksum = errors.New("codec: crc32 mismatch")
	// ErrTooLarge means length exceeds the configured maximum for this
	// connection (see MaxMessageSize).
	ErrTooLarge = errors.New("codec: payload exceeds max message size")
)

// Header is the fixed portion of a frame, decoded into Go fields.
type Header struct {
	Magic         uint32
	Version       uint16
	Type          uint16
	Length        uint32
	CorrelationID uint64
	CRC32         uint32
}

// MaxMessageSize bounds a single frame's payload so a request and its
// response can never together exceed one ring's capacity, which would
// deadlock a connection that serializes request/response pairs on the
// same ring direction.
func MaxMessageSize(ringCapacity uint64) uint32 {
	return uint32(ringCapacity / 2)
}

// EncodeHeader serializes h into dst[:HeaderSize]. The crc32 field is
// computed by the caller over header-except-crc plus payload and passed
// in via h.CRC32; EncodeHeader does not compute it itself so it can be
// reused for both the hashing pass and the final write.
func EncodeHeader(dst []byte, h Header) {
	_ = dst[HeaderSize-1]
	binary.LittleEndian.PutUint32(dst[0:4], h.Magic)
	binary.LittleEndian.PutUint16(dst[4:6], h.Version)
	binary.LittleEndian.PutUint16(dst[6:8], h.Type)
	binary.LittleEndian.PutUint32(dst[8:12], h.Length)
	binary.LittleEndian.PutUint64(dst[12:20], h.CorrelationID)
	binary.LittleEndian.PutUint32(dst[20:24], h.CRC32)
}

// DecodeHeader parses src[:HeaderSize] into a Header, validating magic and
// version. It does not validate the checksum; call VerifyChecksum once the
// payload bytes are also available.
func DecodeHeader(src []byte) (Header, error) {
	_ = src[HeaderSize-1]
	h := Header{
		Magic:         binary.LittleEndian.Uint32(src[0:4]),
		Version:       binary.LittleEndian.Uint16(src[4:6]),
		Type:          binary.LittleEndian.Uint16(src[6:8]),
		Length:        binary.LittleEndian.Uint32(src[8:12]),
		CorrelationID: binary.LittleEndian.Uint64(src[12:20]),
		CRC32:         binary.LittleEndian.Uint32(src[20:24]),
	}
	if h.Magic != Magic {
		return Header{}, ErrBadMagic
	}
	if h.Version != Version {
		return Header{}, ErrUnsupportedVersion
	}
	return h, nil
}

// Checksum computes the crc32 over the header (with the crc32 field itself
// zeroed) followed by the payload.
func Checksum(h Header, payload []byte) uint32 {
	var tmp [HeaderSize]byte
	h.CRC32 = 0
	EncodeHeader(tmp[:], h)
	crc := crc32.NewIEEE()
	crc.Write(tmp[:])
	crc.Write(payload)
	return crc.Sum32()
}

// Encode builds a complete frame (header + payload) into a single
// allocation, ready to hand to a ring's TryWrite.
func Encode(msgType uint16, correlationID uint64, payload []byte) []byte {
	h := Header{
		Magic:         Magic,
		Version:       Version,
		Type:          msgType,
		Length:        uint32(len(payload)),
		CorrelationID: correlationID,
	}
	h.CRC32 = Checksum(h, payload)

	buf := make([]byte, HeaderSize+len(payload))
	EncodeHeader(buf, h)
	copy(buf[HeaderSize:], payload)
	return buf
}

// VerifyChecksum validates that payload matches the checksum embedded in
// header (already decoded via DecodeHeader).
func VerifyChecksum(h Header, payload []byte) error {
	if Checksum(h, payload) != h.CRC32 {
		return ErrChecksum
	}
	return nil
}

// Decode parses a complete frame previously produced by Encode, validating
// magic, version and checksum, and returns the payload as an owned copy.
func Decode(frame []byte) (Header, []byte, error) {
	if len(frame) < HeaderSize {
		return Header{}, nil, ErrBadMagic
	}
	h, err := DecodeHeader(frame)
	if err != nil {
		return Header{}, nil, err
	}
	if uint32(len(frame)-HeaderSize) < h.Length {
		return Header{}, nil, ErrBadMagic
	}
	payload := frame[HeaderSize : HeaderSize+int(h.Length)]
	if err := VerifyChecksum(h, payload); err != nil {
		return Header{}, nil, err
	}
	owned := make([]byte, len(payload))
	copy(owned, payload)
	return h, owned, nil
}
