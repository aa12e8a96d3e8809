// File: handshake/client.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handshake

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/momentics/shmipc/ring"
	"github.com/momentics/shmipc/shm"
	"github.com/momentics/shmipc/stream"
)

// DialOptions configures a client-side handshake attempt.
type DialOptions struct {
	SocketPath     string
	PreferredMode  Mode
	RequestedBytes uint64 // 0 lets the server pick its configured default
	Timeout        time.Duration
}

// Dial connects to the control socket, performs the one-shot handshake,
// maps the resulting shared-memory objects, and returns the client's view
// of the new Stream. Liveness pipes received from the server are watched
// in the background; their closure (the server tearing down the stream)
// proactively closes the Stream rather than waiting for a read timeout.
func Dial(opts DialOptions) (*stream.Stream, error) {
	timeout := orDefault(opts.Timeout, 5*time.Second)
	conn, err := net.DialTimeout("unix", opts.SocketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("handshake: dial %s: %w", opts.SocketPath, err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("handshake: set deadline: %w", err)
	}

	req := Request{
		Version:        Version,
		ClientPID:      uint32(os.Getpid()),
		PreferredMode:  opts.PreferredMode,
		RequestedBytes: opts.RequestedBytes,
	}
	if err := writeMessage(conn, encodeRequest(req)); err != nil {
		return nil, fmt.Errorf("handshake: write request: %w", err)
	}

	respBuf, err := readMessage(conn, maxWireMessage)
	if err != nil {
		return nil, fmt.Errorf("handshake: read response: %w", err)
	}
	resp, err := decodeResponse(respBuf)
	if err != nil {
		return nil, fmt.Errorf("handshake: decode response: %w", err)
	}
	if resp.Status != StatusOK {
		return nil, fmt.Errorf("handshake: server rejected connection: %s", resp.Status.Error())
	}

	fds, err := recvFDs(conn, 2)
	if err != nil {
		return nil, fmt.Errorf("handshake: receive descriptors: %w", err)
	}
	txLive := os.NewFile(uintptr(fds[0]), "shmipc-tx-liveness")
	rxLive := os.NewFile(uintptr(fds[1]), "shmipc-rx-liveness")

	txName := shm.Name(resp.ShmBase, resp.Slot, resp.Nonce, shm.TX)
	rxName := shm.Name(resp.ShmBase, resp.Slot, resp.Nonce, shm.RX)

	txObj, err := shm.Create(txName, int(ring.HeaderSize)+int(resp.TXBytes), false)
	if err != nil {
		txLive.Close()
		rxLive.Close()
		return nil, fmt.Errorf("handshake: map tx shm %s: %w", txName, err)
	}
	rxObj, err := shm.Create(rxName, int(ring.HeaderSize)+int(resp.RXBytes), false)
	if err != nil {
		txObj.Close()
		txLive.Close()
		rxLive.Close()
		return nil, fmt.Errorf("handshake: map rx shm %s: %w", rxName, err)
	}

	txRing, err := ring.New(txObj.Region, resp.TXBytes, false)
	if err != nil {
		txObj.Close()
		rxObj.Close()
		txLive.Close()
		rxLive.Close()
		return nil, fmt.Errorf("handshake: attach tx ring: %w", err)
	}
	rxRing, err := ring.New(rxObj.Region, resp.RXBytes, false)
	if err != nil {
		txObj.Close()
		rxObj.Close()
		txLive.Close()
		rxLive.Close()
		return nil, fmt.Errorf("handshake: attach rx ring: %w", err)
	}

	s := stream.New(resp.Slot, stream.Rings{TX: txObj, RX: rxObj, TXRing: txRing, RXRing: rxRing}, stream.Client)

	go watchLiveness(s, txLive)
	go watchLiveness(s, rxLive)

	return s, nil
}

// watchLiveness blocks reading f until EOF/error (the server closed its
// write end, meaning the stream or the whole server died) or the stream
// is closed locally, then ensures f is released.
func watchLiveness(s *stream.Stream, f *os.File) {
	defer f.Close()
	done := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		f.Read(buf) //nolint:errcheck // any return (EOF or data) means the peer is gone or signaling
		close(done)
	}()
	select {
	case <-done:
		s.Close()
	case <-s.Done():
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
