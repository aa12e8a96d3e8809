package handshake

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/shmipc/stream"
)

func TestHandshakeEndToEndRoundTrip(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "shmipc.sock")

	ln, err := Listen(Config{
		SocketPath: sockPath,
		MaxSlots:   4,
		TXCapacity: 4096,
		RXCapacity: 4096,
	}, nil)
	require.NoError(t, err)
	defer ln.Close()

	serverCh := make(chan *stream.Stream, 1)
	serverErrCh := make(chan error, 1)
	go func() {
		s, err := ln.Accept()
		serverCh <- s
		serverErrCh <- err
	}()

	clientStream, err := Dial(DialOptions{SocketPath: sockPath, Timeout: 2 * time.Second})
	require.NoError(t, err)
	defer clientStream.Close()

	require.NoError(t, <-serverErrCh)
	serverStream := <-serverCh
	require.NotNil(t, serverStream)
	defer serverStream.Close()

	assert.Equal(t, serverStream.SlotID(), clientStream.SlotID())

	require.NoError(t, clientStream.Write([]byte("ping")))
	dst := make([]byte, 4)
	n, err := serverStream.Read(dst, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "ping", string(dst))

	require.NoError(t, serverStream.Write([]byte("pong")))
	dst2 := make([]byte, 4)
	n2, err := clientStream.Read(dst2, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 4, n2)
	assert.Equal(t, "pong", string(dst2))
}

func TestDialFailsWhenNoListener(t *testing.T) {
	_, err := Dial(DialOptions{SocketPath: "/tmp/shmipc-does-not-exist.sock", Timeout: 200 * time.Millisecond})
	assert.Error(t, err)
}

func TestSecondDialTimesOutWithoutAnotherAccept(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "shmipc-full.sock")
	ln, err := Listen(Config{SocketPath: sockPath, MaxSlots: 1, TXCapacity: 4096, RXCapacity: 4096}, nil)
	require.NoError(t, err)
	defer ln.Close()

	go func() { ln.Accept() }()
	first, err := Dial(DialOptions{SocketPath: sockPath, Timeout: time.Second})
	require.NoError(t, err)
	defer first.Close()

	// No second Accept is running, so the second dial's request is never
	// read and will simply time out rather than being rejected by the
	// slot table; this exercises the client's own dial timeout path.
	_, err = Dial(DialOptions{SocketPath: sockPath, Timeout: 100 * time.Millisecond})
	assert.Error(t, err)
}
