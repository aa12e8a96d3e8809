package stream

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/shmipc/ring"
	"github.com/momentics/shmipc/shm"
)

// loopback builds a server-view and client-view Stream sharing the same two
// heap-backed rings, mimicking what a real handshake hands to each side of
// a connection without needing actual shared memory.
func loopback(t *testing.T, capacity uint64) (*Stream, *Stream) {
	t.Helper()
	txRegion := make([]byte, ring.HeaderSize+capacity)
	rxRegion := make([]byte, ring.HeaderSize+capacity)

	txRing, err := ring.New(txRegion, capacity, true)
	require.NoError(t, err)
	rxRing, err := ring.New(rxRegion, capacity, true)
	require.NoError(t, err)

	r := Rings{TXRing: txRing, RXRing: rxRing, TX: &shm.Object{}, RX: &shm.Object{}}
	server := New(1, r, Server)
	client := New(1, r, Client)
	return server, client
}

func TestWriteReadAcrossLoopback(t *testing.T) {
	server, client := loopback(t, 4096)
	defer server.Close()
	defer client.Close()

	require.NoError(t, server.Write([]byte("ping")))

	dst := make([]byte, 4)
	n, err := client.Read(dst, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "ping", string(dst))
}

func TestReadBlocksUntilWriteWakesWaiter(t *testing.T) {
	server, client := loopback(t, 4096)
	defer server.Close()
	defer client.Close()

	done := make(chan error, 1)
	dst := make([]byte, 3)
	go func() {
		n, err := client.Read(dst, 2*time.Second)
		if err == nil && n != 3 {
			err = errors.New("short read")
		}
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, server.Write([]byte("abc")))

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.Equal(t, "abc", string(dst))
	case <-time.After(2 * time.Second):
		t.Fatal("read did not unblock after write")
	}
}

func TestReadTimesOutWhenNothingWritten(t *testing.T) {
	server, client := loopback(t, 4096)
	defer server.Close()
	defer client.Close()

	dst := make([]byte, 3)
	_, err := client.Read(dst, 30*time.Millisecond)
	assert.Error(t, err)
}

func TestWriteAfterCloseIsErrClosed(t *testing.T) {
	server, client := loopback(t, 4096)
	defer client.Close()
	server.Close()

	err := server.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
}
