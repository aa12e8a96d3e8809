package server

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/shmipc/api"
	"github.com/momentics/shmipc/codec"
	"github.com/momentics/shmipc/handshake"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SocketPath = filepath.Join(t.TempDir(), fmt.Sprintf("shmipc-%d.sock", time.Now().UnixNano()))
	cfg.TXCapacity = 64 * 1024
	cfg.RXCapacity = 64 * 1024
	cfg.NumWorkers = 2
	cfg.IdleTimeout = time.Second
	cfg.WriteTimeout = time.Second
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.MetricsInterval = 10 * time.Millisecond
	return cfg
}

const msgTypeEcho = 1

func TestServiceEchoesRegisteredHandler(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg, nil)
	require.NoError(t, err)

	svc.RegisterHandler(msgTypeEcho, func(slotID uint32, correlationID uint64, payload []byte) ([]byte, error) {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	})

	require.NoError(t, svc.Start(nil))
	defer svc.Shutdown(context.Background())

	cli, err := handshake.Dial(handshake.DialOptions{SocketPath: cfg.SocketPath, Timeout: time.Second})
	require.NoError(t, err)
	defer cli.Close()

	require.NoError(t, cli.WriteFrame(msgTypeEcho, 99, []byte("hello"), time.Second))
	h, payload, err := cli.ReadFrame(2 * time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, msgTypeEcho, h.Type)
	assert.EqualValues(t, 99, h.CorrelationID)
	assert.Equal(t, "hello", string(payload))
}

func TestServiceUnknownTypeGetsErrorReplyAndStaysOpen(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Start(nil))
	defer svc.Shutdown(context.Background())

	cli, err := handshake.Dial(handshake.DialOptions{SocketPath: cfg.SocketPath, Timeout: time.Second})
	require.NoError(t, err)
	defer cli.Close()

	require.NoError(t, cli.WriteFrame(0xFFFF, 1, []byte("x"), time.Second))
	h, payload, err := cli.ReadFrame(2 * time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, codec.ErrorFrameType, h.Type)
	assert.EqualValues(t, 1, h.CorrelationID)
	decoded := api.DecodeError(payload)
	assert.Equal(t, api.ErrCodeHandler, decoded.Code)

	// The connection stays open: a follow-up registered message still
	// round-trips normally.
	svc.RegisterHandler(msgTypeEcho, func(slotID uint32, correlationID uint64, payload []byte) ([]byte, error) {
		return payload, nil
	})
	require.NoError(t, cli.WriteFrame(msgTypeEcho, 2, []byte("still alive"), time.Second))
	h2, payload2, err := cli.ReadFrame(2 * time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, msgTypeEcho, h2.Type)
	assert.Equal(t, "still alive", string(payload2))
}

func TestServiceCorruptedFrameClosesConnectionAndCountsReadError(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg, nil)
	require.NoError(t, err)

	handlerCalled := false
	svc.RegisterHandler(msgTypeEcho, func(slotID uint32, correlationID uint64, payload []byte) ([]byte, error) {
		handlerCalled = true
		return payload, nil
	})

	require.NoError(t, svc.Start(nil))
	defer svc.Shutdown(context.Background())

	cli, err := handshake.Dial(handshake.DialOptions{SocketPath: cfg.SocketPath, Timeout: time.Second})
	require.NoError(t, err)
	defer cli.Close()

	frame := codec.Encode(msgTypeEcho, 7, []byte("hello"))
	frame[len(frame)-1] ^= 0xFF // flip a payload byte without touching the CRC
	require.NoError(t, cli.WriteAll(frame, time.Second))

	select {
	case <-cli.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not close connection after corrupted frame")
	}
	assert.False(t, handlerCalled)

	require.Eventually(t, func() bool {
		stats := svc.Stats()
		v, ok := stats["metrics.read_errors"]
		return ok && fmt.Sprint(v) == "1"
	}, time.Second, 10*time.Millisecond)

	// A second, healthy connection is unaffected by the first's corruption.
	cli2, err := handshake.Dial(handshake.DialOptions{SocketPath: cfg.SocketPath, Timeout: time.Second})
	require.NoError(t, err)
	defer cli2.Close()

	require.NoError(t, cli2.WriteFrame(msgTypeEcho, 8, []byte("still fine"), time.Second))
	h, payload, err := cli2.ReadFrame(2 * time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, msgTypeEcho, h.Type)
	assert.Equal(t, "still fine", string(payload))
}

func TestServiceZeroCopyReadsEchoesRegisteredHandler(t *testing.T) {
	cfg := testConfig(t)
	cfg.ZeroCopyReads = true
	svc, err := New(cfg, nil)
	require.NoError(t, err)

	svc.RegisterHandler(msgTypeEcho, func(slotID uint32, correlationID uint64, payload []byte) ([]byte, error) {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	})

	require.NoError(t, svc.Start(nil))
	defer svc.Shutdown(context.Background())

	cli, err := handshake.Dial(handshake.DialOptions{SocketPath: cfg.SocketPath, Timeout: time.Second})
	require.NoError(t, err)
	defer cli.Close()

	require.NoError(t, cli.WriteFrame(msgTypeEcho, 1, []byte("zero-copy"), time.Second))
	h, payload, err := cli.ReadFrame(2 * time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, msgTypeEcho, h.Type)
	assert.Equal(t, "zero-copy", string(payload))

	// A second message on the same connection proves the ring advanced
	// past the first borrowed frame once its handler released it.
	require.NoError(t, cli.WriteFrame(msgTypeEcho, 2, []byte("second"), time.Second))
	h2, payload2, err := cli.ReadFrame(2 * time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 2, h2.CorrelationID)
	assert.Equal(t, "second", string(payload2))
}

func TestServiceStatsReportsActiveStream(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Start(nil))
	defer svc.Shutdown(context.Background())

	cli, err := handshake.Dial(handshake.DialOptions{SocketPath: cfg.SocketPath, Timeout: time.Second})
	require.NoError(t, err)
	defer cli.Close()

	require.Eventually(t, func() bool {
		stats := svc.Stats()
		v, ok := stats["debug.active_streams"]
		return ok && fmt.Sprint(v) == "1"
	}, time.Second, 10*time.Millisecond)
}

func TestServiceStatsReportsActiveSession(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Start(nil))
	defer svc.Shutdown(context.Background())

	cli, err := handshake.Dial(handshake.DialOptions{SocketPath: cfg.SocketPath, Timeout: time.Second})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stats := svc.Stats()
		v, ok := stats["debug.active_sessions"]
		return ok && fmt.Sprint(v) == "1"
	}, time.Second, 10*time.Millisecond)

	cli.Close()

	require.Eventually(t, func() bool {
		stats := svc.Stats()
		v, ok := stats["debug.active_sessions"]
		return ok && fmt.Sprint(v) == "0"
	}, time.Second, 10*time.Millisecond)
}

func TestServiceShutdownClosesActiveStreams(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Start(nil))

	cli, err := handshake.Dial(handshake.DialOptions{SocketPath: cfg.SocketPath, Timeout: time.Second})
	require.NoError(t, err)
	defer cli.Close()

	require.NoError(t, svc.Shutdown(context.Background()))

	select {
	case <-cli.Done():
	case <-time.After(time.Second):
		t.Fatal("client stream was not closed by server shutdown")
	}
}

func TestServiceSecondStartFails(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Start(nil))
	defer svc.Shutdown(context.Background())

	assert.ErrorIs(t, svc.Start(nil), ErrAlreadyStarted)
}
