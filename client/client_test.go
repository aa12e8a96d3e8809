package client

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/shmipc/server"
)

const msgTypeEcho = 1

func newTestService(t *testing.T) (*server.Service, string) {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.SocketPath = filepath.Join(t.TempDir(), fmt.Sprintf("shmipc-%d.sock", time.Now().UnixNano()))
	cfg.TXCapacity = 64 * 1024
	cfg.RXCapacity = 64 * 1024
	cfg.NumWorkers = 2
	cfg.MetricsInterval = 10 * time.Millisecond

	svc, err := server.New(cfg, nil)
	require.NoError(t, err)
	svc.RegisterHandler(msgTypeEcho, func(slotID uint32, correlationID uint64, payload []byte) ([]byte, error) {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	})
	require.NoError(t, svc.Start(nil))
	t.Cleanup(func() { svc.Shutdown(context.Background()) })
	return svc, cfg.SocketPath
}

func TestClientSendRecvRoundTrip(t *testing.T) {
	_, sock := newTestService(t)

	cli, err := Connect(context.Background(), Options{SocketPath: sock, DialTimeout: time.Second})
	require.NoError(t, err)
	defer cli.Close()

	id, err := cli.Send(msgTypeEcho, []byte("ping"), time.Second)
	require.NoError(t, err)

	h, payload, err := cli.Recv(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, id, h.CorrelationID)
	assert.Equal(t, "ping", string(payload))
}

func TestClientSendBatch(t *testing.T) {
	_, sock := newTestService(t)

	cli, err := Connect(context.Background(), Options{SocketPath: sock, DialTimeout: time.Second})
	require.NoError(t, err)
	defer cli.Close()

	ids, err := cli.SendBatch(msgTypeEcho, [][]byte{[]byte("a"), []byte("bb")}, time.Second)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	frames, err := cli.RecvBatch(2, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a", string(frames[0]))
	assert.Equal(t, "bb", string(frames[1]))
}

func TestClientWriteReadRawBytes(t *testing.T) {
	_, sock := newTestService(t)

	cli, err := Connect(context.Background(), Options{SocketPath: sock, DialTimeout: time.Second})
	require.NoError(t, err)
	defer cli.Close()

	n, err := cli.Write([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestConnectFailsFastWithoutAListener(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "nobody-home.sock")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := Connect(ctx, Options{SocketPath: sock, DialTimeout: 50 * time.Millisecond})
	assert.Error(t, err)
}
