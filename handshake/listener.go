// File: handshake/listener.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handshake

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"os"

	"go.uber.org/zap"

	"github.com/momentics/shmipc/ring"
	"github.com/momentics/shmipc/shm"
	"github.com/momentics/shmipc/stream"
)

// Config controls the sizes and limits a Listener applies to every
// handshake it serves.
type Config struct {
	SocketPath string
	MaxSlots   uint32
	TXCapacity uint64
	RXCapacity uint64
}

// Listener brokers new streams over a Unix-domain control socket: each
// accepted connection runs exactly one handshake and is then closed.
type Listener struct {
	cfg   Config
	ln    net.Listener
	slots *slotTable
	log   *zap.Logger
}

// Listen binds the control socket. The socket file is created with
// owner-only permissions and removed on Close.
func Listen(cfg Config, log *zap.Logger) (*Listener, error) {
	_ = os.Remove(cfg.SocketPath) // best-effort: clear a stale socket from a prior crash
	ln, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("handshake: listen %s: %w", cfg.SocketPath, err)
	}
	if err := os.Chmod(cfg.SocketPath, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("handshake: chmod %s: %w", cfg.SocketPath, err)
	}
	if cfg.MaxSlots == 0 {
		cfg.MaxSlots = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{
		cfg:   cfg,
		ln:    ln,
		slots: newSlotTable(cfg.MaxSlots),
		log:   log,
	}, nil
}

// Close stops accepting and removes the socket file.
func (l *Listener) Close() error {
	err := l.ln.Close()
	_ = os.Remove(l.cfg.SocketPath)
	return err
}

// Accept blocks for the next connection and runs its handshake to
// completion, returning the resulting Stream. A malformed or failed
// handshake never returns a Stream; the caller should loop and call
// Accept again.
func (l *Listener) Accept() (*stream.Stream, error) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return nil, err
		}
		s, err := l.handshake(conn)
		conn.Close()
		if err != nil {
			l.log.Warn("handshake failed", zap.Error(err))
			continue
		}
		return s, nil
	}
}

// Slots exposes the active-stream table for shutdown accounting.
func (l *Listener) Slots() []*stream.Stream {
	return l.slots.snapshot()
}

func (l *Listener) handshake(conn net.Conn) (*stream.Stream, error) {
	reqBuf, err := readMessage(conn, maxWireMessage)
	if err != nil {
		return nil, fmt.Errorf("handshake: read request: %w", err)
	}
	req, err := decodeRequest(reqBuf)
	if err != nil {
		return l.reject(conn, StatusMalformedRequest, err)
	}
	if req.Version != Version {
		return l.reject(conn, StatusUnsupportedVersion, fmt.Errorf("client version %d", req.Version))
	}

	slotID, err := l.slots.allocate()
	if err != nil {
		return l.reject(conn, StatusSlotExhausted, err)
	}

	nonce, err := randomNonce()
	if err != nil {
		l.slots.release(slotID)
		return l.reject(conn, StatusShmCreateFailed, err)
	}

	txBytes, rxBytes := l.cfg.TXCapacity, l.cfg.RXCapacity
	if req.RequestedBytes != 0 {
		txBytes, rxBytes = req.RequestedBytes, req.RequestedBytes
	}

	base := l.cfg.SocketPath
	txName := shm.Name(base, slotID, nonce, shm.TX)
	rxName := shm.Name(base, slotID, nonce, shm.RX)

	txObj, err := shm.Create(txName, int(ring.HeaderSize)+int(txBytes), true)
	if err != nil {
		l.slots.release(slotID)
		return l.reject(conn, StatusShmCreateFailed, err)
	}
	rxObj, err := shm.Create(rxName, int(ring.HeaderSize)+int(rxBytes), true)
	if err != nil {
		txObj.Close()
		shm.Unlink(txName)
		l.slots.release(slotID)
		return l.reject(conn, StatusShmCreateFailed, err)
	}

	txRing, err := ring.New(txObj.Region, txBytes, true)
	if err != nil {
		l.cleanupFailed(slotID, txObj, rxObj, txName, rxName)
		return l.reject(conn, StatusShmCreateFailed, err)
	}
	rxRing, err := ring.New(rxObj.Region, rxBytes, true)
	if err != nil {
		l.cleanupFailed(slotID, txObj, rxObj, txName, rxName)
		return l.reject(conn, StatusShmCreateFailed, err)
	}

	txLiveR, txLiveW, err := os.Pipe()
	if err != nil {
		l.cleanupFailed(slotID, txObj, rxObj, txName, rxName)
		return l.reject(conn, StatusFDPassFailed, err)
	}
	rxLiveR, rxLiveW, err := os.Pipe()
	if err != nil {
		txLiveR.Close()
		txLiveW.Close()
		l.cleanupFailed(slotID, txObj, rxObj, txName, rxName)
		return l.reject(conn, StatusFDPassFailed, err)
	}

	resp := Response{
		Status:  StatusOK,
		Slot:    slotID,
		Nonce:   nonce,
		ShmBase: base,
		TXBytes: txBytes,
		RXBytes: rxBytes,
		Mode:    req.PreferredMode,
	}
	if err := writeMessage(conn, encodeResponse(resp)); err != nil {
		txLiveR.Close()
		rxLiveR.Close()
		txLiveW.Close()
		rxLiveW.Close()
		l.cleanupFailed(slotID, txObj, rxObj, txName, rxName)
		return nil, fmt.Errorf("handshake: write response: %w", err)
	}

	// The read ends travel to the client; the server keeps the write ends
	// open for the stream's lifetime purely so the pipe stays alive, and
	// closes them on teardown so the client observes EOF.
	if err := sendFDs(conn, []int{int(txLiveR.Fd()), int(rxLiveR.Fd())}, req.ClientPID); err != nil {
		txLiveR.Close()
		rxLiveR.Close()
		txLiveW.Close()
		rxLiveW.Close()
		l.cleanupFailed(slotID, txObj, rxObj, txName, rxName)
		return nil, fmt.Errorf("handshake: send descriptors: %w", err)
	}
	txLiveR.Close()
	rxLiveR.Close()

	s := stream.New(slotID, stream.Rings{TX: txObj, RX: rxObj, TXRing: txRing, RXRing: rxRing}, stream.Server)
	l.slots.bind(slotID, s)

	go func() {
		<-s.Done()
		txLiveW.Close()
		rxLiveW.Close()
		l.slots.release(slotID)
		shm.Unlink(txName)
		shm.Unlink(rxName)
	}()

	return s, nil
}

func (l *Listener) cleanupFailed(slotID uint32, txObj, rxObj *shm.Object, txName, rxName string) {
	if txObj != nil {
		txObj.Close()
	}
	if rxObj != nil {
		rxObj.Close()
	}
	shm.Unlink(txName)
	shm.Unlink(rxName)
	l.slots.release(slotID)
}

func (l *Listener) reject(conn net.Conn, status StatusCode, cause error) (*stream.Stream, error) {
	resp := Response{Status: status}
	_ = writeMessage(conn, encodeResponse(resp))
	return nil, fmt.Errorf("%s: %w", status.Error(), cause)
}

func randomNonce() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
