// File: client/client.go
// Package client is the user-facing counterpart to server.Service: dial
// the control socket, run the handshake, and expose ergonomic
// Send/Recv/SendBatch/RecvBatch plus io.Writer/io.Reader-compatible
// Write/Read for call sites that only want a byte stream.
//
// Grounded on the teacher's lowlevel/client facade/transport/batch
// split and on the bird-adapter's exponential-backoff reconnect loop
// (modules/route/bird-adapter/service.go) for the reconnection policy.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/momentics/shmipc/codec"
	"github.com/momentics/shmipc/handshake"
	"github.com/momentics/shmipc/stream"
)

// Options configures a Client's dial and reconnect behavior.
type Options struct {
	SocketPath     string
	PreferredMode  handshake.Mode
	RequestedBytes uint64
	DialTimeout    time.Duration
	// ReconnectMaxElapsed bounds how long automatic reconnection keeps
	// retrying after a disconnect; 0 means retry indefinitely.
	ReconnectMaxElapsed time.Duration
}

// Client owns one shmipc connection, transparently replacing its
// underlying stream.Stream on disconnect via Reconnect.
type Client struct {
	opts Options

	mu  sync.RWMutex
	str *stream.Stream

	nextCorrelationID atomic.Uint64
}

// Connect dials opts.SocketPath, retrying with exponential backoff until
// the handshake succeeds or ReconnectMaxElapsed elapses.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	str, err := dialWithBackoff(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Client{opts: opts, str: str}, nil
}

func dialWithBackoff(ctx context.Context, opts Options) (*stream.Stream, error) {
	retryOpts := []backoff.RetryOption{backoff.WithBackOff(backoff.NewExponentialBackOff())}
	if opts.ReconnectMaxElapsed > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxElapsedTime(opts.ReconnectMaxElapsed))
	}

	return backoff.Retry(ctx, func() (*stream.Stream, error) {
		return handshake.Dial(handshake.DialOptions{
			SocketPath:     opts.SocketPath,
			PreferredMode:  opts.PreferredMode,
			RequestedBytes: opts.RequestedBytes,
			Timeout:        opts.DialTimeout,
		})
	}, retryOpts...)
}

// Reconnect tears down the current stream (if still open) and dials a
// fresh one, retrying with backoff. Safe to call concurrently with
// Send/Recv, which fail over to the new stream once swapped in.
func (c *Client) Reconnect(ctx context.Context) error {
	str, err := dialWithBackoff(ctx, c.opts)
	if err != nil {
		return err
	}
	c.mu.Lock()
	old := c.str
	c.str = str
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

func (c *Client) current() *stream.Stream {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.str
}

// Send encodes payload under a freshly allocated correlation ID and
// writes it as msgType, returning that ID so the caller can match a
// later Recv to this request.
func (c *Client) Send(msgType uint16, payload []byte, timeout time.Duration) (uint64, error) {
	id := c.nextCorrelationID.Add(1)
	if err := c.current().WriteFrame(msgType, id, payload, timeout); err != nil {
		return 0, err
	}
	return id, nil
}

// SendBatch encodes and publishes every payload as msgType under
// independent correlation IDs in a single atomic ring reservation.
func (c *Client) SendBatch(msgType uint16, payloads [][]byte, timeout time.Duration) ([]uint64, error) {
	ids := make([]uint64, len(payloads))
	frames := make([]stream.OutgoingFrame, len(payloads))
	for i, p := range payloads {
		id := c.nextCorrelationID.Add(1)
		ids[i] = id
		frames[i] = stream.OutgoingFrame{MsgType: msgType, CorrelationID: id, Payload: p}
	}
	if err := c.current().WriteFrameBatch(frames, timeout); err != nil {
		return nil, err
	}
	return ids, nil
}

// Recv reads the next complete frame, whatever its type or correlation
// ID; callers that need request/response matching should compare
// against the ID returned by Send.
func (c *Client) Recv(timeout time.Duration) (codec.Header, []byte, error) {
	return c.current().ReadFrame(timeout)
}

// RecvBatch reads exactly n frames in sequence, stopping at the first
// error (including timeout) and returning whatever was already read
// alongside it.
func (c *Client) RecvBatch(n int, timeout time.Duration) ([][]byte, error) {
	deadline, hasDeadline := deadlineFor(timeout)
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		left, expired := remaining(deadline, hasDeadline)
		if expired {
			return out, errors.New("client: RecvBatch timed out")
		}
		_, payload, err := c.current().ReadFrame(left)
		if err != nil {
			return out, err
		}
		out = append(out, payload)
	}
	return out, nil
}

// Write implements io.Writer by retrying the underlying ring write
// until accepted, bypassing message framing entirely for call sites
// that only want raw byte-stream semantics.
func (c *Client) Write(p []byte) (int, error) {
	if err := c.current().WriteAll(p, 0); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read implements io.Reader, returning whatever is currently available
// (possibly fewer bytes than len(p)), blocking indefinitely if the ring
// is empty.
func (c *Client) Read(p []byte) (int, error) {
	return c.current().Read(p, 0)
}

// Close releases the current stream's mapped memory.
func (c *Client) Close() error {
	return c.current().Close()
}

// Done returns a channel closed once the current stream is torn down.
func (c *Client) Done() <-chan struct{} {
	return c.current().Done()
}

func deadlineFor(timeout time.Duration) (time.Time, bool) {
	if timeout <= 0 {
		return time.Time{}, false
	}
	return time.Now().Add(timeout), true
}

func remaining(deadline time.Time, has bool) (left time.Duration, expired bool) {
	if !has {
		return 0, false
	}
	left = time.Until(deadline)
	return left, left <= 0
}
