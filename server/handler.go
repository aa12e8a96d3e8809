// File: server/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"
	"sync"

	"github.com/momentics/shmipc/codec"
)

// HandlerFunc processes one decoded message and returns the payload to
// write back on the same stream under the same correlation ID. A nil
// response (with nil error) means no reply is sent, for fire-and-forget
// message types.
type HandlerFunc func(slotID uint32, correlationID uint64, payload []byte) ([]byte, error)

// registry maps a wire message Type to the HandlerFunc that serves it.
type registry struct {
	mu       sync.RWMutex
	handlers map[uint16]HandlerFunc
}

func newRegistry() *registry {
	return &registry{handlers: make(map[uint16]HandlerFunc)}
}

// errReservedType is returned by register when the caller tries to claim
// codec.ErrorFrameType, which is reserved for error-typed replies built
// at the dispatch boundary and must never reach an application handler.
var errReservedType = fmt.Errorf("server: message type %d is reserved for error replies", codec.ErrorFrameType)

func (r *registry) register(msgType uint16, fn HandlerFunc) error {
	if msgType == codec.ErrorFrameType {
		return errReservedType
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[msgType] = fn
	return nil
}

func (r *registry) lookup(msgType uint16) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[msgType]
	return fn, ok
}

// errUnknownType is wrapped with the offending type for each rejected
// message, keeping one registry-private sentinel alive by formatting.
func errUnknownType(msgType uint16) error {
	return fmt.Errorf("server: no handler registered for message type %d", msgType)
}
