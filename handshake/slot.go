// File: handshake/slot.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handshake

import (
	"sync"

	"github.com/momentics/shmipc/stream"
)

// slotTable allocates slot IDs and tracks active connections for shutdown
// accounting. Allocation is serialized; once the
// stream exists all post-handshake work on it proceeds independently.
type slotTable struct {
	mu       sync.Mutex
	maxSlots uint32
	next     uint32
	active   map[uint32]*stream.Stream
}

var errSlotExhausted = statusError{StatusSlotExhausted}

type statusError struct{ code StatusCode }

func (e statusError) Error() string { return e.code.Error() }

func newSlotTable(maxSlots uint32) *slotTable {
	return &slotTable{maxSlots: maxSlots, active: make(map[uint32]*stream.Stream)}
}

// allocate reserves the next free slot ID, wrapping the counter and
// skipping IDs still in active use. Returns errSlotExhausted once every
// slot up to maxSlots is occupied.
func (t *slotTable) allocate() (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if uint32(len(t.active)) >= t.maxSlots {
		return 0, errSlotExhausted
	}
	for i := uint32(0); i < t.maxSlots; i++ {
		id := t.next
		t.next = (t.next + 1) % t.maxSlots
		if _, taken := t.active[id]; !taken {
			t.active[id] = nil
			return id, nil
		}
	}
	return 0, errSlotExhausted
}

// bind records the stream created for a previously allocated slot.
func (t *slotTable) bind(id uint32, s *stream.Stream) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[id] = s
}

// release frees a slot, e.g. after a failed handshake or stream teardown.
func (t *slotTable) release(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, id)
}

// snapshot returns the streams currently bound, used by the server during
// shutdown to drain or forcibly close remaining connections.
func (t *slotTable) snapshot() []*stream.Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*stream.Stream, 0, len(t.active))
	for _, s := range t.active {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
