// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scheduler implements api.Scheduler on top of time.AfterFunc: a thin,
// cancelable wrapper rather than a hand-rolled timer wheel, since the
// runtime's own timer heap already does this well.

package concurrency

import (
	"errors"
	"sync"
	"time"

	"github.com/momentics/shmipc/api"
)

// errCanceled is the Err() value on a handle whose callback never ran
// because Cancel preempted it.
var errCanceled = errors.New("concurrency: scheduled callback canceled")

// timerHandle implements api.Cancelable around a time.Timer.
type timerHandle struct {
	t    *time.Timer
	mu   sync.Mutex
	done chan struct{}
	err  error
}

func newTimerHandle() *timerHandle {
	return &timerHandle{done: make(chan struct{})}
}

func (h *timerHandle) finish(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return // already finished (fired or canceled)
	default:
	}
	h.err = err
	close(h.done)
}

// Cancel stops the timer if it has not yet fired. Safe to call more than
// once or after the callback already ran.
func (h *timerHandle) Cancel() error {
	h.t.Stop()
	h.finish(errCanceled)
	return nil
}

func (h *timerHandle) Done() <-chan struct{} { return h.done }
func (h *timerHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Scheduler dispatches one-shot delayed callbacks, used for idle-timeout
// and backoff-style deadlines in the server loop.
type Scheduler struct {
	start time.Time
}

// NewScheduler returns a ready-to-use Scheduler. Now() reports
// nanoseconds elapsed since this call, a monotonic reference independent
// of wall-clock adjustments.
func NewScheduler() *Scheduler {
	return &Scheduler{start: time.Now()}
}

// Schedule runs fn after delayNanos on its own goroutine. The returned
// Cancelable's Done channel closes once fn has run or Cancel pre-empted
// it.
func (s *Scheduler) Schedule(delayNanos int64, fn func()) (api.Cancelable, error) {
	h := newTimerHandle()
	h.t = time.AfterFunc(time.Duration(delayNanos), func() {
		fn()
		h.finish(nil)
	})
	return h, nil
}

// Cancel stops a previously scheduled callback.
func (s *Scheduler) Cancel(c api.Cancelable) error {
	return c.Cancel()
}

// Now returns nanoseconds elapsed since the Scheduler was constructed.
func (s *Scheduler) Now() int64 {
	return int64(time.Since(s.start))
}
