package waiter

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitReturnsImmediatelyWhenAlreadyChanged(t *testing.T) {
	var seq uint32 = 5
	w := New(&seq)

	err := w.Wait(4, time.Second)
	assert.NoError(t, err)
}

func TestWaitTimesOutWhenValueNeverChanges(t *testing.T) {
	var seq uint32
	w := New(&seq).WithSpinBudget(4)

	start := time.Now()
	err := w.Wait(0, 30*time.Millisecond)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, elapsed, time.Second)
}

func TestWakeAllUnblocksConcurrentWaiters(t *testing.T) {
	var seq uint32
	w := New(&seq).WithSpinBudget(4)

	const waiters = 4
	done := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			done <- w.Wait(0, 2*time.Second)
		}()
	}

	// Give the waiters a chance to reach the kernel block before waking.
	time.Sleep(20 * time.Millisecond)
	atomic.StoreUint32(&seq, 1)
	w.WakeAll()

	for i := 0; i < waiters; i++ {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("waiter did not wake within 2x the expected bound")
		}
	}
}

func TestWakeOneDoesNotPanicWhenNobodyWaits(t *testing.T) {
	var seq uint32
	w := New(&seq)
	assert.NotPanics(t, func() {
		w.WakeOne()
		w.WakeAll()
	})
}
