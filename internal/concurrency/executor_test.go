package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorRunsAllSubmittedTasks(t *testing.T) {
	e := NewExecutor(4, -1)
	defer e.Close()

	var count atomic.Int64
	var wg sync.WaitGroup
	wg.Add(100)
	for i := 0; i < 100; i++ {
		require.NoError(t, e.Submit(func() {
			count.Add(1)
			wg.Done()
		}))
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not all tasks ran")
	}
	assert.EqualValues(t, 100, count.Load())
}

func TestExecutorSubmitAfterCloseFails(t *testing.T) {
	e := NewExecutor(1, -1)
	e.Close()
	err := e.Submit(func() {})
	assert.ErrorIs(t, err, ErrExecutorClosed)
}

func TestExecutorResizeGrows(t *testing.T) {
	e := NewExecutor(2, -1)
	defer e.Close()
	e.Resize(5)
	assert.Equal(t, 5, e.NumWorkers())
}

func TestExecutorResizeShrinksAndStillRunsTasks(t *testing.T) {
	e := NewExecutor(4, -1)
	defer e.Close()
	e.Resize(1)
	assert.Equal(t, 1, e.NumWorkers())

	done := make(chan struct{})
	require.NoError(t, e.Submit(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run after shrinking")
	}
}
