// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// NUMA-aware executor: a fixed-ish pool of goroutines pulling from a
// shared task queue, used as the server's connection-handler dispatch
// pool. The underlying github.com/eapache/queue.Queue is not itself
// concurrency-safe, so access is serialized under mu and idle workers
// park on cond rather than busy-polling.

package concurrency

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// TaskFunc is a unit of work submitted to an Executor.
type TaskFunc func()

var (
	// ErrExecutorClosed indicates the executor has been shut down.
	ErrExecutorClosed = errors.New("executor is closed")
)

// Executor implements api.Executor: Submit/NumWorkers/Resize.
type Executor struct {
	mu       sync.Mutex
	cond     *sync.Cond
	q        *queue.Queue
	closed   bool
	target   atomic.Int64
	nextID   atomic.Int64
	wg       sync.WaitGroup
	numaNode int
}

// NewExecutor starts an Executor with numWorkers goroutines, each
// preferentially pinned to numaNode where the platform supports it (see
// pin_*.go).
func NewExecutor(numWorkers, numaNode int) *Executor {
	e := &Executor{q: queue.New(), numaNode: numaNode}
	e.cond = sync.NewCond(&e.mu)
	e.target.Store(int64(numWorkers))
	for i := 0; i < numWorkers; i++ {
		e.spawn()
	}
	return e
}

func (e *Executor) spawn() {
	id := e.nextID.Add(1) - 1
	e.wg.Add(1)
	go e.workerLoop(id)
}

func (e *Executor) workerLoop(id int64) {
	defer e.wg.Done()
	if e.numaNode >= 0 {
		cpu := int(id) % runtime.NumCPU()
		PinCurrentThread(e.numaNode, cpu)
	}
	for {
		e.mu.Lock()
		for e.q.Length() == 0 && !e.closed && id < e.target.Load() {
			e.cond.Wait()
		}
		if e.closed || id >= e.target.Load() {
			e.mu.Unlock()
			return
		}
		task := e.q.Peek().(TaskFunc)
		e.q.Remove()
		e.mu.Unlock()

		task()
	}
}

// Submit enqueues task for execution by the next free worker. Returns
// ErrExecutorClosed once Close has run.
func (e *Executor) Submit(task func()) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrExecutorClosed
	}
	e.q.Add(TaskFunc(task))
	e.mu.Unlock()
	e.cond.Signal()
	return nil
}

// NumWorkers returns the current target worker count (workers mid-exit
// after a shrinking Resize may briefly still be running).
func (e *Executor) NumWorkers() int {
	return int(e.target.Load())
}

// Resize adjusts the worker count at runtime: growing spawns new workers
// immediately, shrinking lets the highest-numbered workers exit once
// they next wake (idle or between tasks).
func (e *Executor) Resize(newCount int) {
	old := e.target.Swap(int64(newCount))
	if int64(newCount) > old {
		for i := old; i < int64(newCount); i++ {
			e.spawn()
		}
	}
	e.cond.Broadcast()
}

// Close makes Submit reject new tasks and waits for all running workers to
// finish their current task and exit; tasks still queued are not run.
func (e *Executor) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cond.Broadcast()
	e.wg.Wait()
}
