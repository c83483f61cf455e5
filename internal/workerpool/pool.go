// File: internal/workerpool/pool.go
// Package workerpool implements the fixed-size worker pool that executes
// every per-connection task: protocol detection, HTTP/1.1 request loops,
// HTTP/2 session pumps, and WebSocket read loops.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Adapted from internal/concurrency.Executor/ThreadPool: that version kept
// a lock-free per-worker ring plus a global fallback channel for NUMA
// locality. This rewrite has no locality requirement, so a single
// eapache/queue-backed FIFO guarded by a mutex replaces the sharded rings;
// the wake/condition and bounded-join shutdown discipline is kept.

package workerpool

import (
	"errors"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/multiproto/api"
	"github.com/momentics/multiproto/internal/lifecycle"
)

// ErrDraining is returned by Submit once the pool has stopped accepting work.
var ErrDraining = errors.New("workerpool: draining, task rejected")

// Task is a unit of work owning exactly one connection or one background step.
type Task func()

// Pool is a fixed-size set of workers consuming a bounded FIFO of tasks.
// It never blocks Submit: a drained pool returns ErrDraining and a full
// queue returns api.ErrResourceExhausted rather than stalling the caller.
type Pool struct {
	coord *lifecycle.Coordinator

	mu       sync.Mutex
	cond     *sync.Cond
	tasks    *queue.Queue
	capacity int
	draining bool

	numWorkers int
	wg         sync.WaitGroup
}

var _ api.Executor = (*Pool)(nil)

// New creates a Pool with the given number of workers and bounded queue
// capacity. coord is consulted by every worker on each iteration so the
// pool observes shutdown without a separate stop channel.
func New(coord *lifecycle.Coordinator, numWorkers, capacity int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if capacity <= 0 {
		capacity = 1024
	}
	p := &Pool{
		coord:      coord,
		tasks:      queue.New(),
		capacity:   capacity,
		numWorkers: numWorkers,
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		coord.ThreadStarting()
		go p.runWorker()
	}
	return p
}

// Submit enqueues task for execution. Rejected silently (by contract) once
// the pool is draining or the queue is full; callers that need to observe
// the rejection inspect the returned error.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	if p.draining || p.coord.IsShutdownRequested() {
		p.mu.Unlock()
		return ErrDraining
	}
	if p.tasks.Length() >= p.capacity {
		p.mu.Unlock()
		return api.ErrResourceExhausted
	}
	p.tasks.Add(Task(task))
	p.mu.Unlock()
	p.cond.Signal()
	return nil
}

// NumWorkers reports the fixed worker count.
func (p *Pool) NumWorkers() int { return p.numWorkers }

// QueueLen reports tasks queued but not yet started.
func (p *Pool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks.Length()
}

// Stop marks the pool draining, wakes every worker, and waits up to 3
// seconds for them to finish their current task and exit. Submitted-but-unstarted tasks are dropped.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.draining = true
	p.mu.Unlock()
	p.cond.Broadcast()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		// Budget exhausted: workers that are mid-task will still finish and
		// call ThreadExiting on their own; we never block shutdown here.
	}
}

func (p *Pool) runWorker() {
	defer p.wg.Done()
	defer p.coord.ThreadExiting()

	for {
		task, ok := p.nextTask()
		if !ok {
			return
		}
		p.runTask(task)
	}
}

// nextTask waits, with a bounded timeout so shutdown is never starved, for
// either a queued task or a drain/shutdown signal.
func (p *Pool) nextTask() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.tasks.Length() == 0 {
		if p.draining || p.coord.IsShutdownRequested() {
			return nil, false
		}
		p.waitWithTimeout(100 * time.Millisecond)
	}
	t := p.tasks.Remove().(Task)
	return t, true
}

// waitWithTimeout releases the lock, waits for a signal or the timeout,
// and re-acquires the lock, mirroring sync.Cond.Wait's contract. The caller
// re-checks its condition after this returns, so a spurious wake from the
// timer racing a real Signal is harmless.
func (p *Pool) waitWithTimeout(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer timer.Stop()
	p.cond.Wait()
}

// runTask executes a task under a catch-all recover so a panicking task
// never terminates its worker.
func (p *Pool) runTask(t Task) {
	defer func() {
		_ = recover()
	}()
	t()
}
