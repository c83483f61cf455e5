// Package api
// Author: momentics
//
// Executor contract for the fixed-size worker pool that backs per-connection
// task dispatch.

package api

// Executor abstracts a bounded pool of workers consuming a task queue.
type Executor interface {
	// Submit enqueues task for execution. Returns an error if the pool has
	// been drained and no longer accepts new work.
	Submit(task func()) error

	// NumWorkers returns the number of worker goroutines backing the pool.
	NumWorkers() int

	// QueueLen returns the number of tasks currently queued but not started.
	QueueLen() int
}
