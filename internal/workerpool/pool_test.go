// Copyright momentics <momentics@gmail.com>
// License: Apache-2.0

package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/multiproto/internal/lifecycle"
)

func TestSubmitExecutesAllTasks(t *testing.T) {
	coord := lifecycle.New()
	p := New(coord, 4, 64)
	defer p.Stop()

	var count int64
	var wg sync.WaitGroup
	const n = 200
	wg.Add(n)
	for i := 0; i < n; i++ {
		if err := p.Submit(func() {
			atomic.AddInt64(&count, 1)
			wg.Done()
		}); err != nil {
			t.Fatalf("unexpected Submit error: %v", err)
		}
	}
	wg.Wait()
	if atomic.LoadInt64(&count) != n {
		t.Fatalf("expected %d executions, got %d", n, count)
	}
}

func TestSubmitRejectedAfterStop(t *testing.T) {
	coord := lifecycle.New()
	p := New(coord, 2, 16)
	p.Stop()
	if err := p.Submit(func() {}); err != ErrDraining {
		t.Fatalf("expected ErrDraining, got %v", err)
	}
}

func TestPanicInTaskDoesNotKillWorker(t *testing.T) {
	coord := lifecycle.New()
	p := New(coord, 1, 16)
	defer p.Stop()

	done := make(chan struct{})
	_ = p.Submit(func() { panic("boom") })
	_ = p.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive a panicking task")
	}
}

func TestStopRespectsCoordinatorShutdown(t *testing.T) {
	coord := lifecycle.New()
	p := New(coord, 3, 16)
	coord.RequestShutdown()
	p.Stop()
	if coord.ActiveThreads() != 0 {
		t.Fatalf("expected all workers to report exit, got %d active", coord.ActiveThreads())
	}
}
